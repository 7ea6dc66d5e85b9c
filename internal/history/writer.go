package history

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Writer provides thread-safe history logging with automatic pruning.
type Writer struct {
	// StateDir is the directory containing the history file.
	StateDir string
	// MaxEntries is the maximum number of entries to retain; zero keeps all.
	MaxEntries int

	log *zap.Logger
	mu  sync.Mutex
}

// NewWriter creates a new history writer.
func NewWriter(stateDir string, maxEntries int, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		StateDir:   stateDir,
		MaxEntries: maxEntries,
		log:        log.Named("history"),
	}
}

// LogEntry adds a new entry to the history file.
// It loads the existing history, appends the new entry, prunes if needed, and saves.
// Errors are non-fatal: they are logged as warnings and don't cause command failures.
func (w *Writer) LogEntry(entry HistoryEntry) {
	if err := w.logEntryInternal(entry); err != nil {
		w.log.Warn("failed to log history", zap.Error(err))
	}
}

// logEntryInternal handles the actual logging logic.
func (w *Writer) logEntryInternal(entry HistoryEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	history, err := LoadHistory(w.StateDir)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	history.Entries = append(history.Entries, entry)

	// Prune oldest entries if over limit
	if w.MaxEntries > 0 && len(history.Entries) > w.MaxEntries {
		excess := len(history.Entries) - w.MaxEntries
		history.Entries = history.Entries[excess:]
	}

	if err := SaveHistory(w.StateDir, history); err != nil {
		return fmt.Errorf("saving history: %w", err)
	}

	return nil
}

// LogCommand is a convenience method to log a command that produced no run.
func (w *Writer) LogCommand(command string, exitCode int, duration time.Duration) {
	w.LogEntry(HistoryEntry{
		Timestamp: time.Now(),
		Command:   command,
		ExitCode:  exitCode,
		Duration:  duration.String(),
	})
}

// OnCommandComplete records a finished command. It satisfies
// lifecycle.CompletionHandler.
func (w *Writer) OnCommandComplete(name string, exitCode int, duration time.Duration) {
	w.LogCommand(name, exitCode, duration)
}
