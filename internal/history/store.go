// Package history keeps a bounded log of proctest runs in the state
// directory, newest last.
package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ariel-frischer/proctest/internal/fsutil"
	"gopkg.in/yaml.v3"
)

// FileName is the history file inside the state directory.
const FileName = "history.yaml"

// HistoryFile is the on-disk history.
type HistoryFile struct {
	Entries []HistoryEntry `yaml:"entries"`
}

// HistoryEntry records one command execution.
type HistoryEntry struct {
	Timestamp time.Time `yaml:"timestamp"`
	Command   string    `yaml:"command"`
	// RunID links the entry to its run summary, when the command produced one.
	RunID    string `yaml:"run_id,omitempty"`
	ExitCode int    `yaml:"exit_code"`
	Duration string `yaml:"duration"`

	Groups    []string `yaml:"groups,omitempty"`
	Succeeded int      `yaml:"succeeded"`
	Failed    int      `yaml:"failed"`
	Skipped   int      `yaml:"skipped"`
}

// Path returns the history file path for stateDir.
func Path(stateDir string) string {
	return filepath.Join(stateDir, FileName)
}

// LoadHistory reads the history of stateDir. A missing file is an empty
// history.
func LoadHistory(stateDir string) (*HistoryFile, error) {
	data, err := os.ReadFile(Path(stateDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &HistoryFile{}, nil
		}
		return nil, fmt.Errorf("reading history file: %w", err)
	}

	var history HistoryFile
	if err := yaml.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("parsing history file: %w", err)
	}
	return &history, nil
}

// SaveHistory writes history atomically.
func SaveHistory(stateDir string, history *HistoryFile) error {
	data, err := yaml.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}
	if err := fsutil.WriteAtomic(Path(stateDir), data); err != nil {
		return fmt.Errorf("writing history file: %w", err)
	}
	return nil
}

// ClearHistory removes every entry.
func ClearHistory(stateDir string) error {
	if err := os.Remove(Path(stateDir)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing history file: %w", err)
	}
	return nil
}
