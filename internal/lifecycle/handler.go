// Package lifecycle wraps CLI command execution with timing and completion
// dispatch, so every command reports to the history the same way.
//
// The package is intentionally minimal: no event bus, no goroutines. Run
// captures the start time, executes the provided function, calculates the
// duration and calls the handler.
package lifecycle

import "time"

// CompletionHandler receives the outcome of a finished command. It is
// satisfied by *history.Writer.
type CompletionHandler interface {
	// OnCommandComplete is called when a CLI command finishes execution.
	OnCommandComplete(name string, exitCode int, duration time.Duration)
}

// ExitCoder maps a command error to its exit code.
type ExitCoder func(err error) int

// Run executes fn as the command name and reports its exit code and
// duration to h. A nil handler only runs fn. The error of fn is returned
// unchanged.
func Run(h CompletionHandler, name string, code ExitCoder, fn func() error) error {
	start := time.Now()
	err := fn()
	if h != nil {
		h.OnCommandComplete(name, code(err), time.Since(start))
	}
	return err
}
