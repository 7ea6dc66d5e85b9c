package cli

import (
	"errors"

	clierrors "github.com/ariel-frischer/proctest/internal/errors"
)

// Exit codes for the proctest CLI
// These codes support programmatic composition and CI/CD integration
const (
	// ExitSuccess indicates every selected node succeeded
	ExitSuccess = 0

	// ExitNodesFailed indicates the run completed but some nodes failed
	ExitNodesFailed = 1

	// ExitConfigurationError indicates configuration errors aborted the run
	// before any verification process launched
	ExitConfigurationError = 2

	// ExitInvalidArguments indicates invalid command arguments
	ExitInvalidArguments = 3

	// ExitInternalError indicates corrupt persisted state or a violated invariant
	ExitInternalError = 4

	// ExitRuntimeError indicates a run-time failure such as a locked state
	// directory or a process that could not be launched
	ExitRuntimeError = 5
)

// errNodesFailed is returned by run when the orchestration completed with
// failures. The summary has already been printed.
var errNodesFailed = errors.New("one or more nodes failed")

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if errors.Is(err, errNodesFailed) {
		return ExitNodesFailed
	}
	cliErr := clierrors.AsCLIError(err)
	if cliErr == nil {
		return ExitRuntimeError
	}
	switch cliErr.Category {
	case clierrors.Argument:
		return ExitInvalidArguments
	case clierrors.Configuration:
		return ExitConfigurationError
	case clierrors.Internal:
		return ExitInternalError
	default:
		return ExitRuntimeError
	}
}
