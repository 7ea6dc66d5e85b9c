// Package testutil provides test utilities and helpers for proctest tests.
package testutil

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ariel-frischer/proctest/internal/executive"
	"github.com/ariel-frischer/proctest/internal/registry"
)

// HelperProcessEnvVars contains the environment variable names used by the
// helper process.
const (
	// EnvWantHelperProcess signals that the test binary should run as a
	// verification process.
	EnvWantHelperProcess = "GO_WANT_HELPER_PROCESS"
	// EnvHelperProcessMode selects a misbehavior instead of a normal run.
	EnvHelperProcessMode = "GO_HELPER_PROCESS_MODE"
	// EnvHelperProcessExitCode overrides the exit code of ModeExit.
	EnvHelperProcessExitCode = "GO_HELPER_PROCESS_EXIT_CODE"
)

// Helper process modes.
const (
	// ModeVerify runs executive.Main on the descriptor (the default).
	ModeVerify = "verify"
	// ModeHang never beats and never exits, for watchdog tests.
	ModeHang = "hang"
	// ModeExit exits immediately without writing anything.
	ModeExit = "exit"
)

// RunHelperProcess is called from a test function named TestHelperProcess*
// to implement the helper process pattern. Without GO_WANT_HELPER_PROCESS=1
// it returns immediately. Otherwise the test binary acts as a verification
// process: the descriptor path is its last argument, units resolve the
// entry point, and the process exits without returning.
//
// Usage in test file:
//
//	func TestHelperProcess(t *testing.T) {
//	    testutil.RunHelperProcess(t, testUnits())
//	}
func RunHelperProcess(t *testing.T, units *registry.Registry) {
	if os.Getenv(EnvWantHelperProcess) != "1" {
		return
	}

	switch os.Getenv(EnvHelperProcessMode) {
	case ModeHang:
		for {
			time.Sleep(time.Hour)
		}
	case ModeExit:
		code, _ := strconv.Atoi(os.Getenv(EnvHelperProcessExitCode))
		os.Exit(code)
	}

	args := os.Args
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "helper process: missing descriptor path")
		os.Exit(2)
	}
	if err := executive.Main(args[len(args)-1], units); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}

// HelperLaunchCommand returns a launch command that re-runs the test binary
// restricted to testName. The descriptor path is appended after "--".
func HelperLaunchCommand(t *testing.T, testName string) string {
	t.Helper()

	testBinary, err := os.Executable()
	if err != nil {
		t.Fatalf("failed to get test binary path: %v", err)
	}
	return quote(testBinary) + " -test.run=^" + testName + "$ --"
}

// HelperEnvironment is the group environment that turns the launched test
// binary into a helper process running mode.
func HelperEnvironment(mode string) map[string]string {
	env := map[string]string{EnvWantHelperProcess: "1"}
	if mode != "" && mode != ModeVerify {
		env[EnvHelperProcessMode] = mode
	}
	return env
}

// quote wraps s in single quotes for shell-style splitting.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
