package errors

import (
	"fmt"
	"strings"
)

// Common error messages for the proctest CLI.
// These templates keep run-level failures consistent and actionable.

// ConfigFileNotFound creates an error for a missing configuration file.
func ConfigFileNotFound(path string) *CLIError {
	return NewConfigError(
		fmt.Sprintf("configuration file not found: %s", path),
		"Check the path passed to --config",
		"Or run without --config to use .proctest/config.yml and defaults",
	)
}

// ConfigParseError creates an error for an unparseable configuration file.
func ConfigParseError(path string, err error) *CLIError {
	return WrapWithMessage(err, Configuration,
		fmt.Sprintf("failed to parse configuration %s", path),
		"Fix the syntax error reported above",
	)
}

// UnknownEntryPoint creates an error for a group whose entry point is not registered.
func UnknownEntryPoint(group, entry string, registered []string) *CLIError {
	known := "none"
	if len(registered) > 0 {
		known = strings.Join(registered, ", ")
	}
	return NewConfigError(
		fmt.Sprintf("group %q: entry point %q is not registered", group, entry),
		"Register the unit constructor in the registry before calling cli.Execute",
		fmt.Sprintf("Or set the group's entry_point to a registered unit (registered: %s)", known),
	)
}

// NoGroupsConfigured creates an error for a configuration without groups.
func NoGroupsConfigured() *CLIError {
	return NewConfigError(
		"no groups configured",
		"Add at least one entry under groups: in .proctest/config.yml",
	)
}

// RunLocked creates an error for a state directory held by another run.
func RunLocked(stateDir string, pid int) *CLIError {
	return NewRuntimeError(
		fmt.Sprintf("state directory %s is locked by process %d", stateDir, pid),
		"Wait for the other run to finish",
		"Or remove the stale lock file if that process no longer exists",
	)
}

// NoPreviousRun creates an error for commands that need a persisted tree.
func NoPreviousRun(group string) *CLIError {
	return NewArgumentError(
		fmt.Sprintf("group %q has no persisted tree", group),
		"Run 'proctest discover' or 'proctest run' first",
	)
}

// NodeNotFound creates an error for an unknown sequence index or pattern.
func NodeNotFound(ref string) *CLIError {
	return NewArgumentError(
		fmt.Sprintf("no node matches %q", ref),
		"Use 'proctest tree' to list nodes with their sequence indices",
	)
}

// InvalidFlagCombination creates an error for incompatible flags.
func InvalidFlagCombination(flags string, reason string) *CLIError {
	return NewArgumentError(
		fmt.Sprintf("invalid flag combination: %s", flags),
		reason,
	)
}

// VerificationTimedOut creates an error for a verification process killed by the watchdog.
func VerificationTimedOut(group string, timeout string) *CLIError {
	return NewRuntimeError(
		fmt.Sprintf("verification of group %q stopped sending heartbeats for %s and was terminated", group, timeout),
		"Increase heartbeat_timeout if the group legitimately blocks for long periods",
		"Inspect the group's verification.log for the last activity",
	)
}
