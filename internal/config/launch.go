package config

import (
	"fmt"
	"os"

	"github.com/google/shlex"
)

// ExecutiveCommand is the hidden command a verification process runs.
const ExecutiveCommand = "executive"

// SplitCommand splits a shell-style command line. An empty line yields nil.
func SplitCommand(line string) ([]string, error) {
	if line == "" {
		return nil, nil
	}
	args, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("parsing command %q: %w", line, err)
	}
	return args, nil
}

// LaunchArgs returns the argv that starts a verification process for g: the
// group override, else the top-level launch command, else this executable
// with the executive command. The descriptor path is appended by the caller.
func (c *Configuration) LaunchArgs(g Group) ([]string, error) {
	line := g.LaunchCommand
	if line == "" {
		line = c.LaunchCommand
	}
	args, err := SplitCommand(line)
	if err != nil {
		return nil, err
	}
	if len(args) > 0 {
		return args, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating executable: %w", err)
	}
	return []string{exe, ExecutiveCommand}, nil
}
