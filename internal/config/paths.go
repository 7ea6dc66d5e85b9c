package config

import "path/filepath"

// ProjectConfigDir returns the path to the project-level config directory.
func ProjectConfigDir() string {
	return ".proctest"
}

// ProjectConfigPath returns the path to the project-level config file.
// This is always .proctest/config.yml relative to the current directory.
func ProjectConfigPath() string {
	return filepath.Join(ProjectConfigDir(), "config.yml")
}

// ProjectJSONConfigPath returns the JSON alternative to ProjectConfigPath.
func ProjectJSONConfigPath() string {
	return filepath.Join(ProjectConfigDir(), "config.json")
}

// GroupStateDir is the per-group directory inside the state dir.
func GroupStateDir(stateDir, group string) string {
	return filepath.Join(stateDir, group)
}
