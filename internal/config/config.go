// Package config provides layered configuration management for proctest using koanf.
// Configuration is loaded with priority: environment variables (PROCTEST_*) > explicit
// --config file > project config (.proctest/config.yml, or .proctest/config.json) > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ariel-frischer/proctest/internal/logging"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Selection values choose which run flag drives verification eligibility.
const (
	SelectionPersisted = "persisted"
	SelectionAlternate = "alternate"
)

// Configuration represents the proctest configuration.
type Configuration struct {
	// StateDir holds node-tree snapshots, status stores, run summaries and locks.
	StateDir string `koanf:"state_dir" validate:"required"`
	// Branch tags every snapshot; files written for another branch are ignored.
	Branch string `koanf:"branch" validate:"required"`
	// Suite names the suite in executive descriptors and run summaries.
	Suite string `koanf:"suite"`
	// Selection is "persisted" (Run flag) or "alternate" (AltRun flag).
	Selection string `koanf:"selection" validate:"oneof=persisted alternate"`

	// HeartbeatInterval is how often a verification process touches its heartbeat file.
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval" validate:"gt=0"`
	// HeartbeatTimeout is how long the watchdog waits for a heartbeat before killing the process.
	HeartbeatTimeout time.Duration `koanf:"heartbeat_timeout" validate:"gtfield=HeartbeatInterval"`

	// LaunchCommand starts a verification process; the descriptor path is appended.
	// Empty means the running executable with the hidden "executive" command.
	LaunchCommand string `koanf:"launch_command"`

	// Groups are verified one at a time, in order.
	Groups []Group `koanf:"groups" validate:"required,min=1,dive"`

	Logging logging.Config `koanf:"logging"`

	// MaxHistoryEntries sets the maximum number of run history entries to retain.
	MaxHistoryEntries int `koanf:"max_history_entries" validate:"min=0"`
}

// Group configures one isolated verification process.
type Group struct {
	Name       string `koanf:"name" validate:"required,excludesall=/\\ "`
	EntryPoint string `koanf:"entry_point" validate:"required"`

	DiscoveryThreads    int `koanf:"discovery_threads" validate:"min=0"`
	VerificationThreads int `koanf:"verification_threads" validate:"min=0"`

	Environment map[string]string `koanf:"environment"`
	Parameters  map[string]string `koanf:"parameters"`

	// LaunchCommand overrides the top-level launch command for this group.
	LaunchCommand string `koanf:"launch_command"`
}

// LoadOptions configures how configuration is loaded.
type LoadOptions struct {
	// ProjectConfigPath overrides the project config path (default: .proctest/config.yml).
	ProjectConfigPath string
	// ConfigPath is an explicit --config file. It must exist.
	ConfigPath string
}

// Load loads configuration from the project file and environment.
func Load(projectConfigPath string) (*Configuration, error) {
	return LoadWithOptions(LoadOptions{ProjectConfigPath: projectConfigPath})
}

// LoadWithOptions loads configuration with custom options.
func LoadWithOptions(opts LoadOptions) (*Configuration, error) {
	k := koanf.New(".")

	loadDefaults(k)

	if err := loadProjectConfig(k, opts.ProjectConfigPath); err != nil {
		return nil, err
	}

	if opts.ConfigPath != "" {
		if !fileExists(opts.ConfigPath) {
			return nil, fmt.Errorf("config file %s: %w", opts.ConfigPath, os.ErrNotExist)
		}
		if err := loadFile(k, opts.ConfigPath, "explicit"); err != nil {
			return nil, err
		}
	}

	if err := loadEnvironmentConfig(k); err != nil {
		return nil, err
	}

	return finalizeConfig(k)
}

// loadDefaults applies default configuration values.
func loadDefaults(k *koanf.Koanf) {
	for key, value := range GetDefaults() {
		k.Set(key, value)
	}
}

// loadProjectConfig loads the project config, YAML preferred over JSON.
func loadProjectConfig(k *koanf.Koanf, customPath string) error {
	path := ProjectConfigPath()
	if customPath != "" {
		path = customPath
	}
	switch {
	case fileExists(path):
		return loadFile(k, path, "project")
	case customPath == "" && fileExists(ProjectJSONConfigPath()):
		return loadFile(k, ProjectJSONConfigPath(), "project")
	}
	return nil
}

// loadFile validates and loads a YAML or JSON config file, chosen by extension.
func loadFile(k *koanf.Koanf, path, configType string) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := k.Load(file.Provider(path), json.Parser()); err != nil {
			return fmt.Errorf("failed to load %s config %s: %w", configType, path, err)
		}
		return nil
	}
	if err := ValidateYAMLSyntax(path); err != nil {
		return fmt.Errorf("validating YAML syntax for %s config: %w", configType, err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load %s config %s: %w", configType, path, err)
	}
	return nil
}

// loadEnvironmentConfig loads environment variable overrides.
func loadEnvironmentConfig(k *koanf.Koanf) error {
	if err := k.Load(env.Provider("PROCTEST_", ".", envTransform), nil); err != nil {
		return fmt.Errorf("failed to load environment config: %w", err)
	}
	return nil
}

// finalizeConfig unmarshals, validates, and applies final transformations.
func finalizeConfig(k *koanf.Koanf) (*Configuration, error) {
	var cfg Configuration
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ValidateConfigValues(&cfg, "config"); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg.StateDir = expandHomePath(cfg.StateDir)
	return &cfg, nil
}

// fileExists returns true if the file exists and is readable
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// envTransform converts environment variable names to config keys.
// Nested keys use a double underscore.
// Example: PROCTEST_HEARTBEAT_TIMEOUT -> heartbeat_timeout, PROCTEST_LOGGING__LEVEL -> logging.level
func envTransform(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, "PROCTEST_"))
	return strings.ReplaceAll(key, "__", ".")
}

// expandHomePath expands ~ to the user's home directory
func expandHomePath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}

// Group returns the named group.
func (c *Configuration) Group(name string) (Group, bool) {
	for _, g := range c.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}

// GroupNames lists configured groups in verification order.
func (c *Configuration) GroupNames() []string {
	names := make([]string, 0, len(c.Groups))
	for _, g := range c.Groups {
		names = append(names, g.Name)
	}
	return names
}

// UsesAlternateSelection reports whether verification reads the AltRun flag.
func (c *Configuration) UsesAlternateSelection() bool {
	return c.Selection == SelectionAlternate
}
