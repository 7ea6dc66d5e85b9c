package config

import (
	"runtime"
	"time"
)

// GetDefaultConfigTemplate returns a fully commented config template
// that helps users understand all available options
func GetDefaultConfigTemplate() string {
	return `# proctest configuration

state_dir: .proctest/state            # Snapshots, status stores, run summaries
branch: main                          # Snapshot branch tag; other branches are ignored
suite: default                        # Suite name recorded in descriptors and summaries
selection: persisted                  # persisted (Run flag) | alternate (AltRun flag)

# Watchdog
heartbeat_interval: 1s                # Verification process heartbeat period
heartbeat_timeout: 30s                # Kill a verification process silent for this long

launch_command: ""                    # Empty: this binary's hidden 'executive' command

max_history_entries: 100              # Run history entries to retain

logging:
  level: info                         # trace | debug | info | warn | error
  format: console                     # console | json
  file: ""                            # Log file (empty = stderr)

# Groups are discovered together and verified one at a time, in order.
groups:
  - name: demo
    entry_point: demo                 # Registered unit constructor name
    discovery_threads: 0              # 0 = number of CPUs
    verification_threads: 0
    environment: {}
    parameters: {}
`
}

// GetDefaults returns the default configuration values.
func GetDefaults() map[string]interface{} {
	return map[string]interface{}{
		"state_dir":           ".proctest/state",
		"branch":              "main",
		"suite":               "default",
		"selection":           SelectionPersisted,
		"heartbeat_interval":  time.Second,
		"heartbeat_timeout":   30 * time.Second,
		"launch_command":      "",
		"max_history_entries": 100,
		"logging.level":       "info",
		"logging.format":      "console",
		"logging.file":        "",
		"groups": []map[string]interface{}{
			{"name": "demo", "entry_point": "demo"},
		},
	}
}

// Threads resolves a configured pool size; zero means one worker per CPU.
func Threads(n int) int {
	if n > 0 {
		return n
	}
	return runtime.NumCPU()
}
