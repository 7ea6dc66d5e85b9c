package coordinator

import (
	"path/filepath"

	"github.com/ariel-frischer/proctest/internal/config"
)

// Paths locates the files of one group inside the state directory.
type Paths struct {
	Dir string
}

// NewPaths returns the paths of group under stateDir.
func NewPaths(stateDir, group string) Paths {
	return Paths{Dir: config.GroupStateDir(stateDir, group)}
}

// Configuration is the node-tree snapshot written after discovery.
func (p Paths) Configuration() string { return filepath.Join(p.Dir, "configuration.bin") }

// Results is the node-tree snapshot written by the verification process.
func (p Paths) Results() string { return filepath.Join(p.Dir, "results.bin") }

// Status is the group's status store.
func (p Paths) Status() string { return filepath.Join(p.Dir, "status.bin") }

// Descriptor is the executive descriptor handed to the verification process.
func (p Paths) Descriptor() string { return filepath.Join(p.Dir, "executive.bin") }

// HeartbeatName is the watchdog heartbeat file name inside Dir.
func (p Paths) HeartbeatName() string { return "heartbeat" }

// Heartbeat is the full heartbeat path.
func (p Paths) Heartbeat() string { return filepath.Join(p.Dir, p.HeartbeatName()) }

// Log collects the verification process's own log and its stdout/stderr.
func (p Paths) Log() string { return filepath.Join(p.Dir, "verification.log") }
