// Package executive is the verification side of a group: the descriptor the
// orchestrating process hands over, and the entry point the isolated
// verification process runs.
package executive

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ariel-frischer/proctest/internal/fsutil"
	"github.com/ariel-frischer/proctest/internal/logging"
	"github.com/ariel-frischer/proctest/internal/node"
	"github.com/vmihailenco/msgpack/v5"
)

// DescriptorVersion is the descriptor schema this build writes.
const DescriptorVersion = 1

// ErrNewerDescriptor is returned for descriptors written by a newer version.
var ErrNewerDescriptor = errors.New("executive descriptor written by a newer version")

// Descriptor tells a verification process what to run and where its files
// live.
type Descriptor struct {
	Version int    `msgpack:"version"`
	Branch  string `msgpack:"branch"`

	EntryPoint    string            `msgpack:"entry_point"`
	Group         string            `msgpack:"group"`
	Suite         string            `msgpack:"suite"`
	LaunchCommand []string          `msgpack:"launch_command"`
	Parameters    map[string]string `msgpack:"parameters,omitempty"`
	Environment   map[string]string `msgpack:"environment,omitempty"`

	Threads int       `msgpack:"threads"`
	Flag    node.Flag `msgpack:"flag"`

	// Configuration is the group's configuration snapshot.
	Configuration string `msgpack:"configuration"`
	// Results is where the process writes its results snapshot.
	Results string `msgpack:"results"`
	// Status is the group's store, sized by the orchestrator and owned by
	// the verification process.
	Status string `msgpack:"status"`
	// ReadStores are stores of groups verified earlier, for cross-group
	// prerequisite checks.
	ReadStores []string `msgpack:"read_stores,omitempty"`

	// HeartbeatDir and HeartbeatName locate the watchdog heartbeat file.
	HeartbeatDir      string        `msgpack:"heartbeat_dir"`
	HeartbeatName     string        `msgpack:"heartbeat_name"`
	HeartbeatInterval time.Duration `msgpack:"heartbeat_interval"`

	Logging logging.Config `msgpack:"logging"`
}

// WriteDescriptor saves d to path atomically.
func WriteDescriptor(path string, d *Descriptor) error {
	d.Version = DescriptorVersion
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(d); err != nil {
		return fmt.Errorf("encoding executive descriptor: %w", err)
	}
	if err := fsutil.WriteAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("writing executive descriptor: %w", err)
	}
	return nil
}

// ReadDescriptor loads the descriptor at path.
func ReadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading executive descriptor: %w", err)
	}
	var d Descriptor
	if err := msgpack.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decoding executive descriptor %s: %w", path, err)
	}
	if d.Version > DescriptorVersion {
		return nil, fmt.Errorf("%s: %w (version %d)", path, ErrNewerDescriptor, d.Version)
	}
	return &d, nil
}
