// Package snapshot persists node trees as versioned msgpack files.
//
// A file is a header followed by one recursive node record. Configuration
// snapshots carry what a verification process needs to replay a group
// (selection, sequencing, resolved edges); results snapshots carry what it
// hands back (states, failures, timing). Readers reject files written by a
// newer version or for another branch.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/ariel-frischer/proctest/internal/fsutil"
	"github.com/ariel-frischer/proctest/internal/node"
	"github.com/vmihailenco/msgpack/v5"
)

// Version is the schema version this build writes.
const Version = 1

// Kind tells which half of the node data a file carries.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindResults       Kind = "results"
)

var (
	// ErrNewerVersion is returned for files written by a newer schema.
	ErrNewerVersion = errors.New("snapshot written by a newer version")
	// ErrBranchMismatch is returned for files tagged with another branch.
	ErrBranchMismatch = errors.New("snapshot branch mismatch")
	// ErrKindMismatch is returned when a file holds the other kind of data.
	ErrKindMismatch = errors.New("snapshot kind mismatch")
)

// Header precedes the node record.
type Header struct {
	Version int       `msgpack:"version"`
	Branch  string    `msgpack:"branch"`
	Kind    Kind      `msgpack:"kind"`
	Group   string    `msgpack:"group"`
	Written time.Time `msgpack:"written"`
}

// Encode writes hdr and the tree rooted at root to w. The header's version
// is always set to Version.
func Encode(w io.Writer, hdr Header, root *node.Node) error {
	hdr.Version = Version
	if hdr.Written.IsZero() {
		hdr.Written = time.Now()
	}
	enc := msgpack.NewEncoder(w)
	if err := enc.Encode(&hdr); err != nil {
		return fmt.Errorf("encoding snapshot header: %w", err)
	}
	rec := fromNode(root, hdr.Kind)
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("encoding snapshot tree: %w", err)
	}
	return nil
}

// Decode reads a snapshot of the wanted kind for branch. The header is
// checked before the tree is decoded.
func Decode(r io.Reader, branch string, want Kind) (*node.Node, Header, error) {
	dec := msgpack.NewDecoder(r)
	var hdr Header
	if err := dec.Decode(&hdr); err != nil {
		return nil, hdr, fmt.Errorf("decoding snapshot header: %w", err)
	}
	if hdr.Version > Version {
		return nil, hdr, fmt.Errorf("%w: file version %d, this build reads up to %d", ErrNewerVersion, hdr.Version, Version)
	}
	if hdr.Branch != branch {
		return nil, hdr, fmt.Errorf("%w: file is for %q, want %q", ErrBranchMismatch, hdr.Branch, branch)
	}
	if hdr.Kind != want {
		return nil, hdr, fmt.Errorf("%w: file holds %s, want %s", ErrKindMismatch, hdr.Kind, want)
	}

	var rec record
	if err := dec.Decode(&rec); err != nil {
		return nil, hdr, fmt.Errorf("decoding snapshot tree: %w", err)
	}
	return rec.toNode(hdr.Group, hdr.Kind), hdr, nil
}

// Save writes the snapshot to path atomically.
func Save(path string, hdr Header, root *node.Node) error {
	var buf bytes.Buffer
	if err := Encode(&buf, hdr, root); err != nil {
		return err
	}
	if err := fsutil.WriteAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("saving snapshot %s: %w", path, err)
	}
	return nil
}

// Load reads the snapshot at path.
func Load(path, branch string, want Kind) (*node.Node, Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Header{}, fmt.Errorf("reading snapshot: %w", err)
	}
	root, hdr, err := Decode(bytes.NewReader(data), branch, want)
	if err != nil {
		return nil, hdr, fmt.Errorf("%s: %w", path, err)
	}
	return root, hdr, nil
}

// LoadOptional is Load for callers that tolerate absence: a missing file or
// a version or branch mismatch yields a nil tree and no error.
func LoadOptional(path, branch string, want Kind) (*node.Node, error) {
	root, _, err := Load(path, branch, want)
	if IsAbsent(err) {
		return nil, nil
	}
	return root, err
}

// IsAbsent reports whether err means "no usable data" rather than corruption.
func IsAbsent(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, ErrNewerVersion) ||
		errors.Is(err, ErrBranchMismatch)
}
