// Package status is the durable, index-addressed outcome record of a run.
//
// Each verification process owns the store of its own group and writes one
// record per node as the node reaches a terminal state. Stores of earlier
// groups are opened read-only so cross-group prerequisites can be checked
// without loading their trees.
package status

import (
	"errors"
	"time"

	"github.com/ariel-frischer/proctest/internal/node"
)

// ErrOutOfRange is returned for sequence indices the store does not cover.
var ErrOutOfRange = errors.New("sequence index outside status store")

// ErrReadOnly is returned when writing to a store opened for reading.
var ErrReadOnly = errors.New("status store is read-only")

// Record is the persisted outcome of one node.
type Record struct {
	State    node.State
	Failures int
	Duration time.Duration
}

// Store is the outcome record used by the execution controller. Callers
// serialize access through the run lock.
type Store interface {
	// Get returns the record for seq and whether one was written.
	Get(seq int) (Record, bool, error)
	// Put writes the record for seq, replacing any earlier one.
	Put(seq int, rec Record) error
	Close() error
}

// Succeeded reports whether s holds a successful outcome for seq. Missing
// records and out-of-range indices count as not succeeded.
func Succeeded(s Store, seq int) (bool, error) {
	rec, ok, err := s.Get(seq)
	if err != nil {
		if errors.Is(err, ErrOutOfRange) {
			return false, nil
		}
		return false, err
	}
	return ok && rec.State.Succeeded(), nil
}

// RecordOf builds the record for a finished node.
func RecordOf(n *node.Node) Record {
	return Record{State: n.State, Failures: len(n.Failures), Duration: n.Duration()}
}
