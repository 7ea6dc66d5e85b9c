package status

import (
	"errors"
	"fmt"
)

// Set routes each sequence index to the store covering it: the writable
// store of the running group plus read-only stores of earlier groups.
type Set struct {
	own    Store
	others []*File
}

var _ Store = (*Set)(nil)

// NewSet returns a set writing to own and reading from others.
func NewSet(own Store, others ...*File) *Set {
	return &Set{own: own, others: others}
}

// Get implements Store. The owned store is consulted first.
func (s *Set) Get(seq int) (Record, bool, error) {
	rec, ok, err := s.own.Get(seq)
	if err == nil || !errors.Is(err, ErrOutOfRange) {
		return rec, ok, err
	}
	for _, f := range s.others {
		if f.Contains(seq) {
			return f.Get(seq)
		}
	}
	return Record{}, false, err
}

// Put implements Store. Only the owned store accepts writes.
func (s *Set) Put(seq int, rec Record) error {
	return s.own.Put(seq, rec)
}

// Close closes every store in the set.
func (s *Set) Close() error {
	var errs []error
	if err := s.own.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, f := range s.others {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", f.Path(), err))
		}
	}
	return errors.Join(errs...)
}
