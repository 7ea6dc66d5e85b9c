package status

import "fmt"

// Memory is an in-process store, used by the discovery pass and tests.
type Memory struct {
	first   int
	records []Record
	written []bool
}

var _ Store = (*Memory)(nil)

// NewMemory returns a store covering count indices starting at first.
func NewMemory(first, count int) *Memory {
	return &Memory{first: first, records: make([]Record, count), written: make([]bool, count)}
}

func (m *Memory) index(seq int) (int, error) {
	i := seq - m.first
	if i < 0 || i >= len(m.records) {
		return 0, fmt.Errorf("%w: %d", ErrOutOfRange, seq)
	}
	return i, nil
}

// Get implements Store.
func (m *Memory) Get(seq int) (Record, bool, error) {
	i, err := m.index(seq)
	if err != nil {
		return Record{}, false, err
	}
	return m.records[i], m.written[i], nil
}

// Put implements Store.
func (m *Memory) Put(seq int, rec Record) error {
	i, err := m.index(seq)
	if err != nil {
		return err
	}
	m.records[i] = rec
	m.written[i] = true
	return nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
