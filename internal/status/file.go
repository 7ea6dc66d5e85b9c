package status

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ariel-frischer/proctest/internal/node"
)

const (
	fileVersion = 1
	headerSize  = 32
	recordSize  = 16
)

var magic = [4]byte{'P', 'T', 'S', 'S'}

// File is a fixed-capacity store backed by one file. The header names the
// first sequence index and the capacity; every index owns one fixed-size
// slot so records are written in place.
//
//	header: magic[4] version u32 first i64 count i64 reserved[8]
//	record: written u8 state u8 reserved[2] failures u32 duration i64
type File struct {
	f        *os.File
	path     string
	first    int
	count    int
	readOnly bool
}

var _ Store = (*File)(nil)

// Create makes (or truncates) the store at path sized for count nodes
// starting at sequence index first. All slots start unwritten.
func Create(path string, first, count int) (*File, error) {
	if first < 0 || count < 0 {
		return nil, fmt.Errorf("creating status store %s: invalid range %d+%d", path, first, count)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating status store: %w", err)
	}

	var hdr [headerSize]byte
	copy(hdr[0:4], magic[:])
	binary.LittleEndian.PutUint32(hdr[4:8], fileVersion)
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(first))
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(count))
	if _, err := f.WriteAt(hdr[:], 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing status store header: %w", err)
	}
	if err := f.Truncate(int64(headerSize + count*recordSize)); err != nil {
		f.Close()
		return nil, fmt.Errorf("sizing status store: %w", err)
	}
	return &File{f: f, path: path, first: first, count: count}, nil
}

// Open opens an existing store for reading and writing.
func Open(path string) (*File, error) {
	return open(path, os.O_RDWR, false)
}

// OpenReadOnly opens an existing store another process owns.
func OpenReadOnly(path string) (*File, error) {
	return open(path, os.O_RDONLY, true)
}

func open(path string, flag int, readOnly bool) (*File, error) {
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("opening status store: %w", err)
	}

	var hdr [headerSize]byte
	if _, err := f.ReadAt(hdr[:], 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading status store header %s: %w", path, err)
	}
	if [4]byte(hdr[0:4]) != magic {
		f.Close()
		return nil, fmt.Errorf("%s is not a status store", path)
	}
	if v := binary.LittleEndian.Uint32(hdr[4:8]); v != fileVersion {
		f.Close()
		return nil, fmt.Errorf("status store %s has unsupported version %d", path, v)
	}

	s := &File{
		f:        f,
		path:     path,
		first:    int(binary.LittleEndian.Uint64(hdr[8:16])),
		count:    int(binary.LittleEndian.Uint64(hdr[16:24])),
		readOnly: readOnly,
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat status store: %w", err)
	}
	if want := int64(headerSize + s.count*recordSize); info.Size() < want {
		f.Close()
		return nil, fmt.Errorf("status store %s truncated: %d bytes, want %d", path, info.Size(), want)
	}
	return s, nil
}

// First is the lowest sequence index the store covers.
func (s *File) First() int { return s.first }

// Count is the store's capacity.
func (s *File) Count() int { return s.count }

// Path is the backing file.
func (s *File) Path() string { return s.path }

// Contains reports whether seq falls inside the store.
func (s *File) Contains(seq int) bool {
	return seq >= s.first && seq < s.first+s.count
}

func (s *File) offset(seq int) (int64, error) {
	if !s.Contains(seq) {
		return 0, fmt.Errorf("%w: %d not in %d..%d", ErrOutOfRange, seq, s.first, s.first+s.count-1)
	}
	return int64(headerSize + (seq-s.first)*recordSize), nil
}

// Get implements Store.
func (s *File) Get(seq int) (Record, bool, error) {
	off, err := s.offset(seq)
	if err != nil {
		return Record{}, false, err
	}
	var buf [recordSize]byte
	if _, err := s.f.ReadAt(buf[:], off); err != nil && !errors.Is(err, io.EOF) {
		return Record{}, false, fmt.Errorf("reading status record %d: %w", seq, err)
	}
	if buf[0] == 0 {
		return Record{}, false, nil
	}
	return Record{
		State:    node.State(buf[1]),
		Failures: int(binary.LittleEndian.Uint32(buf[4:8])),
		Duration: time.Duration(binary.LittleEndian.Uint64(buf[8:16])),
	}, true, nil
}

// Put implements Store.
func (s *File) Put(seq int, rec Record) error {
	if s.readOnly {
		return ErrReadOnly
	}
	off, err := s.offset(seq)
	if err != nil {
		return err
	}
	var buf [recordSize]byte
	buf[0] = 1
	buf[1] = byte(rec.State)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(rec.Failures))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(rec.Duration))
	if _, err := s.f.WriteAt(buf[:], off); err != nil {
		return fmt.Errorf("writing status record %d: %w", seq, err)
	}
	return nil
}

// Sync flushes written records to stable storage.
func (s *File) Sync() error {
	if s.readOnly {
		return nil
	}
	return s.f.Sync()
}

// Close implements Store.
func (s *File) Close() error {
	return s.f.Close()
}
