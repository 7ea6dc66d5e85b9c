package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	clierrors "github.com/ariel-frischer/proctest/internal/errors"
	"github.com/ariel-frischer/proctest/internal/fsutil"
	"gopkg.in/yaml.v3"
)

// LockFileName is the run lock inside the state directory.
const LockFileName = "run.lock"

// RunLock marks a state directory as owned by one orchestrating process.
type RunLock struct {
	// RunID is the identifier of the run holding the lock.
	RunID string `yaml:"run_id"`
	// PID is the process ID holding the lock.
	PID int `yaml:"pid"`
	// Command is the proctest command that took the lock.
	Command string `yaml:"command"`
	// StartedAt is when the lock was acquired.
	StartedAt time.Time `yaml:"started_at"`
}

// GetLockPath returns the path to the lock file of stateDir.
func GetLockPath(stateDir string) string {
	return filepath.Join(stateDir, LockFileName)
}

// AcquireLock takes the lock on stateDir for runID. A lock held by a live
// process fails with a RunLocked error; a stale one is reclaimed.
//
// The lock file is written in full to a private temp file and hard-linked
// into place, so creation is exclusive and readers never see a partial lock.
func AcquireLock(stateDir, runID, command string) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	lock := &RunLock{
		RunID:     runID,
		PID:       os.Getpid(),
		Command:   command,
		StartedAt: time.Now(),
	}
	data, err := yaml.Marshal(lock)
	if err != nil {
		return fmt.Errorf("marshaling lock: %w", err)
	}

	path := GetLockPath(stateDir)
	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		err := linkLock(path, data)
		if err == nil {
			return nil
		}
		if !errors.Is(err, os.ErrExist) {
			return err
		}

		existing, err := LoadLock(stateDir)
		if err != nil {
			return err
		}
		switch {
		case existing == nil:
			// Released between the link and the read.
		case existing.RunID == runID:
			if err := fsutil.WriteAtomic(path, data); err != nil {
				return fmt.Errorf("writing lock file: %w", err)
			}
			return nil
		case !IsLockStale(existing):
			return clierrors.RunLocked(stateDir, existing.PID)
		default:
			if err := reclaimLock(path, runID, existing); err != nil {
				return err
			}
		}
	}
	return clierrors.RunLocked(stateDir, 0)
}

// maxLockAttempts bounds the retries when other runs keep racing for the lock.
const maxLockAttempts = 5

// linkLock creates path with data, failing with os.ErrExist if it exists.
func linkLock(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), LockFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating lock temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing lock temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing lock temp file: %w", err)
	}
	if err := os.Link(tmp.Name(), path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return os.ErrExist
		}
		return fmt.Errorf("creating lock file: %w", err)
	}
	return nil
}

// reclaimLock removes the stale lock. The file is first moved aside so a
// fresh lock taken by another run in the meantime is put back, not deleted.
func reclaimLock(path, runID string, stale *RunLock) error {
	aside := path + "." + runID + ".stale"
	if err := os.Rename(path, aside); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reclaiming stale lock: %w", err)
	}
	defer os.Remove(aside)

	data, err := os.ReadFile(aside)
	if err != nil {
		return fmt.Errorf("reading reclaimed lock: %w", err)
	}
	var moved RunLock
	if err := yaml.Unmarshal(data, &moved); err != nil {
		return fmt.Errorf("parsing reclaimed lock: %w", err)
	}
	if moved.RunID != stale.RunID || moved.PID != stale.PID {
		if err := os.Link(aside, path); err != nil && !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("restoring lock file: %w", err)
		}
	}
	return nil
}

// ReleaseLock removes the lock if runID holds it.
func ReleaseLock(stateDir, runID string) error {
	lock, err := LoadLock(stateDir)
	if err != nil || lock == nil || lock.RunID != runID {
		return err
	}
	if err := os.Remove(GetLockPath(stateDir)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing lock file: %w", err)
	}
	return nil
}

// LoadLock reads the lock of stateDir.
// Returns nil and no error if the lock file doesn't exist.
func LoadLock(stateDir string) (*RunLock, error) {
	data, err := os.ReadFile(GetLockPath(stateDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading lock file: %w", err)
	}

	var lock RunLock
	if err := yaml.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("parsing lock file: %w", err)
	}
	return &lock, nil
}

// IsLockStale checks if a lock is stale based on PID.
// A lock is stale if the PID that created it is no longer running.
func IsLockStale(lock *RunLock) bool {
	if lock == nil {
		return true
	}
	return !isProcessRunning(lock.PID)
}

// isProcessRunning checks if a process with the given PID exists.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds. Send signal 0 to check existence.
	return process.Signal(syscall.Signal(0)) == nil
}
