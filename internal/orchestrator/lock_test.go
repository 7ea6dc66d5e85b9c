package orchestrator

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	clierrors "github.com/ariel-frischer/proctest/internal/errors"
	"github.com/ariel-frischer/proctest/internal/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeTestLock(t *testing.T, dir string, lock *RunLock) {
	t.Helper()
	data, err := yaml.Marshal(lock)
	require.NoError(t, err)
	require.NoError(t, fsutil.WriteAtomic(GetLockPath(dir), data))
}

func TestAcquireLock(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		existing *RunLock
		wantErr  bool
	}{
		"no lock": {},
		"stale lock is reclaimed": {
			existing: &RunLock{RunID: "old", PID: 0, StartedAt: time.Now()},
		},
		"live lock blocks": {
			existing: &RunLock{RunID: "other", PID: os.Getpid(), StartedAt: time.Now()},
			wantErr:  true,
		},
		"own lock is refreshed": {
			existing: &RunLock{RunID: "me", PID: os.Getpid(), StartedAt: time.Now()},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			if tt.existing != nil {
				writeTestLock(t, dir, tt.existing)
			}

			err := AcquireLock(dir, "me", "run")
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, clierrors.Runtime, clierrors.CategoryOf(err))
				return
			}
			require.NoError(t, err)

			lock, err := LoadLock(dir)
			require.NoError(t, err)
			require.NotNil(t, lock)
			assert.Equal(t, "me", lock.RunID)
			assert.Equal(t, os.Getpid(), lock.PID)
			assert.Equal(t, "run", lock.Command)
		})
	}
}

func TestReleaseLock(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, AcquireLock(dir, "me", "run"))

	// Another run's release leaves the lock alone.
	require.NoError(t, ReleaseLock(dir, "someone-else"))
	lock, err := LoadLock(dir)
	require.NoError(t, err)
	assert.NotNil(t, lock)

	require.NoError(t, ReleaseLock(dir, "me"))
	lock, err = LoadLock(dir)
	require.NoError(t, err)
	assert.Nil(t, lock)

	require.NoError(t, ReleaseLock(dir, "me"), "releasing twice is harmless")
}

func TestIsLockStale(t *testing.T) {
	t.Parallel()

	assert.True(t, IsLockStale(nil))
	assert.True(t, IsLockStale(&RunLock{PID: 0}))
	assert.False(t, IsLockStale(&RunLock{PID: os.Getpid()}))
}

func TestAcquireLock_ConcurrentRunsExclusive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	const runs = 8

	var wg sync.WaitGroup
	errs := make([]error, runs)
	for i := range runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = AcquireLock(dir, fmt.Sprintf("run-%d", i), "run")
		}()
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.Equal(t, clierrors.Runtime, clierrors.CategoryOf(err))
	}
	assert.Equal(t, 1, won, "exactly one run holds the lock")

	lock, err := LoadLock(dir)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, os.Getpid(), lock.PID)
}

func TestReclaimLock_KeepsFreshLock(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestLock(t, dir, &RunLock{RunID: "fresh", PID: os.Getpid(), StartedAt: time.Now()})

	stale := &RunLock{RunID: "old", PID: 0}
	require.NoError(t, reclaimLock(GetLockPath(dir), "me", stale))

	lock, err := LoadLock(dir)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, "fresh", lock.RunID)
}
