package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	name     string
	exitCode int
	duration time.Duration
	calls    int
}

func (r *recorder) OnCommandComplete(name string, exitCode int, duration time.Duration) {
	r.name, r.exitCode, r.duration = name, exitCode, duration
	r.calls++
}

func exitCode(err error) int {
	if err != nil {
		return 7
	}
	return 0
}

func TestRun(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	tests := map[string]struct {
		fnErr    error
		wantCode int
	}{
		"success": {fnErr: nil, wantCode: 0},
		"failure": {fnErr: errBoom, wantCode: 7},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			rec := &recorder{}
			err := Run(rec, "select", exitCode, func() error {
				time.Sleep(time.Millisecond)
				return tt.fnErr
			})
			assert.ErrorIs(t, err, tt.fnErr)
			assert.Equal(t, 1, rec.calls)
			assert.Equal(t, "select", rec.name)
			assert.Equal(t, tt.wantCode, rec.exitCode)
			assert.GreaterOrEqual(t, rec.duration, time.Millisecond)
		})
	}
}

func TestRun_NilHandler(t *testing.T) {
	t.Parallel()

	called := false
	err := Run(nil, "tree", exitCode, func() error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)
}
