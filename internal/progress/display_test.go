package progress

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/ariel-frischer/proctest/internal/coordinator"
	"github.com/stretchr/testify/assert"
)

func TestSelectSymbols(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		caps    TerminalCapabilities
		wantOK  string
		wantSet int
	}{
		"unicode": {caps: TerminalCapabilities{SupportsUnicode: true}, wantOK: "✓", wantSet: 14},
		"ascii":   {caps: TerminalCapabilities{}, wantOK: "[OK]", wantSet: 9},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got := SelectSymbols(tt.caps)
			assert.Equal(t, tt.wantOK, got.Checkmark)
			assert.Equal(t, tt.wantSet, got.SpinnerSet)
		})
	}
}

func TestDisplay_PlainOutput(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		res  coordinator.ProcessResult
		want string
	}{
		"clean": {
			res:  coordinator.ProcessResult{Duration: 1200 * time.Millisecond},
			want: "[OK] group g: process exited cleanly (1.2s)",
		},
		"crashed": {
			res:  coordinator.ProcessResult{ExitCode: 3, Salvaged: true},
			want: "[FAIL] group g: exited with code 3; outcomes salvaged (0s)",
		},
		"killed": {
			res:  coordinator.ProcessResult{ExitCode: -1, Killed: true, Salvaged: true},
			want: "[FAIL] group g: killed by the watchdog; outcomes salvaged (0s)",
		},
		"no results": {
			res:  coordinator.ProcessResult{Salvaged: true},
			want: "[FAIL] group g: exited without results (0s)",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			d := NewDisplay(&buf, TerminalCapabilities{})
			d.GroupStarted("g")
			d.GroupFinished("g", tt.res)
			assert.Equal(t, "verifying group g...\n"+tt.want+"\n", buf.String())
		})
	}
}

func TestDisplay_GroupFailed(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	d := NewDisplay(&buf, TerminalCapabilities{})
	d.GroupStarted("g")
	d.GroupFailed("g", errors.New("starting verification process"))
	assert.Equal(t, "verifying group g...\n[FAIL] group g: starting verification process\n", buf.String())
}
