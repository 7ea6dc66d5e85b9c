package orchestrator

import (
	"testing"

	"github.com/ariel-frischer/proctest/internal/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePattern(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		input   string
		want    Pattern
		wantErr bool
	}{
		"sequence index": {
			input: "#12",
			want:  Pattern{Seq: 12},
		},
		"class only": {
			input: "Login",
			want:  Pattern{Seq: node.Unsequenced, Class: "Login"},
		},
		"qualified with argument": {
			input: "web:Login.submit(admin)",
			want:  Pattern{Seq: node.Unsequenced, Group: "web", Class: "Login", Method: "submit", Arg: "admin", HasArg: true},
		},
		"globs": {
			input: "*:Log*.sub?",
			want:  Pattern{Seq: node.Unsequenced, Group: "*", Class: "Log*", Method: "sub?"},
		},
		"empty":             {input: " ", wantErr: true},
		"bad index":         {input: "#x", wantErr: true},
		"negative index":    {input: "#-1", wantErr: true},
		"unclosed argument": {input: "A.b(c", wantErr: true},
		"missing class":     {input: "g:.m", wantErr: true},
		"bad glob":          {input: "A[.m", wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePattern(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPattern_Matches(t *testing.T) {
	t.Parallel()

	n := node.New(node.Identity{Group: "web", Class: "Login", Method: "submit", Arg: "admin", HasArg: true})
	n.Seq = 7

	tests := map[string]bool{
		"#7":                  true,
		"#8":                  false,
		"Login":               true,
		"Login.submit":        true,
		"Login.submit(admin)": true,
		"Login.submit(guest)": false,
		"web:Login.*":         true,
		"api:Login.submit":    false,
		"L*":                  true,
		"Logout":              false,
		"*:*.sub*":            true,
	}
	for input, want := range tests {
		p, err := ParsePattern(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, p.Matches(n), input)
	}

	p, err := ParsePattern("web:Login.submit(admin)")
	require.NoError(t, err)
	assert.Equal(t, "web:Login.submit(admin)", p.String())
}
