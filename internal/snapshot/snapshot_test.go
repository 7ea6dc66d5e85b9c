package snapshot

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ariel-frischer/proctest/internal/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func sampleTree(t *testing.T) *node.Node {
	t.Helper()

	root := node.New(node.Identity{Group: "g", Class: "Suite", Method: "run"})
	require.NoError(t, root.Initialize(node.Options{
		Sequencing: node.Parallel,
		Tags:       []string{"smoke"},
	}))
	a := root.AddChild(node.NewIdentity("Suite", "a"))
	b := root.AddChild(node.NewIdentity("Suite", "b").WithArg("x"))
	require.NoError(t, b.Initialize(node.Options{
		Continuation:  node.SkipOnFailure,
		Prerequisites: []node.Prerequisite{{Class: "Suite", Method: "a", Groups: []string{"g"}, Multiplicity: node.All, Kind: node.Conditional}},
		Requirements:  []string{"REQ-1"},
	}))
	b.AddChild(node.NewIdentity("Suite", "leaf"))

	_, err := node.Sequence([]*node.Node{root})
	require.NoError(t, err)
	node.Link(a, b, node.EdgeFixed)

	b.Run = false
	b.AltRun = true
	b.Expanded = true
	a.PrevState = node.CompleteSucceeded
	return root
}

func TestRoundTrip_Configuration(t *testing.T) {
	t.Parallel()

	root := sampleTree(t)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Header{Branch: "main", Kind: KindConfiguration, Group: "g"}, root))

	got, hdr, err := Decode(&buf, "main", KindConfiguration)
	require.NoError(t, err)
	assert.Equal(t, Version, hdr.Version)
	assert.Equal(t, "g", hdr.Group)

	require.Len(t, got.Children(), 2)
	assert.Equal(t, root.ID, got.ID)
	assert.Equal(t, node.Parallel, got.Sequencing)
	assert.Equal(t, []string{"smoke"}, got.Tags)

	a, b := got.Child(0), got.Child(1)
	assert.Equal(t, node.CompleteSucceeded, a.PrevState)
	assert.Equal(t, []int{b.Seq}, a.Dependents.Fixed)
	assert.Equal(t, []int{a.Seq}, b.Prereqs.Fixed)

	assert.Equal(t, root.Child(1).ID, b.ID)
	assert.False(t, b.Run)
	assert.True(t, b.AltRun)
	assert.True(t, b.Expanded)
	assert.Equal(t, node.SkipOnFailure, b.Continuation)
	assert.Equal(t, root.Child(1).Declared, b.Declared)
	assert.Equal(t, []string{"REQ-1"}, b.Requirements)
	assert.Equal(t, node.Uninitialized, b.State, "configuration carries no outcome")

	leaf := b.Child(0)
	assert.Equal(t, 3, leaf.Seq)
	assert.Equal(t, "g", leaf.ID.Group)
	assert.Same(t, b, leaf.Parent())
}

func TestRoundTrip_Results(t *testing.T) {
	t.Parallel()

	root := sampleTree(t)
	b := root.Child(1)
	b.State = node.CompleteFailed
	b.FailInternal("boom")
	b.Messages = []string{"hello"}
	b.Supports = []string{"REQ-1"}
	b.Started = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b.Finished = b.Started.Add(2 * time.Second)

	path := filepath.Join(t.TempDir(), "results.bin")
	require.NoError(t, Save(path, Header{Branch: "main", Kind: KindResults, Group: "g"}, root))

	got, _, err := Load(path, "main", KindResults)
	require.NoError(t, err)

	gb := got.Child(1)
	assert.Equal(t, node.CompleteFailed, gb.State)
	assert.Equal(t, []node.Failure{{Message: "boom", Internal: true}}, gb.Failures)
	assert.Equal(t, []string{"hello"}, gb.Messages)
	assert.Equal(t, []string{"REQ-1"}, gb.Supports)
	assert.True(t, b.Started.Equal(gb.Started))
	assert.Equal(t, 2*time.Second, gb.Duration())
	assert.Empty(t, gb.Prereqs.Fixed, "results carry no configuration")
}

func TestDecode_Rejects(t *testing.T) {
	t.Parallel()

	root := node.New(node.Identity{Group: "g", Class: "S", Method: "run"})
	root.Seq = 0

	encodeRaw := func(hdr Header) *bytes.Buffer {
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		require.NoError(t, enc.Encode(&hdr))
		require.NoError(t, enc.Encode(fromNode(root, hdr.Kind)))
		return &buf
	}

	tests := map[string]struct {
		hdr     Header
		want    error
		absence bool
	}{
		"newer version": {
			hdr:     Header{Version: Version + 1, Branch: "main", Kind: KindResults},
			want:    ErrNewerVersion,
			absence: true,
		},
		"other branch": {
			hdr:     Header{Version: Version, Branch: "release", Kind: KindResults},
			want:    ErrBranchMismatch,
			absence: true,
		},
		"other kind": {
			hdr:  Header{Version: Version, Branch: "main", Kind: KindConfiguration},
			want: ErrKindMismatch,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := Decode(encodeRaw(tc.hdr), "main", KindResults)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, tc.absence, IsAbsent(err))
		})
	}
}

func TestLoadOptional(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	got, err := LoadOptional(filepath.Join(dir, "missing.bin"), "main", KindResults)
	require.NoError(t, err)
	assert.Nil(t, got)

	root := node.New(node.Identity{Group: "g", Class: "S", Method: "run"})
	root.Seq = 0
	path := filepath.Join(dir, "other.bin")
	require.NoError(t, Save(path, Header{Branch: "dev", Kind: KindResults}, root))
	got, err = LoadOptional(path, "main", KindResults)
	require.NoError(t, err, "branch mismatch is treated as no data")
	assert.Nil(t, got)

	corrupt := filepath.Join(dir, "corrupt.bin")
	require.NoError(t, os.WriteFile(corrupt, []byte{0xc1, 0x00}, 0o644))
	_, err = LoadOptional(corrupt, "main", KindResults)
	assert.Error(t, err, "corrupt data is not absence")
}
