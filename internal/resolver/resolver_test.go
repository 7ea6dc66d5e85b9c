package resolver

import (
	"errors"
	"testing"

	"github.com/ariel-frischer/proctest/internal/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	reg  *node.Registry
	root *node.Node
}

// newFixture builds root(g1, mode) -> [C1, C2]; C2 declares decls.
func newFixture(t *testing.T, mode node.Sequencing, decls ...node.Prerequisite) (*fixture, *node.Node, *node.Node) {
	t.Helper()

	root := node.New(node.Identity{Group: "g1", Class: "Parent", Method: "run"})
	root.Sequencing = mode
	c1 := root.AddChild(node.NewIdentity("Parent", "c1"))
	c2 := root.AddChild(node.NewIdentity("Parent", "c2"))
	c2.Declared = decls

	reg, err := node.Sequence([]*node.Node{root})
	require.NoError(t, err)
	return &fixture{reg: reg, root: root}, c1, c2
}

func TestResolve_ScenarioA_Sequential(t *testing.T) {
	t.Parallel()

	fx, c1, c2 := newFixture(t, node.SequentialAbort, node.Requires("Parent", "c1"))
	edges, err := Resolve(fx.reg, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, edges)

	assert.Equal(t, []int{c1.Seq}, c2.Prereqs.Fixed)
	assert.Equal(t, []int{c2.Seq}, c1.Dependents.Fixed, "edges are symmetric")
}

func TestResolve_ScenarioB_ParallelRace(t *testing.T) {
	t.Parallel()

	fx, _, _ := newFixture(t, node.Parallel, node.Requires("Parent", "c1"))
	edges, err := Resolve(fx.reg, nil)
	require.Error(t, err)
	assert.Equal(t, 0, edges)

	var cfgErr *node.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Message, "race condition")
	assert.Contains(t, cfgErr.Message, "g1:Parent.c1")
	assert.Contains(t, cfgErr.Message, "g1:Parent.c2")
	assert.Contains(t, cfgErr.Message, "g1:Parent.run", "names the parallel ancestor")
	assert.Len(t, cfgErr.Nodes, 3)
}

func TestResolve_Multiplicity(t *testing.T) {
	t.Parallel()

	build := func(mult node.Multiplicity) (*node.Registry, []*node.Node, *node.Node) {
		root := node.New(node.Identity{Group: "g", Class: "S", Method: "run"})
		root.Sequencing = node.SequentialContinue
		var targets []*node.Node
		for _, arg := range []string{"1", "2", "3"} {
			targets = append(targets, root.AddChild(node.NewIdentity("S", "param").WithArg(arg)))
		}
		dep := root.AddChild(node.NewIdentity("S", "dep"))
		dep.Declared = []node.Prerequisite{{Class: "S", Method: "param", AnyArg: true, Multiplicity: mult}}
		reg, err := node.Sequence([]*node.Node{root})
		require.NoError(t, err)
		return reg, targets, dep
	}

	t.Run("ALL binds every match", func(t *testing.T) {
		t.Parallel()
		reg, targets, dep := build(node.All)
		edges, err := Resolve(reg, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, edges)
		assert.Equal(t, []int{targets[0].Seq, targets[1].Seq, targets[2].Seq}, dep.Prereqs.Fixed)
		for _, tgt := range targets {
			assert.Equal(t, []int{dep.Seq}, tgt.Dependents.Fixed)
		}
	})

	t.Run("FIRST binds the lowest index", func(t *testing.T) {
		t.Parallel()
		reg, targets, dep := build(node.First)
		edges, err := Resolve(reg, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, edges)
		assert.Equal(t, []int{targets[0].Seq}, dep.Prereqs.Fixed)
	})
}

func TestResolve_NoMatch(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		mult node.Multiplicity
	}{
		"FIRST": {mult: node.First},
		"ALL":   {mult: node.All},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			decl := node.Requires("Parent", "missing")
			decl.Multiplicity = tt.mult
			fx, _, _ := newFixture(t, node.SequentialAbort, decl)
			_, err := Resolve(fx.reg, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "matches no node")
			var cfgErr *node.ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestResolve_LaterSibling(t *testing.T) {
	t.Parallel()

	root := node.New(node.Identity{Group: "g", Class: "P", Method: "run"})
	c1 := root.AddChild(node.NewIdentity("P", "c1"))
	root.AddChild(node.NewIdentity("P", "c2"))
	c1.Declared = []node.Prerequisite{node.Requires("P", "c2")}
	reg, err := node.Sequence([]*node.Node{root})
	require.NoError(t, err)

	_, err = Resolve(reg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedules after it")
}

func TestResolve_AncestorAndDescendant(t *testing.T) {
	t.Parallel()

	root := node.New(node.Identity{Group: "g", Class: "P", Method: "run"})
	child := root.AddChild(node.NewIdentity("P", "child"))
	child.Declared = []node.Prerequisite{node.Requires("P", "run")}
	root.Declared = []node.Prerequisite{node.Requires("P", "child")}
	reg, err := node.Sequence([]*node.Node{root})
	require.NoError(t, err)

	_, err = Resolve(reg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot require its ancestor")
	assert.Contains(t, err.Error(), "cannot require its descendant")
}

func TestResolve_CrossGroup(t *testing.T) {
	t.Parallel()

	g1 := node.New(node.Identity{Group: "g1", Class: "A", Method: "run"})
	setup := g1.AddChild(node.NewIdentity("A", "setup"))
	g2 := node.New(node.Identity{Group: "g2", Class: "B", Method: "run"})
	use := g2.AddChild(node.NewIdentity("B", "use"))
	use.Declared = []node.Prerequisite{{Class: "A", Method: "setup", Groups: []string{"g1"}}}
	setup.Declared = []node.Prerequisite{node.Requires("B", "use")}

	reg, err := node.Sequence([]*node.Node{g1, g2})
	require.NoError(t, err)

	_, err = Resolve(reg, nil)
	require.Error(t, err, "g1 cannot wait for g2")
	assert.Contains(t, err.Error(), "runs after group")
	assert.Equal(t, []int{setup.Seq}, use.Prereqs.Fixed, "valid cross-group edge still bound")
}

func TestResolve_GroupRestriction(t *testing.T) {
	t.Parallel()

	g1 := node.New(node.Identity{Group: "g1", Class: "A", Method: "run"})
	g1.AddChild(node.NewIdentity("Shared", "init"))
	g2 := node.New(node.Identity{Group: "g2", Class: "B", Method: "run"})
	g2.Sequencing = node.SequentialContinue
	local := g2.AddChild(node.NewIdentity("Shared", "init"))
	dep := g2.AddChild(node.NewIdentity("B", "dep"))
	dep.Declared = []node.Prerequisite{{Class: "Shared", Method: "init", Groups: []string{"g2"}}}

	reg, err := node.Sequence([]*node.Node{g1, g2})
	require.NoError(t, err)

	_, err = Resolve(reg, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{local.Seq}, dep.Prereqs.Fixed)
}

func TestResolve_IncludeSubtree(t *testing.T) {
	t.Parallel()

	root := node.New(node.Identity{Group: "g", Class: "P", Method: "run"})
	setup := root.AddChild(node.NewIdentity("P", "setup"))
	s1 := setup.AddChild(node.NewIdentity("P", "s1"))
	s2 := setup.AddChild(node.NewIdentity("P", "s2"))
	dep := root.AddChild(node.NewIdentity("P", "dep"))
	dep.Declared = []node.Prerequisite{{Class: "P", Method: "setup", IncludeSubtree: true}}

	reg, err := node.Sequence([]*node.Node{root})
	require.NoError(t, err)

	edges, err := Resolve(reg, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, edges)
	assert.ElementsMatch(t, []int{setup.Seq, s1.Seq, s2.Seq}, dep.Prereqs.Fixed)
}

func TestResolve_Conditional(t *testing.T) {
	t.Parallel()

	root := node.New(node.Identity{Group: "g", Class: "P", Method: "run"})
	root.Sequencing = node.SequentialContinue
	passed := root.AddChild(node.NewIdentity("P", "passed"))
	failed := root.AddChild(node.NewIdentity("P", "failed"))
	dep := root.AddChild(node.NewIdentity("P", "dep"))
	passed.PrevState = node.CompleteSucceeded
	failed.PrevState = node.CompleteFailed
	dep.Declared = []node.Prerequisite{
		{Class: "P", Method: "passed", Kind: node.Conditional},
		{Class: "P", Method: "failed", Kind: node.Conditional},
	}

	reg, err := node.Sequence([]*node.Node{root})
	require.NoError(t, err)

	_, err = Resolve(reg, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{passed.Seq}, dep.Prereqs.Satisfied)
	assert.Equal(t, []int{failed.Seq}, dep.Prereqs.Pending)
	assert.Empty(t, dep.Prereqs.Fixed)
	assert.Equal(t, []int{dep.Seq}, passed.Dependents.Satisfied)
	assert.Equal(t, []int{dep.Seq}, failed.Dependents.Pending)
}

func TestResolve_Idempotent(t *testing.T) {
	t.Parallel()

	fx, c1, c2 := newFixture(t, node.SequentialAbort, node.Requires("Parent", "c1"))
	_, err := Resolve(fx.reg, nil)
	require.NoError(t, err)
	_, err = Resolve(fx.reg, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{c1.Seq}, c2.Prereqs.Fixed)
	assert.Equal(t, []int{c2.Seq}, c1.Dependents.Fixed)
}
