package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenarioTree builds parent(mode) with children C1, C2 where C2 has a fixed
// prerequisite on C1, plus an unrelated sibling tree under a second root.
func scenarioTree(t *testing.T, mode Sequencing) (*Registry, *Node, *Node, *Node) {
	t.Helper()

	root := New(Identity{Group: "g", Class: "Root", Method: "run"})
	root.Sequencing = SequentialContinue
	parent := root.AddChild(NewIdentity("Parent", "run"))
	parent.Sequencing = mode
	c1 := parent.AddChild(NewIdentity("Parent", "c1"))
	c2 := parent.AddChild(NewIdentity("Parent", "c2"))

	reg, err := Sequence([]*Node{root})
	require.NoError(t, err)
	Link(c1, c2, EdgeFixed)
	reg.ClearSelection(RunFlag)
	return reg, parent, c1, c2
}

func TestSelect_PrerequisitesAndAncestors(t *testing.T) {
	t.Parallel()

	reg, parent, c1, c2 := scenarioTree(t, SequentialContinue)
	require.NoError(t, reg.SetRun(c2.Seq, RunFlag, true))

	assert.True(t, c2.Run)
	assert.True(t, c1.Run, "fixed prerequisite selected")
	assert.True(t, parent.Run, "parent selected")
	for _, a := range parent.Ancestors() {
		assert.True(t, a.Run, "ancestor %s selected", a.ID)
	}
	assert.False(t, c2.AltRun, "alternate flag untouched")
}

func TestSelect_AbortAncestorSelectsEarlierSiblings(t *testing.T) {
	t.Parallel()

	root := New(Identity{Group: "g", Class: "R", Method: "run"})
	root.Sequencing = SequentialAbort
	s1 := root.AddChild(NewIdentity("R", "s1"))
	s2 := root.AddChild(NewIdentity("R", "s2"))
	s3 := root.AddChild(NewIdentity("R", "s3"))
	reg, err := Sequence([]*Node{root})
	require.NoError(t, err)
	reg.ClearSelection(AltRunFlag)

	reg.Select(s2, AltRunFlag)

	assert.True(t, s1.AltRun)
	assert.True(t, s2.AltRun)
	assert.False(t, s3.AltRun)
	assert.True(t, root.AltRun)
}

func TestSelect_PreviouslySatisfiedNotPropagated(t *testing.T) {
	t.Parallel()

	root := New(Identity{Group: "g", Class: "R", Method: "run"})
	a := root.AddChild(NewIdentity("R", "a"))
	b := root.AddChild(NewIdentity("R", "b"))
	c := root.AddChild(NewIdentity("R", "c"))
	root.Sequencing = SequentialContinue
	reg, err := Sequence([]*Node{root})
	require.NoError(t, err)
	Link(a, c, EdgeSatisfied)
	Link(b, c, EdgePending)
	reg.ClearSelection(RunFlag)

	reg.Select(c, RunFlag)

	assert.False(t, a.Run)
	assert.True(t, b.Run)
}

func TestDeselect_CascadesToDependents(t *testing.T) {
	t.Parallel()

	reg, parent, c1, c2 := scenarioTree(t, SequentialContinue)
	reg.SelectAll(RunFlag)
	leaf := c2.AddChild(NewIdentity("Parent", "leaf"))
	leaf.Run = true

	require.NoError(t, reg.SetRun(c1.Seq, RunFlag, false))

	assert.False(t, c1.Run)
	assert.False(t, c2.Run, "dependent deselected")
	assert.False(t, leaf.Run, "dependent's subtree deselected")
	assert.True(t, parent.Run)
}

func TestSetRun_UnknownIndex(t *testing.T) {
	t.Parallel()

	reg, _, _, _ := scenarioTree(t, SequentialContinue)
	assert.Error(t, reg.SetRun(42, RunFlag, true))
	assert.Error(t, reg.SetExpanded(-1, true))
	require.NoError(t, reg.SetExpanded(0, true))
	assert.True(t, reg.MustNode(0).Expanded)
}

func TestSelectWhere_Tags(t *testing.T) {
	t.Parallel()

	reg, parent, c1, c2 := scenarioTree(t, SequentialContinue)
	c2.Tags = []string{"smoke"}

	matched := reg.SelectWhere(AltRunFlag, func(n *Node) bool { return n.HasTag("smoke") })

	assert.Equal(t, 1, matched)
	assert.True(t, c2.AltRun)
	assert.True(t, c1.AltRun)
	assert.True(t, parent.AltRun)
}

func TestSelectSubtrees(t *testing.T) {
	t.Parallel()

	reg, parent, c1, c2 := scenarioTree(t, Parallel)
	matched := reg.SelectSubtrees(AltRunFlag, func(n *Node) bool { return n == parent })
	assert.Equal(t, 1, matched)
	assert.True(t, c1.AltRun)
	assert.True(t, c2.AltRun)
}

func TestAutoSelectFailed(t *testing.T) {
	t.Parallel()

	reg, parent, c1, c2 := scenarioTree(t, SequentialContinue)
	for _, n := range reg.Nodes() {
		n.PrevState = CompleteSucceeded
	}
	c2.PrevState = CompleteFailed

	count := reg.AutoSelectFailed()

	assert.Equal(t, 1, count)
	assert.True(t, c2.Run)
	assert.True(t, c1.Run, "prerequisite of the failed node")
	assert.True(t, parent.Run)
}
