package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence_ContiguousAndUnique(t *testing.T) {
	t.Parallel()

	r1, _, _, _ := buildTree("g1")
	r2, _, _, _ := buildTree("g2")

	reg, err := Sequence([]*Node{r1, r2})
	require.NoError(t, err)
	require.Equal(t, 8, reg.Len())

	seen := make(map[int]bool)
	for i, n := range reg.Nodes() {
		assert.Equal(t, i, n.Seq)
		assert.False(t, seen[n.Seq])
		seen[n.Seq] = true
	}

	// pre-order within a group
	assert.Equal(t, []string{"run", "a", "a1", "b"}, []string{
		reg.MustNode(0).ID.Method, reg.MustNode(1).ID.Method, reg.MustNode(2).ID.Method, reg.MustNode(3).ID.Method,
	})

	assert.Equal(t, []GroupRange{{Name: "g1", First: 0, Count: 4}, {Name: "g2", First: 4, Count: 4}}, reg.Groups())
	assert.Equal(t, "g2", reg.GroupOf(5))
	assert.Equal(t, "", reg.GroupOf(99))
}

func TestSequence_AssignedOnce(t *testing.T) {
	t.Parallel()

	root, _, _, _ := buildTree("g1")
	_, err := Sequence([]*Node{root})
	require.NoError(t, err)

	_, err = Sequence([]*Node{root})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already assigned")
}

func TestRegister(t *testing.T) {
	t.Parallel()

	r1, _, _, _ := buildTree("g1")
	r2, _, _, _ := buildTree("g2")
	_, err := Sequence([]*Node{r1, r2})
	require.NoError(t, err)

	reg, err := Register([]*Node{r1, r2})
	require.NoError(t, err)
	assert.Equal(t, 8, reg.Len())
	g, ok := reg.Group("g2")
	require.True(t, ok)
	assert.Equal(t, 4, g.First)

	// a single group alone does not start at zero
	_, err = Register([]*Node{r2})
	assert.Error(t, err)
}

func TestRegister_Duplicate(t *testing.T) {
	t.Parallel()

	root, a, _, _ := buildTree("g1")
	_, err := Sequence([]*Node{root})
	require.NoError(t, err)
	a.Seq = 0

	_, err = Register([]*Node{root})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already used")
}

func TestLink_Symmetric(t *testing.T) {
	t.Parallel()

	root, a, a1, b := buildTree("g1")
	_, err := Sequence([]*Node{root})
	require.NoError(t, err)

	assert.True(t, Link(a, b, EdgeFixed))
	assert.False(t, Link(a, b, EdgePending), "duplicate edge")
	assert.True(t, Link(a1, b, EdgeSatisfied))

	assert.Equal(t, []int{a.Seq}, b.Prereqs.Fixed)
	assert.Equal(t, []int{b.Seq}, a.Dependents.Fixed)
	assert.Empty(t, b.Prereqs.Pending)
	assert.Equal(t, []int{a1.Seq}, b.Prereqs.Satisfied)
	assert.Equal(t, []int{b.Seq}, a1.Dependents.Satisfied)
	assert.Equal(t, []int{a.Seq}, b.Prereqs.Required())
	assert.Equal(t, 2, b.Prereqs.Len())
}

func TestClosestCommonAncestor(t *testing.T) {
	t.Parallel()

	root, a, a1, b := buildTree("g1")
	other, _, _, _ := buildTree("g2")

	assert.Same(t, root, ClosestCommonAncestor(a1, b))
	assert.Same(t, a, ClosestCommonAncestor(a, a1))
	assert.Same(t, a1, ClosestCommonAncestor(a1, a1))
	assert.Nil(t, ClosestCommonAncestor(a1, other))
}
