package node

import (
	"fmt"
)

// GroupRange is the contiguous block of sequence indices owned by a group.
type GroupRange struct {
	Name  string
	First int
	Count int
}

// Contains reports whether seq falls inside the range.
func (g GroupRange) Contains(seq int) bool {
	return seq >= g.First && seq < g.First+g.Count
}

// Registry is the index-addressed arena of all nodes in a run, ordered by
// global sequence index.
type Registry struct {
	nodes  []*Node
	roots  []*Node
	groups []GroupRange
}

// Sequence assigns global sequence indices to every node of roots, group by
// group in the given order and pre-order within each tree, and returns the
// registry over them. Indices are assigned exactly once: a node that already
// carries one is an error.
func Sequence(roots []*Node) (*Registry, error) {
	r := &Registry{}
	for _, root := range roots {
		if root.parent != nil {
			return nil, fmt.Errorf("sequencing %s: not a root", root.ID.Qualified())
		}
		first := len(r.nodes)
		var err error
		root.Walk(func(n *Node) bool {
			if err != nil {
				return false
			}
			if n.Seq != Unsequenced {
				err = fmt.Errorf("sequencing %s: index %d already assigned", n.ID.Qualified(), n.Seq)
				return false
			}
			n.Seq = len(r.nodes)
			r.nodes = append(r.nodes, n)
			return true
		})
		if err != nil {
			return nil, err
		}
		r.roots = append(r.roots, root)
		r.groups = append(r.groups, GroupRange{Name: root.ID.Group, First: first, Count: len(r.nodes) - first})
	}
	return r, nil
}

// Register builds a registry over roots whose nodes already carry sequence
// indices (for example, trees loaded from snapshots). Indices must be unique
// and contiguous from zero across all roots, and each group's indices must
// form one block.
func Register(roots []*Node) (*Registry, error) {
	r := &Registry{}
	total := 0
	for _, root := range roots {
		total += root.Size()
	}
	r.nodes = make([]*Node, total)
	for _, root := range roots {
		lo, hi := total, -1
		var err error
		root.Walk(func(n *Node) bool {
			if err != nil {
				return false
			}
			if n.Seq < 0 || n.Seq >= total {
				err = fmt.Errorf("registering %s: index %d outside 0..%d", n.ID.Qualified(), n.Seq, total-1)
				return false
			}
			if r.nodes[n.Seq] != nil {
				err = fmt.Errorf("registering %s: index %d already used by %s",
					n.ID.Qualified(), n.Seq, r.nodes[n.Seq].ID.Qualified())
				return false
			}
			r.nodes[n.Seq] = n
			lo = min(lo, n.Seq)
			hi = max(hi, n.Seq)
			return true
		})
		if err != nil {
			return nil, err
		}
		count := hi - lo + 1
		if count != root.Size() {
			return nil, fmt.Errorf("registering group %q: indices %d..%d are not contiguous", root.ID.Group, lo, hi)
		}
		r.roots = append(r.roots, root)
		r.groups = append(r.groups, GroupRange{Name: root.ID.Group, First: lo, Count: count})
	}
	return r, nil
}

// Len is the number of registered nodes.
func (r *Registry) Len() int {
	return len(r.nodes)
}

// Node returns the node with sequence index seq.
func (r *Registry) Node(seq int) (*Node, bool) {
	if seq < 0 || seq >= len(r.nodes) {
		return nil, false
	}
	return r.nodes[seq], true
}

// MustNode is Node for indices known to be valid, such as resolved edges.
func (r *Registry) MustNode(seq int) *Node {
	n, ok := r.Node(seq)
	if !ok {
		panic(fmt.Sprintf("node: sequence index %d not registered", seq))
	}
	return n
}

// Nodes returns all nodes in sequence order. The slice must not be modified.
func (r *Registry) Nodes() []*Node {
	return r.nodes
}

// Lookup maps indices to nodes, skipping unknown ones.
func (r *Registry) Lookup(seqs []int) []*Node {
	out := make([]*Node, 0, len(seqs))
	for _, s := range seqs {
		if n, ok := r.Node(s); ok {
			out = append(out, n)
		}
	}
	return out
}

// Roots returns the group roots in sequencing order.
func (r *Registry) Roots() []*Node {
	return r.roots
}

// Groups returns the index range of every group.
func (r *Registry) Groups() []GroupRange {
	return r.groups
}

// Group returns the range for the named group.
func (r *Registry) Group(name string) (GroupRange, bool) {
	for _, g := range r.groups {
		if g.Name == name {
			return g, true
		}
	}
	return GroupRange{}, false
}

// GroupOf returns the name of the group owning seq.
func (r *Registry) GroupOf(seq int) string {
	for _, g := range r.groups {
		if g.Contains(seq) {
			return g.Name
		}
	}
	return ""
}

// Link records a resolved edge symmetrically: prereq joins dependent's
// prerequisite set and dependent joins prereq's dependent set, both under
// kind. Duplicate edges are ignored. It returns whether a new edge was added.
func Link(prereq, dependent *Node, kind EdgeKind) bool {
	if !dependent.Prereqs.add(kind, prereq.Seq) {
		return false
	}
	prereq.Dependents.add(kind, dependent.Seq)
	return true
}

// ResetEdges clears resolved edges on every node, ahead of re-resolution.
func (r *Registry) ResetEdges() {
	for _, n := range r.nodes {
		n.Prereqs.Reset()
		n.Dependents.Reset()
	}
}

// ClosestCommonAncestor walks both ancestor chains from the root and returns
// the deepest node shared by both, counting each node as its own ancestor.
// It returns nil when a and b are in different trees.
func ClosestCommonAncestor(a, b *Node) *Node {
	chainA := append(a.Ancestors(), a)
	chainB := append(b.Ancestors(), b)
	var common *Node
	for i := 0; i < len(chainA) && i < len(chainB); i++ {
		if chainA[i] != chainB[i] {
			break
		}
		common = chainA[i]
	}
	return common
}
