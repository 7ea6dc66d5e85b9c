package node

import (
	"fmt"
	"slices"
	"time"
)

// Unsequenced is the Seq value of a node before global sequencing.
const Unsequenced = -1

// EdgeKind selects one partition of a resolved edge set.
type EdgeKind int

const (
	// EdgeFixed edges must succeed in this run.
	EdgeFixed EdgeKind = iota
	// EdgePending edges are conditional and not yet satisfied by a prior run.
	EdgePending
	// EdgeSatisfied edges are conditional and satisfied by a prior run.
	EdgeSatisfied
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeFixed:
		return "fixed"
	case EdgePending:
		return "not-yet-satisfied"
	case EdgeSatisfied:
		return "previously-satisfied"
	default:
		return fmt.Sprintf("EdgeKind(%d)", int(k))
	}
}

// Edges holds resolved sequence indices partitioned by kind.
type Edges struct {
	Fixed     []int
	Pending   []int
	Satisfied []int
}

// Required returns the fixed and not-yet-satisfied indices, the ones that
// gate eligibility.
func (e *Edges) Required() []int {
	out := make([]int, 0, len(e.Fixed)+len(e.Pending))
	out = append(out, e.Fixed...)
	return append(out, e.Pending...)
}

// All returns every index in all partitions.
func (e *Edges) All() []int {
	out := e.Required()
	return append(out, e.Satisfied...)
}

// Len is the number of edges across partitions.
func (e *Edges) Len() int {
	return len(e.Fixed) + len(e.Pending) + len(e.Satisfied)
}

// add appends seq to kind unless already present in any partition.
func (e *Edges) add(kind EdgeKind, seq int) bool {
	if slices.Contains(e.Fixed, seq) || slices.Contains(e.Pending, seq) || slices.Contains(e.Satisfied, seq) {
		return false
	}
	switch kind {
	case EdgeFixed:
		e.Fixed = append(e.Fixed, seq)
	case EdgePending:
		e.Pending = append(e.Pending, seq)
	default:
		e.Satisfied = append(e.Satisfied, seq)
	}
	return true
}

// Reset drops all resolved edges.
func (e *Edges) Reset() {
	*e = Edges{}
}

// Failure is one captured unit-under-test or internal failure.
type Failure struct {
	Message string
	// Internal marks failures raised by the engine rather than the unit.
	Internal bool
}

// Node is one test instance in the tree.
type Node struct {
	ID  Identity
	Seq int

	State State
	// PrevState is the outcome recorded for this node by the previous run.
	PrevState State

	// Run is the selection flag carried across runs.
	Run bool
	// AltRun is the command-line/tag-driven selection flag.
	AltRun   bool
	Expanded bool

	Sequencing   Sequencing
	Continuation Continuation
	Declared     []Prerequisite
	Tags         []string
	Requirements []string
	// Supports lists the requirements this node was found to support.
	Supports []string

	Prereqs    Edges
	Dependents Edges

	Failures []Failure
	Messages []string
	Started  time.Time
	Finished time.Time

	initialized bool
	parent      *Node
	children    []*Node
}

// New returns an unsequenced, uninitialized node selected by default.
func New(id Identity) *Node {
	return &Node{
		ID:        id,
		Seq:       Unsequenced,
		State:     Uninitialized,
		PrevState: Uninitialized,
		Run:       true,
	}
}

// AddChild creates a child in n's group and appends it to n's children.
func (n *Node) AddChild(id Identity) *Node {
	id.Group = n.ID.Group
	child := New(id)
	n.Attach(child)
	return child
}

// Attach appends an existing node as the last child of n.
func (n *Node) Attach(child *Node) {
	child.parent = n
	n.children = append(n.children, child)
}

// Parent returns the enclosing node, nil for a group root.
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns the ordered children. The slice must not be modified.
func (n *Node) Children() []*Node {
	return n.children
}

// Child returns the i-th child or nil.
func (n *Node) Child(i int) *Node {
	if i < 0 || i >= len(n.children) {
		return nil
	}
	return n.children[i]
}

// Ordinal is n's position among its siblings, 0 for a root.
func (n *Node) Ordinal() int {
	if n.parent == nil {
		return 0
	}
	return slices.Index(n.parent.children, n)
}

// Ancestors returns the chain from the root down to n's parent.
func (n *Node) Ancestors() []*Node {
	var chain []*Node
	for p := n.parent; p != nil; p = p.parent {
		chain = append(chain, p)
	}
	slices.Reverse(chain)
	return chain
}

// IsAncestorOf reports whether n is a proper ancestor of other.
func (n *Node) IsAncestorOf(other *Node) bool {
	for p := other.parent; p != nil; p = p.parent {
		if p == n {
			return true
		}
	}
	return false
}

// Depth is 0 for a root.
func (n *Node) Depth() int {
	d := 0
	for p := n.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// Walk visits n and its descendants in pre-order. Returning false from fn
// prunes the subtree below the visited node.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// Size counts n and all descendants.
func (n *Node) Size() int {
	count := 0
	n.Walk(func(*Node) bool {
		count++
		return true
	})
	return count
}

// Initialized reports whether Initialize has been called this pass.
func (n *Node) Initialized() bool {
	return n.initialized
}

// Initialize records the options a unit declares for itself. It must be
// called exactly once per pass while the node is UNINITIALIZED.
func (n *Node) Initialize(opts Options) error {
	if n.initialized {
		return &ConfigError{
			Message: fmt.Sprintf("%s: %v", n.ID.Qualified(), ErrAlreadyInitialized),
			Nodes:   []Identity{n.ID},
		}
	}
	if n.State != Uninitialized {
		return &ConfigError{
			Message: fmt.Sprintf("%s: %v (state %s)", n.ID.Qualified(), ErrNotInitial, n.State),
			Nodes:   []Identity{n.ID},
		}
	}
	for _, p := range opts.Prerequisites {
		if err := p.Validate(); err != nil {
			return &ConfigError{
				Message: fmt.Sprintf("%s: %v", n.ID.Qualified(), err),
				Nodes:   []Identity{n.ID},
			}
		}
	}

	n.initialized = true
	n.State = Initialized
	n.Sequencing = opts.Sequencing
	n.Continuation = opts.Continuation
	n.Declared = slices.Clone(opts.Prerequisites)
	n.Tags = slices.Clone(opts.Tags)
	n.Requirements = slices.Clone(opts.Requirements)
	return nil
}

// ResetRun clears per-run execution data so the node can be replayed by a
// new pass. Structure, selection, declarations and resolved edges are kept.
func (n *Node) ResetRun() {
	n.initialized = false
	n.State = Uninitialized
	n.Failures = nil
	n.Messages = nil
	n.Started = time.Time{}
	n.Finished = time.Time{}
}

// Fail records a failure. Any failure marks the node failed on completion.
func (n *Node) Fail(msg string) {
	n.Failures = append(n.Failures, Failure{Message: msg})
}

// FailInternal records an engine-side failure.
func (n *Node) FailInternal(msg string) {
	n.Failures = append(n.Failures, Failure{Message: msg, Internal: true})
}

// Failed reports whether any local failure was captured.
func (n *Node) Failed() bool {
	return len(n.Failures) > 0
}

// Duration is the wall time between start and finish, zero if not both set.
func (n *Node) Duration() time.Duration {
	if n.Started.IsZero() || n.Finished.IsZero() {
		return 0
	}
	return n.Finished.Sub(n.Started)
}

// HasTag reports whether n declares tag.
func (n *Node) HasTag(tag string) bool {
	return slices.Contains(n.Tags, tag)
}

// Heading is the one-line label presentation layers show for n.
func (n *Node) Heading() string {
	if n.Seq == Unsequenced {
		return n.ID.String()
	}
	return fmt.Sprintf("#%d %s", n.Seq, n.ID.String())
}
