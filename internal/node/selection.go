package node

import "strconv"

// Flag selects which of a node's two run-selection flags an operation uses.
type Flag int

const (
	// RunFlag is carried across runs and edited through presentation layers.
	RunFlag Flag = iota
	// AltRunFlag is driven by command-line patterns and tags.
	AltRunFlag
)

func (f Flag) String() string {
	if f == AltRunFlag {
		return "alternate"
	}
	return "persisted"
}

// Selected reports n's value for flag f.
func (n *Node) Selected(f Flag) bool {
	if f == AltRunFlag {
		return n.AltRun
	}
	return n.Run
}

func (n *Node) setSelected(f Flag, v bool) {
	if f == AltRunFlag {
		n.AltRun = v
		return
	}
	n.Run = v
}

// SetRun is the presentation-layer mutation. Selecting propagates to
// required prerequisites and ancestors, deselecting cascades to dependents
// and descendants.
func (r *Registry) SetRun(seq int, f Flag, selected bool) error {
	n, ok := r.Node(seq)
	if !ok {
		return &ConfigError{Message: "no node with sequence index " + strconv.Itoa(seq)}
	}
	if selected {
		r.Select(n, f)
	} else {
		r.Deselect(n, f)
	}
	return nil
}

// SetExpanded is the presentation-layer mutation for tree expansion.
func (r *Registry) SetExpanded(seq int, expanded bool) error {
	n, ok := r.Node(seq)
	if !ok {
		return &ConfigError{Message: "no node with sequence index " + strconv.Itoa(seq)}
	}
	n.Expanded = expanded
	return nil
}

// Select sets flag f on n and, transitively, on its fixed and
// not-yet-satisfied prerequisites and on all ancestors. An ancestor that
// sequences with abort semantics also selects the siblings that precede the
// path to n, since such a run cannot skip ahead.
func (r *Registry) Select(n *Node, f Flag) {
	visited := make(map[*Node]bool)
	var visit func(*Node)
	visit = func(m *Node) {
		if visited[m] {
			return
		}
		visited[m] = true
		m.setSelected(f, true)

		for _, seq := range m.Prereqs.Required() {
			if p, ok := r.Node(seq); ok {
				visit(p)
			}
		}

		parent := m.parent
		if parent == nil {
			return
		}
		visit(parent)
		if parent.Sequencing == SequentialAbort {
			for _, sib := range parent.children {
				if sib == m {
					break
				}
				visit(sib)
			}
		}
	}
	visit(n)
}

// Deselect clears flag f on n, its descendants, and every dependent whose
// required prerequisite would then be missing.
func (r *Registry) Deselect(n *Node, f Flag) {
	visited := make(map[*Node]bool)
	var visit func(*Node)
	visit = func(m *Node) {
		if visited[m] {
			return
		}
		visited[m] = true
		m.setSelected(f, false)

		for _, seq := range m.Dependents.Required() {
			if d, ok := r.Node(seq); ok && d.Selected(f) {
				visit(d)
			}
		}
		for _, c := range m.children {
			visit(c)
		}
	}
	visit(n)
}

// ClearSelection clears flag f on every node.
func (r *Registry) ClearSelection(f Flag) {
	for _, n := range r.nodes {
		n.setSelected(f, false)
	}
}

// SelectAll sets flag f on every node.
func (r *Registry) SelectAll(f Flag) {
	for _, n := range r.nodes {
		n.setSelected(f, true)
	}
}

// SelectWhere clears flag f everywhere, then selects (with propagation)
// every node matching pred. It returns how many nodes matched pred.
func (r *Registry) SelectWhere(f Flag, pred func(*Node) bool) int {
	r.ClearSelection(f)
	matched := 0
	for _, n := range r.nodes {
		if pred(n) {
			matched++
			r.Select(n, f)
		}
	}
	return matched
}

// SelectSubtrees selects every node matching pred together with its whole
// subtree, after clearing flag f. It returns how many nodes matched pred.
func (r *Registry) SelectSubtrees(f Flag, pred func(*Node) bool) int {
	r.ClearSelection(f)
	matched := 0
	for _, n := range r.nodes {
		if !pred(n) {
			continue
		}
		matched++
		n.Walk(func(d *Node) bool {
			r.Select(d, f)
			return true
		})
	}
	return matched
}

// AutoSelectFailed selects, on the persisted flag, every node that failed or
// was skipped for an error in the previous run. Nodes new to this run have no
// previous outcome and are selected as well; nodes the user deselected stay
// deselected.
func (r *Registry) AutoSelectFailed() int {
	return r.SelectWhere(RunFlag, func(n *Node) bool {
		switch n.PrevState {
		case Uninitialized, CompleteFailed, SkippedDueToSiblingError, SkippedDueToPrerequisiteError:
			return true
		default:
			return false
		}
	})
}
