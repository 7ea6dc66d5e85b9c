package node

// MergeFunc copies state from a matched previous-run node onto its current
// counterpart.
type MergeFunc func(cur, prev *Node)

// Merge pairs cur with prev and every descendant of cur with its counterpart
// in prev, calling fn for each pair. Children are paired by position first;
// when the node at the same position has a different identity, the first
// unpaired previous sibling with the same identity is used instead. A current
// node with no counterpart keeps its defaults and its subtree is not merged.
// Merge returns how many pairs were merged.
func Merge(cur, prev *Node, fn MergeFunc) int {
	if cur == nil || prev == nil || !sameUnit(cur.ID, prev.ID) {
		return 0
	}
	return mergePair(cur, prev, fn)
}

func mergePair(cur, prev *Node, fn MergeFunc) int {
	fn(cur, prev)
	merged := 1

	used := make([]bool, len(prev.children))
	for i, c := range cur.children {
		match := -1
		if i < len(prev.children) && !used[i] && sameUnit(c.ID, prev.children[i].ID) {
			match = i
		} else {
			for j, p := range prev.children {
				if !used[j] && sameUnit(c.ID, p.ID) {
					match = j
					break
				}
			}
		}
		if match < 0 {
			continue
		}
		used[match] = true
		merged += mergePair(c, prev.children[match], fn)
	}
	return merged
}

// sameUnit compares identities ignoring group, so a group renamed between
// runs still carries its selection forward.
func sameUnit(a, b Identity) bool {
	a.Group, b.Group = "", ""
	return a.Equal(b)
}

// MergeSelection carries the persisted selection flag and expansion state.
func MergeSelection(cur, prev *Node) {
	cur.Run = prev.Run
	cur.Expanded = prev.Expanded
}

// MergeOutcome records the previous run's outcome as PrevState.
func MergeOutcome(cur, prev *Node) {
	cur.PrevState = prev.State
}

// MergeResults copies a finished run's outcome data onto a node of the same
// run, as done when a verification process hands results back.
func MergeResults(cur, prev *Node) {
	cur.State = prev.State
	cur.Failures = prev.Failures
	cur.Messages = prev.Messages
	cur.Started = prev.Started
	cur.Finished = prev.Finished
	if len(prev.Supports) > 0 {
		cur.Supports = prev.Supports
	}
}
