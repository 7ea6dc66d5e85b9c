package resolver

import (
	"fmt"

	"github.com/ariel-frischer/proctest/internal/node"
)

// checkEdge validates that prereq is guaranteed to finish before dep starts.
//
// Within one tree the closest common ancestor decides: a parallel ancestor
// lets both subtrees run at once, which is a race. Under a sequential
// ancestor the prerequisite must come first in pre-order. A node cannot
// depend on its own ancestor or descendant. Across groups, whole groups run
// one after another in sequence order, so the prerequisite's group must come
// first.
func checkEdge(prereq, dep *node.Node) error {
	switch {
	case prereq.IsAncestorOf(dep):
		return &node.ConfigError{
			Message: fmt.Sprintf("%s cannot require its ancestor %s", dep.ID.Qualified(), prereq.ID.Qualified()),
			Nodes:   []node.Identity{dep.ID, prereq.ID},
		}
	case dep.IsAncestorOf(prereq):
		return &node.ConfigError{
			Message: fmt.Sprintf("%s cannot require its descendant %s", dep.ID.Qualified(), prereq.ID.Qualified()),
			Nodes:   []node.Identity{dep.ID, prereq.ID},
		}
	}

	cca := node.ClosestCommonAncestor(prereq, dep)
	if cca == nil {
		if prereq.Seq > dep.Seq {
			return &node.ConfigError{
				Message: fmt.Sprintf("%s requires %s from group %q, which runs after group %q",
					dep.ID.Qualified(), prereq.ID.Qualified(), prereq.ID.Group, dep.ID.Group),
				Nodes: []node.Identity{dep.ID, prereq.ID},
			}
		}
		return nil
	}

	if cca.Sequencing == node.Parallel {
		return &node.ConfigError{
			Message: fmt.Sprintf("race condition: %s requires %s but their closest common ancestor %s runs children in parallel",
				dep.ID.Qualified(), prereq.ID.Qualified(), cca.ID.Qualified()),
			Nodes: []node.Identity{dep.ID, prereq.ID, cca.ID},
		}
	}
	if prereq.Seq > dep.Seq {
		return &node.ConfigError{
			Message: fmt.Sprintf("%s requires %s, which %s schedules after it",
				dep.ID.Qualified(), prereq.ID.Qualified(), cca.ID.Qualified()),
			Nodes: []node.Identity{dep.ID, prereq.ID, cca.ID},
		}
	}
	return nil
}
