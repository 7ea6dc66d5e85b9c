// Package coverage propagates requirement support through a finished run.
//
// A requirement declared on a node is supported by that node, its
// descendants, its transitive dependents and, when its parent sequences with
// abort semantics, the siblings after it, since none of those could have
// run without it. Coverage is diagnostic only and never changes outcomes.
package coverage

import (
	"slices"
	"sort"

	"github.com/ariel-frischer/proctest/internal/node"
	"go.uber.org/zap"
)

// Requirement is notified of every successful node that supports it.
type Requirement interface {
	Name() string
	Notify(n *node.Node)
}

// Lookup resolves a declared requirement name.
type Lookup func(name string) (Requirement, bool)

// Report is the outcome of propagation.
type Report struct {
	// Supporters maps each declared requirement to the sequence indices of
	// the successful nodes supporting it, ascending.
	Supporters map[string][]int
	// Unsupportive lists nodes from which no requirement is reachable.
	Unsupportive []int
}

// Propagate computes support for every requirement declared in reg, records
// it on the supporting nodes and notifies registered requirements. lookup
// may be nil.
func Propagate(reg *node.Registry, lookup Lookup, log *zap.Logger) Report {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("coverage")

	report := Report{Supporters: make(map[string][]int)}
	reached := make([]bool, reg.Len())
	declared := false

	for _, n := range reg.Nodes() {
		n.Supports = nil
	}
	for _, decl := range reg.Nodes() {
		if len(decl.Requirements) == 0 {
			continue
		}
		declared = true
		supporters := Supporters(reg, decl)
		for _, s := range supporters {
			reached[s.Seq] = true
		}
		for _, name := range decl.Requirements {
			report.Supporters[name] = appendSucceeded(report.Supporters[name], supporters, name)
		}
	}

	for name, seqs := range report.Supporters {
		sort.Ints(seqs)
		seqs = slices.Compact(seqs)
		report.Supporters[name] = seqs

		var req Requirement
		if lookup != nil {
			req, _ = lookup(name)
		}
		if req == nil {
			log.Debug("requirement not registered", zap.String("requirement", name))
			continue
		}
		for _, seq := range seqs {
			req.Notify(reg.MustNode(seq))
		}
	}

	if declared {
		for seq, ok := range reached {
			if !ok {
				report.Unsupportive = append(report.Unsupportive, seq)
			}
		}
		if len(report.Unsupportive) > 0 {
			log.Info("nodes support no requirement", zap.Int("count", len(report.Unsupportive)))
		}
	}
	return report
}

func appendSucceeded(dst []int, supporters []*node.Node, name string) []int {
	for _, s := range supporters {
		if !s.State.Succeeded() {
			continue
		}
		if !slices.Contains(s.Supports, name) {
			s.Supports = append(s.Supports, name)
		}
		dst = append(dst, s.Seq)
	}
	return dst
}

// Supporters returns decl and every node whose execution depends on it, in
// ascending sequence order, regardless of outcome.
func Supporters(reg *node.Registry, decl *node.Node) []*node.Node {
	seen := map[*node.Node]bool{decl: true}
	queue := []*node.Node{decl}
	push := func(n *node.Node) {
		if !seen[n] {
			seen[n] = true
			queue = append(queue, n)
		}
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		for _, c := range n.Children() {
			push(c)
		}
		for _, d := range reg.Lookup(n.Dependents.All()) {
			push(d)
		}
		if p := n.Parent(); p != nil && p.Sequencing == node.SequentialAbort {
			for _, sib := range p.Children()[n.Ordinal()+1:] {
				push(sib)
			}
		}
	}

	out := make([]*node.Node, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b *node.Node) int { return a.Seq - b.Seq })
	return out
}
