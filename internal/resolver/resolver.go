// Package resolver turns declared prerequisite patterns into concrete,
// symmetric edges between sequenced nodes and rejects edges that would race.
//
// Candidates are scanned in ascending global sequence index. With FIRST
// multiplicity the lowest-indexed match wins; with ALL every match is bound.
package resolver

import (
	"errors"
	"fmt"

	"github.com/ariel-frischer/proctest/internal/node"
	"go.uber.org/zap"
)

// Resolver binds prerequisite declarations for one run.
type Resolver struct {
	reg *node.Registry
	log *zap.Logger
}

// New creates a resolver over a fully discovered, sequenced registry.
func New(reg *node.Registry, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{reg: reg, log: log.Named("resolver")}
}

// Resolve clears any previous edges and binds every declaration. All
// configuration problems are collected; the returned error joins one
// *node.ConfigError per offending edge or pattern. The edge count is valid
// even when an error is returned.
func (r *Resolver) Resolve() (int, error) {
	r.reg.ResetEdges()

	var errs []error
	edges := 0
	for _, dep := range r.reg.Nodes() {
		for _, decl := range dep.Declared {
			n, err := r.resolveOne(dep, decl)
			edges += n
			if err != nil {
				errs = append(errs, err...)
			}
		}
	}

	r.log.Debug("prerequisites resolved", zap.Int("edges", edges), zap.Int("errors", len(errs)))
	return edges, errors.Join(errs...)
}

// Resolve is shorthand for New(reg, log).Resolve().
func Resolve(reg *node.Registry, log *zap.Logger) (int, error) {
	return New(reg, log).Resolve()
}

func (r *Resolver) resolveOne(dep *node.Node, decl node.Prerequisite) (int, []error) {
	if err := decl.Validate(); err != nil {
		return 0, []error{&node.ConfigError{
			Message: fmt.Sprintf("%s: %v", dep.ID.Qualified(), err),
			Nodes:   []node.Identity{dep.ID},
		}}
	}

	matches := r.Candidates(dep, decl)
	if len(matches) == 0 {
		return 0, []error{&node.ConfigError{
			Message: fmt.Sprintf("prerequisite %s of %s matches no node", decl, dep.ID.Qualified()),
			Nodes:   []node.Identity{dep.ID},
		}}
	}

	var errs []error
	added := 0
	for _, target := range expand(matches, decl.IncludeSubtree, dep) {
		if err := checkEdge(target, dep); err != nil {
			errs = append(errs, err)
			continue
		}
		if node.Link(target, dep, edgeKind(decl.Kind, target)) {
			added++
		}
	}
	return added, errs
}

// Candidates returns the nodes decl binds to for dep, in ascending sequence
// order: every match for ALL, at most one for FIRST. dep itself never
// matches its own pattern.
func (r *Resolver) Candidates(dep *node.Node, decl node.Prerequisite) []*node.Node {
	var out []*node.Node
	for _, g := range r.reg.Groups() {
		if !decl.InGroup(g.Name) {
			continue
		}
		for seq := g.First; seq < g.First+g.Count; seq++ {
			cand := r.reg.MustNode(seq)
			if cand == dep || !decl.Matches(cand.ID) {
				continue
			}
			out = append(out, cand)
			if decl.Multiplicity == node.First {
				return out
			}
		}
	}
	return out
}

// expand adds the descendants of each match when the declaration counts
// subtrees, dropping duplicates and dep itself.
func expand(matches []*node.Node, subtree bool, dep *node.Node) []*node.Node {
	if !subtree {
		return matches
	}
	seen := make(map[*node.Node]bool)
	var out []*node.Node
	for _, m := range matches {
		m.Walk(func(n *node.Node) bool {
			if n != dep && !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
			return true
		})
	}
	return out
}

func edgeKind(kind node.Kind, target *node.Node) node.EdgeKind {
	if kind == node.Fixed {
		return node.EdgeFixed
	}
	if target.PrevState.Succeeded() {
		return node.EdgeSatisfied
	}
	return node.EdgePending
}
