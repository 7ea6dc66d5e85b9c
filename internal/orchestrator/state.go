package orchestrator

import (
	"fmt"

	"github.com/ariel-frischer/proctest/internal/config"
	"github.com/ariel-frischer/proctest/internal/coordinator"
	clierrors "github.com/ariel-frischer/proctest/internal/errors"
	"github.com/ariel-frischer/proctest/internal/node"
	"github.com/ariel-frischer/proctest/internal/snapshot"
)

// State is the persisted tree of every group: the configuration snapshots
// of the last discovery with the outcomes of the last verification merged
// in. Presentation commands query and edit it between runs.
type State struct {
	cfg      *config.Configuration
	Registry *node.Registry
	// Verified reports, per group, whether a results snapshot was merged.
	Verified map[string]bool
}

// LoadState reads the persisted trees of all configured groups.
func LoadState(cfg *config.Configuration) (*State, error) {
	s := &State{cfg: cfg, Verified: make(map[string]bool)}
	var roots []*node.Node
	for _, g := range cfg.Groups {
		paths := coordinator.NewPaths(cfg.StateDir, g.Name)
		tree, _, err := snapshot.Load(paths.Configuration(), cfg.Branch, snapshot.KindConfiguration)
		if err != nil {
			if snapshot.IsAbsent(err) {
				return nil, clierrors.NoPreviousRun(g.Name)
			}
			return nil, clierrors.WrapWithMessage(err, clierrors.Internal,
				fmt.Sprintf("loading configuration of group %q", g.Name))
		}
		results, err := snapshot.LoadOptional(paths.Results(), cfg.Branch, snapshot.KindResults)
		if err != nil {
			return nil, clierrors.WrapWithMessage(err, clierrors.Internal,
				fmt.Sprintf("loading results of group %q", g.Name))
		}
		if results != nil {
			node.Merge(tree, results, node.MergeResults)
			s.Verified[g.Name] = true
		}
		roots = append(roots, tree)
	}

	reg, err := node.Register(roots)
	if err != nil {
		return nil, clierrors.WrapWithMessage(err, clierrors.Internal,
			"persisted trees are inconsistent", "Run 'proctest discover' to rebuild them")
	}
	s.Registry = reg
	return s, nil
}

// Resolve returns the nodes ref names: a pattern as accepted by
// ParsePattern. It fails when nothing matches.
func (s *State) Resolve(ref string) ([]*node.Node, error) {
	p, err := ParsePattern(ref)
	if err != nil {
		return nil, clierrors.Wrap(err, clierrors.Argument)
	}
	var out []*node.Node
	for _, n := range s.Registry.Nodes() {
		if p.Matches(n) {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, clierrors.NodeNotFound(ref)
	}
	return out, nil
}

// SetRun selects or deselects every node ref names on the persisted flag,
// with propagation. It returns the matched nodes.
func (s *State) SetRun(ref string, selected bool) ([]*node.Node, error) {
	nodes, err := s.Resolve(ref)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if err := s.Registry.SetRun(n.Seq, node.RunFlag, selected); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// SetExpanded sets the expansion flag of every node ref names.
func (s *State) SetExpanded(ref string, expanded bool) ([]*node.Node, error) {
	nodes, err := s.Resolve(ref)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if err := s.Registry.SetExpanded(n.Seq, expanded); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// SelectFailed reselects nodes whose last outcome was not a success.
func (s *State) SelectFailed() int {
	for _, n := range s.Registry.Nodes() {
		if s.Verified[n.ID.Group] {
			n.PrevState = n.State
		}
	}
	return s.Registry.AutoSelectFailed()
}

// Save writes the configuration snapshots back, under the run lock.
func (s *State) Save(command string) error {
	lockID := generateRunID()
	if err := AcquireLock(s.cfg.StateDir, lockID, command); err != nil {
		return err
	}
	defer ReleaseLock(s.cfg.StateDir, lockID)

	for _, root := range s.Registry.Roots() {
		paths := coordinator.NewPaths(s.cfg.StateDir, root.ID.Group)
		hdr := snapshot.Header{Branch: s.cfg.Branch, Kind: snapshot.KindConfiguration, Group: root.ID.Group}
		if err := snapshot.Save(paths.Configuration(), hdr, root); err != nil {
			return fmt.Errorf("writing configuration of group %q: %w", root.ID.Group, err)
		}
	}
	return nil
}
