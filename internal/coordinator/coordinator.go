// Package coordinator drives one group through both passes: discovery in the
// orchestrating process, and verification in an isolated OS process it
// launches, watches and collects results from.
package coordinator

import (
	"fmt"

	"github.com/ariel-frischer/proctest/internal/config"
	"github.com/ariel-frischer/proctest/internal/controller"
	clierrors "github.com/ariel-frischer/proctest/internal/errors"
	"github.com/ariel-frischer/proctest/internal/node"
	"github.com/ariel-frischer/proctest/internal/registry"
	"github.com/ariel-frischer/proctest/internal/snapshot"
	"go.uber.org/zap"
)

// Coordinator owns one group's tree between the two passes.
type Coordinator struct {
	cfg   *config.Configuration
	group config.Group
	ctor  registry.Constructor
	paths Paths
	log   *zap.Logger

	tree *node.Node
}

// New creates the coordinator for the configured group named group. The
// group's entry point must be registered in units.
func New(cfg *config.Configuration, group string, units *registry.Registry, log *zap.Logger) (*Coordinator, error) {
	g, ok := cfg.Group(group)
	if !ok {
		return nil, clierrors.NewArgumentError(fmt.Sprintf("unknown group %q", group))
	}
	ctor, ok := units.Unit(g.EntryPoint)
	if !ok {
		return nil, clierrors.UnknownEntryPoint(g.Name, g.EntryPoint, units.Units())
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		cfg:   cfg,
		group: g,
		ctor:  ctor,
		paths: NewPaths(cfg.StateDir, g.Name),
		log:   log.Named("coordinator").With(zap.String("group", g.Name)),
	}, nil
}

// Group is the configured group.
func (c *Coordinator) Group() config.Group { return c.group }

// Paths locates the group's files.
func (c *Coordinator) Paths() Paths { return c.paths }

// Tree is the group's tree, nil before RunDiscovery.
func (c *Coordinator) Tree() *node.Node { return c.tree }

// RunDiscovery runs the group's entry point with every node eligible and
// merges the persisted state of the previous run into the new tree: the
// selection and expansion flags from its configuration snapshot and its
// outcomes as previous states. The tree is unsequenced; the orchestrator
// sequences all groups together. Configuration errors raised by units are
// returned, the tree is kept regardless.
func (c *Coordinator) RunDiscovery() (*node.Node, error) {
	run := controller.NewRun(controller.Options{
		Workers: config.Threads(c.group.DiscoveryThreads),
		Params:  c.group.Parameters,
		Logger:  c.log,
	})
	tree, err := run.Discover(controller.RootIdentity(c.group.Name, c.group.EntryPoint), c.ctor())
	c.tree = tree

	c.mergePrevious(c.paths.Configuration(), snapshot.KindConfiguration, node.MergeSelection)
	c.mergePrevious(c.paths.Results(), snapshot.KindResults, node.MergeOutcome)

	c.log.Info("discovery complete",
		zap.Int("nodes", tree.Size()),
		zap.Int("executed", run.Executed()))
	if err != nil {
		return tree, clierrors.WrapWithMessage(err, clierrors.Configuration,
			fmt.Sprintf("discovery of group %q", c.group.Name))
	}
	return tree, nil
}

// mergePrevious merges a snapshot of the previous run into the tree. A
// missing, foreign-branch or newer snapshot is no data; an unreadable one
// is logged and ignored so a corrupt file never blocks a fresh run.
func (c *Coordinator) mergePrevious(path string, kind snapshot.Kind, fn node.MergeFunc) {
	prev, err := snapshot.LoadOptional(path, c.cfg.Branch, kind)
	if err != nil {
		c.log.Warn("ignoring previous snapshot", zap.String("path", path), zap.Error(err))
		return
	}
	if prev == nil {
		return
	}
	merged := node.Merge(c.tree, prev, fn)
	c.log.Debug("merged previous snapshot",
		zap.String("kind", string(kind)),
		zap.Int("nodes", merged))
}

// WriteConfiguration saves the sequenced, resolved tree as the group's
// configuration snapshot, the input of the verification process and of
// presentation commands.
func (c *Coordinator) WriteConfiguration() error {
	if c.tree == nil {
		return clierrors.NewInternalError(fmt.Sprintf("group %q has no discovered tree", c.group.Name))
	}
	hdr := snapshot.Header{Branch: c.cfg.Branch, Kind: snapshot.KindConfiguration, Group: c.group.Name}
	if err := snapshot.Save(c.paths.Configuration(), hdr, c.tree); err != nil {
		return fmt.Errorf("writing configuration of group %q: %w", c.group.Name, err)
	}
	return nil
}

// WriteResults saves the tree with its outcomes as the group's results
// snapshot. The orchestrator rewrites it after coverage propagation.
func (c *Coordinator) WriteResults() error {
	if c.tree == nil {
		return clierrors.NewInternalError(fmt.Sprintf("group %q has no discovered tree", c.group.Name))
	}
	hdr := snapshot.Header{Branch: c.cfg.Branch, Kind: snapshot.KindResults, Group: c.group.Name}
	if err := snapshot.Save(c.paths.Results(), hdr, c.tree); err != nil {
		return fmt.Errorf("writing results of group %q: %w", c.group.Name, err)
	}
	return nil
}
