// Package orchestrator runs a whole suite: discovery of every group in this
// process, global sequencing and prerequisite resolution, selection, then
// one isolated verification process per group, launched one at a time in
// configuration order. Afterwards requirement coverage is propagated across
// all groups and the run is summarized.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ariel-frischer/proctest/internal/config"
	"github.com/ariel-frischer/proctest/internal/coordinator"
	"github.com/ariel-frischer/proctest/internal/coverage"
	clierrors "github.com/ariel-frischer/proctest/internal/errors"
	"github.com/ariel-frischer/proctest/internal/metrics"
	"github.com/ariel-frischer/proctest/internal/node"
	"github.com/ariel-frischer/proctest/internal/registry"
	"github.com/ariel-frischer/proctest/internal/resolver"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Observer is told when each group's verification process starts and ends.
type Observer interface {
	GroupStarted(group string)
	GroupFinished(group string, res coordinator.ProcessResult)
	// GroupFailed reports a group whose process could not run to exit.
	GroupFailed(group string, err error)
}

// Options configure one orchestration.
type Options struct {
	// Command names the CLI command in the run lock.
	Command string
	// Tags select nodes declaring any of them, on the alternate flag.
	Tags []string
	// Only select nodes matching any pattern, on the alternate flag.
	Only []string
	// Failed reselects, on the persisted flag, nodes that did not succeed
	// in the previous run.
	Failed   bool
	Observer Observer
}

func (o Options) alternate() bool {
	return len(o.Tags) > 0 || len(o.Only) > 0
}

// Result is what a run produced.
type Result struct {
	Summary  *RunSummary
	Registry *node.Registry
	Coverage coverage.Report
	// Flag is the selection flag verification used.
	Flag node.Flag
}

// Failed reports whether the run did not complete cleanly.
func (r *Result) Failed() bool {
	return r.Summary.Status != RunStatusCompleted
}

// Orchestrator runs the configured groups.
type Orchestrator struct {
	cfg     *config.Configuration
	units   *registry.Registry
	log     *zap.Logger
	metrics *metrics.Metrics
}

// New creates an orchestrator for cfg resolving entry points in units.
func New(cfg *config.Configuration, units *registry.Registry, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		cfg:     cfg,
		units:   units,
		log:     log.Named("orchestrator"),
		metrics: metrics.New(),
	}
}

// Metrics exposes the collectors of this orchestrator.
func (o *Orchestrator) Metrics() *metrics.Metrics {
	return o.metrics
}

// plan is the frozen state between discovery and verification.
type plan struct {
	coords  []*coordinator.Coordinator
	reg     *node.Registry
	flag    node.Flag
	summary *RunSummary
}

// Discover runs discovery for every group, resolves and selects, and writes
// the configuration snapshots without launching any verification process.
func (o *Orchestrator) Discover(ctx context.Context, opts Options) (*Result, error) {
	p, err := o.prepare(ctx, opts)
	if p == nil {
		return nil, err
	}
	defer o.release(p)
	if err != nil {
		return o.abort(p, err)
	}
	p.summary.finish(RunStatusCompleted)
	return &Result{Summary: p.summary, Registry: p.reg, Flag: p.flag}, nil
}

// Run performs a full orchestration. Configuration errors abort the run
// before any verification process launches; unit failures are reported in
// the result, not as an error.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	p, err := o.prepare(ctx, opts)
	if p == nil {
		return nil, err
	}
	defer o.release(p)
	if err != nil {
		return o.abort(p, err)
	}

	verifyErr := o.verify(ctx, p, opts.Observer)

	// Groups never launched keep no outcome from the discovery pass.
	for i, c := range p.coords {
		if p.summary.Groups[i].Status == GroupStatusPending {
			c.ResetOutcomes()
		}
	}

	report := coverage.Propagate(p.reg, o.units.Requirement, o.log)
	p.summary.Supporters = report.Supporters
	p.summary.Unsupportive = report.Unsupportive

	for i, c := range p.coords {
		gs := p.summary.Groups[i]
		if gs.Status == GroupStatusPending {
			continue
		}
		if err := c.WriteResults(); err != nil {
			o.log.Error("rewriting results", zap.String("group", gs.Name), zap.Error(err))
		}
		if !gs.Collected() {
			continue
		}
		o.metrics.RecordTree(c.Tree())
		o.metrics.SetUnsupportive(gs.Name, countInRange(report.Unsupportive, gs.First, gs.Count))
	}

	status := RunStatusCompleted
	for _, gs := range p.summary.Groups {
		if gs.Status != GroupStatusCompleted {
			status = RunStatusFailed
		}
	}
	p.summary.finish(status)
	o.saveSummary(p.summary)
	if err := o.metrics.WriteFile(o.cfg.StateDir); err != nil {
		o.log.Warn("writing metrics", zap.Error(err))
	}

	succeeded, failed, skipped := p.summary.Totals()
	o.log.Info("run complete",
		zap.String("run_id", p.summary.RunID),
		zap.String("status", string(status)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped))

	res := &Result{Summary: p.summary, Registry: p.reg, Coverage: report, Flag: p.flag}
	return res, verifyErr
}

// prepare takes the lock, discovers, sequences, resolves, applies the
// selection and freezes the configuration. A nil plan means nothing was
// acquired; a plan with an error must be aborted.
func (o *Orchestrator) prepare(ctx context.Context, opts Options) (*plan, error) {
	if len(o.cfg.Groups) == 0 {
		return nil, clierrors.NoGroupsConfigured()
	}
	patterns, err := ParsePatterns(opts.Only)
	if err != nil {
		return nil, clierrors.Wrap(err, clierrors.Argument)
	}

	selection := o.cfg.Selection
	if opts.alternate() {
		selection = config.SelectionAlternate
	}
	summary := NewRunSummary(o.cfg.Suite, o.cfg.Branch, selection, o.cfg.GroupNames())
	if err := AcquireLock(o.cfg.StateDir, summary.RunID, opts.Command); err != nil {
		return nil, err
	}
	p := &plan{summary: summary}

	var errs []error
	var roots []*node.Node
	for _, g := range o.cfg.Groups {
		if err := ctx.Err(); err != nil {
			return p, err
		}
		c, err := coordinator.New(o.cfg, g.Name, o.units, o.log)
		if err != nil {
			return p, err
		}
		tree, err := c.RunDiscovery()
		if err != nil {
			errs = append(errs, err)
		}
		p.coords = append(p.coords, c)
		roots = append(roots, tree)
	}

	p.reg, err = node.Sequence(roots)
	if err != nil {
		return p, clierrors.WrapWithMessage(err, clierrors.Internal, "sequencing discovered nodes")
	}
	edges, err := resolver.Resolve(p.reg, o.log)
	if err != nil {
		errs = append(errs, err)
	}
	o.log.Info("discovery complete",
		zap.Int("groups", len(p.coords)),
		zap.Int("nodes", p.reg.Len()),
		zap.Int("edges", edges))
	if len(errs) > 0 {
		return p, clierrors.WrapWithMessage(errors.Join(errs...), clierrors.Configuration,
			"configuration errors; no verification process was launched")
	}

	p.flag, err = o.applySelection(p.reg, opts, patterns)
	if err != nil {
		return p, err
	}

	for _, c := range p.coords {
		if err := c.WriteConfiguration(); err != nil {
			return p, err
		}
		rng, _ := p.reg.Group(c.Group().Name)
		p.summary.Group(c.Group().Name).First = rng.First
		p.summary.Group(c.Group().Name).Count = rng.Count
	}
	return p, nil
}

// applySelection picks the flag verification consults and sets it up.
func (o *Orchestrator) applySelection(reg *node.Registry, opts Options, patterns []Pattern) (node.Flag, error) {
	if opts.Failed {
		n := reg.AutoSelectFailed()
		o.log.Debug("reselected failed nodes", zap.Int("nodes", n))
	}

	if opts.alternate() {
		matched := reg.SelectSubtrees(node.AltRunFlag, func(n *node.Node) bool {
			for _, tag := range opts.Tags {
				if n.HasTag(tag) {
					return true
				}
			}
			for _, p := range patterns {
				if p.Matches(n) {
					return true
				}
			}
			return false
		})
		if matched == 0 {
			return node.AltRunFlag, clierrors.NewArgumentError(
				"no node matches the given --tag/--only selection",
				"Use 'proctest tree' to list node identities and tags")
		}
		return node.AltRunFlag, nil
	}

	if o.cfg.UsesAlternateSelection() {
		reg.SelectAll(node.AltRunFlag)
		return node.AltRunFlag, nil
	}
	return node.RunFlag, nil
}

// verify launches the groups' processes strictly one after another, in
// configuration order. Each group reads the stores of the groups before it.
func (o *Orchestrator) verify(ctx context.Context, p *plan, obs Observer) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(1)

	var stores []string
	for i, c := range p.coords {
		gs := p.summary.Groups[i]
		rng, _ := p.reg.Group(gs.Name)
		opts := coordinator.VerifyOptions{Range: rng, ReadStores: slices.Clone(stores), Flag: p.flag}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			return o.verifyGroup(gctx, c, gs, opts, p.summary, obs)
		})
		stores = append(stores, c.Paths().Status())
	}
	return g.Wait()
}

func (o *Orchestrator) verifyGroup(ctx context.Context, c *coordinator.Coordinator, gs *GroupSummary,
	opts coordinator.VerifyOptions, summary *RunSummary, obs Observer) error {
	gs.start(opts.Range)
	o.saveSummary(summary)
	if obs != nil {
		obs.GroupStarted(gs.Name)
	}

	res, err := c.RunVerification(ctx, opts)
	if err != nil {
		gs.fail(err, c.Tree())
		o.saveSummary(summary)
		o.metrics.RecordProcess(gs.Name, metrics.ResultCrashed, res.Duration)
		if obs != nil {
			obs.GroupFailed(gs.Name, err)
		}
		return err
	}

	gs.complete(res, c.Tree(), o.cfg.HeartbeatTimeout)
	o.saveSummary(summary)
	o.metrics.RecordProcess(gs.Name, processResult(gs, res), res.Duration)
	if obs != nil {
		obs.GroupFinished(gs.Name, res)
	}
	return nil
}

func processResult(gs *GroupSummary, res coordinator.ProcessResult) string {
	switch {
	case res.Killed:
		return metrics.ResultKilled
	case res.Salvaged:
		return metrics.ResultCrashed
	case gs.Status == GroupStatusCompleted:
		return metrics.ResultCompleted
	default:
		return metrics.ResultFailed
	}
}

// abort records a run stopped before verification and returns err.
func (o *Orchestrator) abort(p *plan, err error) (*Result, error) {
	configErrs := flatten(err)
	if clierrors.CategoryOf(err) == clierrors.Configuration {
		o.metrics.RecordConfigErrors(len(configErrs))
	}
	for _, e := range configErrs {
		p.summary.ConfigErrors = append(p.summary.ConfigErrors, e.Error())
	}
	p.summary.finish(RunStatusAborted)
	o.saveSummary(p.summary)
	if werr := o.metrics.WriteFile(o.cfg.StateDir); werr != nil {
		o.log.Warn("writing metrics", zap.Error(werr))
	}
	o.log.Error("run aborted", zap.String("run_id", p.summary.RunID), zap.Int("errors", len(configErrs)))
	return &Result{Summary: p.summary, Registry: p.reg, Flag: p.flag}, err
}

func (o *Orchestrator) release(p *plan) {
	if err := ReleaseLock(o.cfg.StateDir, p.summary.RunID); err != nil {
		o.log.Warn("releasing run lock", zap.Error(err))
	}
}

func (o *Orchestrator) saveSummary(s *RunSummary) {
	if err := SaveSummary(o.cfg.StateDir, s); err != nil {
		o.log.Warn("saving run summary", zap.Error(err))
	}
}

// flatten expands joined and wrapped errors into their leaves.
func flatten(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	if cliErr := clierrors.AsCLIError(err); cliErr != nil && cliErr.Err != nil {
		return flatten(cliErr.Err)
	}
	return []error{err}
}

func countInRange(seqs []int, first, count int) int {
	n := 0
	for _, s := range seqs {
		if s >= first && s < first+count {
			n++
		}
	}
	return n
}

// String renders a short, human-readable account of r.
func (r *Result) String() string {
	succeeded, failed, skipped := r.Summary.Totals()
	return fmt.Sprintf("run %s %s: %d succeeded, %d failed, %d skipped",
		r.Summary.RunID, r.Summary.Status, succeeded, failed, skipped)
}
