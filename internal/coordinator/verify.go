package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"sort"
	"time"

	"github.com/ariel-frischer/proctest/internal/config"
	clierrors "github.com/ariel-frischer/proctest/internal/errors"
	"github.com/ariel-frischer/proctest/internal/executive"
	"github.com/ariel-frischer/proctest/internal/node"
	"github.com/ariel-frischer/proctest/internal/snapshot"
	"github.com/ariel-frischer/proctest/internal/status"
	"github.com/ariel-frischer/proctest/internal/watchdog"
	"go.uber.org/zap"
)

// VerifyOptions configure one verification process.
type VerifyOptions struct {
	// Range is the group's block of global sequence indices.
	Range node.GroupRange
	// ReadStores are the status stores of groups verified earlier.
	ReadStores []string
	Flag       node.Flag
}

// ProcessResult describes how the verification process ended.
type ProcessResult struct {
	ExitCode int
	// Killed is set when the watchdog terminated the process.
	Killed bool
	// Salvaged is set when no results snapshot was written and outcomes
	// were recovered from the status store.
	Salvaged bool
	Duration time.Duration
}

// RunVerification launches the group's verification process, waits for it
// and merges its outcomes into the tree. The configuration snapshot must
// have been written. A watchdog kills the process when its heartbeat goes
// quiet; outcomes it flushed to the status store before dying are kept.
// The error reports only launch problems and cancellation, and every node
// of the tree is then failed; unit failures and a non-zero exit are part of
// the result.
func (c *Coordinator) RunVerification(ctx context.Context, opts VerifyOptions) (ProcessResult, error) {
	if c.tree == nil {
		return ProcessResult{}, clierrors.NewInternalError(fmt.Sprintf("group %q has no discovered tree", c.group.Name))
	}
	c.ResetOutcomes()

	launch, err := c.cfg.LaunchArgs(c.group)
	if err != nil {
		return c.abandon(ProcessResult{}, clierrors.Wrap(err, clierrors.Configuration))
	}
	if err := c.prepare(opts, launch); err != nil {
		return c.abandon(ProcessResult{}, err)
	}

	args := append(slices.Clone(launch), c.paths.Descriptor())
	res, err := c.launch(ctx, args)
	if err != nil {
		return c.abandon(res, err)
	}

	if !c.collect() {
		res.Salvaged = true
		c.salvage(res.Killed)
	}

	c.log.Info("verification collected",
		zap.Int("exit_code", res.ExitCode),
		zap.Bool("killed", res.Killed),
		zap.Bool("salvaged", res.Salvaged),
		zap.Duration("duration", res.Duration),
		zap.Stringer("state", c.tree.State))
	return res, nil
}

// ResetOutcomes clears the discovery-pass states so the tree holds no
// outcome until verification results are merged.
func (c *Coordinator) ResetOutcomes() {
	if c.tree == nil {
		return
	}
	c.tree.Walk(func(n *node.Node) bool {
		n.ResetRun()
		return true
	})
}

// abandon fails every node after verification could not complete and
// returns err.
func (c *Coordinator) abandon(res ProcessResult, err error) (ProcessResult, error) {
	c.log.Error("verification did not complete", zap.Error(err))
	c.failUnsettled(fmt.Sprintf("verification process did not complete: %v", err))
	return res, err
}

// prepare sizes a fresh status store, clears the previous results and
// heartbeat, and writes the executive descriptor.
func (c *Coordinator) prepare(opts VerifyOptions, launch []string) error {
	if err := os.MkdirAll(c.paths.Dir, 0o755); err != nil {
		return fmt.Errorf("creating group state directory: %w", err)
	}
	for _, stale := range []string{c.paths.Results(), c.paths.Heartbeat()} {
		if err := os.Remove(stale); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", stale, err)
		}
	}

	store, err := status.Create(c.paths.Status(), opts.Range.First, opts.Range.Count)
	if err != nil {
		return err
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("closing status store: %w", err)
	}

	logCfg := c.cfg.Logging
	logCfg.File = c.paths.Log()
	return executive.WriteDescriptor(c.paths.Descriptor(), &executive.Descriptor{
		Branch:            c.cfg.Branch,
		EntryPoint:        c.group.EntryPoint,
		Group:             c.group.Name,
		Suite:             c.cfg.Suite,
		LaunchCommand:     launch,
		Parameters:        c.group.Parameters,
		Environment:       c.group.Environment,
		Threads:           config.Threads(c.group.VerificationThreads),
		Flag:              opts.Flag,
		Configuration:     c.paths.Configuration(),
		Results:           c.paths.Results(),
		Status:            c.paths.Status(),
		ReadStores:        opts.ReadStores,
		HeartbeatDir:      c.paths.Dir,
		HeartbeatName:     c.paths.HeartbeatName(),
		HeartbeatInterval: c.cfg.HeartbeatInterval,
		Logging:           logCfg,
	})
}

// launch starts the process and waits for it under the watchdog. Cancelling
// ctx kills the process.
func (c *Coordinator) launch(ctx context.Context, args []string) (ProcessResult, error) {
	logFile, err := os.OpenFile(c.paths.Log(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("opening verification log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = c.environment()
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	c.log.Debug("launching verification process", zap.Strings("args", args))
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return ProcessResult{}, clierrors.WrapWithMessage(err, clierrors.Runtime,
			fmt.Sprintf("starting verification process for group %q", c.group.Name),
			"Check launch_command in the configuration")
	}

	monitor := watchdog.NewMonitor(c.cfg.HeartbeatTimeout, func() {
		_ = cmd.Process.Kill()
	}, c.log)
	if err := monitor.Start(c.paths.Dir, c.paths.HeartbeatName()); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return ProcessResult{}, err
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		_ = monitor.Stop()
		return ProcessResult{}, fmt.Errorf("verification of group %q: %w", c.group.Name, ctx.Err())
	case waitErr = <-done:
	}
	_ = monitor.Stop()

	res := ProcessResult{Duration: time.Since(start), Killed: monitor.Fired()}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return res, fmt.Errorf("waiting for verification process: %w", waitErr)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	if res.Killed {
		c.log.Error("verification process killed by watchdog",
			zap.Duration("timeout", c.cfg.HeartbeatTimeout))
	}
	return res, nil
}

// environment is this process's environment plus the group's variables, in
// a stable order.
func (c *Coordinator) environment() []string {
	env := os.Environ()
	keys := make([]string, 0, len(c.group.Environment))
	for k := range c.group.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+c.group.Environment[k])
	}
	return env
}

// collect merges the results snapshot into the tree. It reports false when
// there is no usable snapshot.
func (c *Coordinator) collect() bool {
	res, err := snapshot.LoadOptional(c.paths.Results(), c.cfg.Branch, snapshot.KindResults)
	if err != nil {
		c.log.Error("reading results snapshot", zap.Error(err))
		return false
	}
	if res == nil {
		return false
	}
	if merged := node.Merge(c.tree, res, node.MergeResults); merged != c.tree.Size() {
		c.log.Warn("results snapshot does not match configuration",
			zap.Int("merged", merged), zap.Int("nodes", c.tree.Size()))
	}
	c.failUnsettled("missing from the results snapshot")
	return true
}

// salvage recovers outcomes the process flushed to the status store before
// exiting without results. Nodes with no record fail.
func (c *Coordinator) salvage(killed bool) {
	reason := "verification process exited before this node completed"
	if killed {
		reason = "verification process was killed by the watchdog before this node completed"
	}

	store, err := status.OpenReadOnly(c.paths.Status())
	if err != nil {
		c.log.Error("opening status store for salvage", zap.Error(err))
		c.failUnsettled(reason)
		return
	}
	defer store.Close()

	recovered := 0
	c.tree.Walk(func(n *node.Node) bool {
		rec, ok, err := store.Get(n.Seq)
		if err != nil || !ok {
			return true
		}
		recovered++
		n.State = rec.State
		if rec.Failures > 0 {
			n.Fail(fmt.Sprintf("%d failure(s) recorded; details were lost with the verification process", rec.Failures))
		}
		return true
	})
	c.log.Warn("salvaged outcomes from status store",
		zap.Int("recovered", recovered),
		zap.Int("nodes", c.tree.Size()))
	c.failUnsettled(reason)
}

// failUnsettled fails every node left without a terminal state.
func (c *Coordinator) failUnsettled(reason string) {
	c.tree.Walk(func(n *node.Node) bool {
		if !n.State.Terminal() {
			n.FailInternal(reason)
			n.State = node.CompleteFailed
		}
		return true
	})
}
