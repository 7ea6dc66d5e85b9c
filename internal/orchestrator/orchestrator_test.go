package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ariel-frischer/proctest/internal/config"
	"github.com/ariel-frischer/proctest/internal/controller"
	"github.com/ariel-frischer/proctest/internal/coordinator"
	clierrors "github.com/ariel-frischer/proctest/internal/errors"
	"github.com/ariel-frischer/proctest/internal/logging"
	"github.com/ariel-frischer/proctest/internal/metrics"
	"github.com/ariel-frischer/proctest/internal/node"
	"github.com/ariel-frischer/proctest/internal/registry"
	"github.com/ariel-frischer/proctest/internal/snapshot"
	"github.com/ariel-frischer/proctest/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRequirement struct {
	name     string
	notified []string
}

func (r *recordingRequirement) Name() string { return r.name }

func (r *recordingRequirement) Notify(n *node.Node) {
	r.notified = append(r.notified, n.ID.String())
}

// leaf initializes with opts and fails in verification when the group
// parameter named failParam is "1".
func leaf(opts node.Options, failParam string) controller.Unit {
	return controller.Func(func(c *controller.Controller) {
		verifying, err := c.Initialize(opts)
		if err != nil || !verifying || failParam == "" {
			return
		}
		if v, _ := c.Param(failParam); v == "1" {
			c.Fail("asked to fail")
		}
	})
}

func suite(class string, children map[string]controller.Unit, order ...string) registry.Constructor {
	return func() controller.Unit {
		return controller.Func(func(c *controller.Controller) {
			if _, err := c.Initialize(node.Options{Sequencing: node.SequentialContinue}); err != nil {
				return
			}
			for _, method := range order {
				_ = c.Subtest(node.NewIdentity(class, method), children[method])
			}
		})
	}
}

// testUnits registers
//
//	alpha:  alpha.run  -> [Alpha.a1 (tag smoke), Alpha.a2 (fails with fail=1)]
//	beta:   beta.run   -> [Beta.b1 requires Alpha.a1, declares R1; Beta.b2 requires Alpha.a2]
//	broken: broken.run -> [Broken.x requires Nope.missing]
func testUnits(req *recordingRequirement) *registry.Registry {
	units := registry.New()
	units.MustRegisterUnit("alpha", suite("Alpha", map[string]controller.Unit{
		"a1": leaf(node.Options{Tags: []string{"smoke"}}, ""),
		"a2": leaf(node.Options{}, "fail"),
	}, "a1", "a2"))
	units.MustRegisterUnit("beta", suite("Beta", map[string]controller.Unit{
		"b1": leaf(node.Options{
			Prerequisites: []node.Prerequisite{node.Requires("Alpha", "a1")},
			Requirements:  []string{"R1"},
		}, ""),
		"b2": leaf(node.Options{Prerequisites: []node.Prerequisite{node.Requires("Alpha", "a2")}}, ""),
	}, "b1", "b2"))
	units.MustRegisterUnit("broken", suite("Broken", map[string]controller.Unit{
		"x": leaf(node.Options{Prerequisites: []node.Prerequisite{node.Requires("Nope", "missing")}}, ""),
	}, "x"))
	if req != nil {
		units.RegisterRequirement(req)
	}
	return units
}

func TestHelperProcess(t *testing.T) {
	testutil.RunHelperProcess(t, testUnits(nil))
}

func testConfig(t *testing.T, alphaParams map[string]string) *config.Configuration {
	t.Helper()
	env := testutil.HelperEnvironment(testutil.ModeVerify)
	return &config.Configuration{
		StateDir:          t.TempDir(),
		Branch:            "main",
		Suite:             "test",
		Selection:         config.SelectionPersisted,
		HeartbeatInterval: 50 * time.Millisecond,
		HeartbeatTimeout:  10 * time.Second,
		LaunchCommand:     testutil.HelperLaunchCommand(t, "TestHelperProcess"),
		Groups: []config.Group{
			{Name: "first", EntryPoint: "alpha", Environment: env, Parameters: alphaParams},
			{Name: "second", EntryPoint: "beta", Environment: env},
		},
		Logging: logging.Config{Level: "error"},
	}
}

// byName indexes the registry by Class.method.
func byName(reg *node.Registry) map[string]*node.Node {
	out := make(map[string]*node.Node)
	for _, n := range reg.Nodes() {
		out[n.ID.String()] = n
	}
	return out
}

func TestRun_AllSucceed(t *testing.T) {
	t.Parallel()

	req := &recordingRequirement{name: "R1"}
	cfg := testConfig(t, nil)
	res, err := New(cfg, testUnits(req), nil).Run(context.Background(), Options{Command: "run"})
	require.NoError(t, err)

	assert.False(t, res.Failed())
	assert.Equal(t, node.RunFlag, res.Flag)
	require.Equal(t, 6, res.Registry.Len())
	for _, n := range res.Registry.Nodes() {
		assert.Equal(t, node.CompleteSucceeded, n.State, n.ID.Qualified())
	}

	nodes := byName(res.Registry)
	assert.Equal(t, []int{nodes["Beta.b1"].Seq}, res.Coverage.Supporters["R1"])
	assert.Equal(t, []string{"Beta.b1"}, req.notified)
	assert.Equal(t, []string{"R1"}, nodes["Beta.b1"].Supports)
	assert.Len(t, res.Coverage.Unsupportive, 5)

	summary, err := LoadSummary(cfg.StateDir, res.Summary.RunID)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, RunStatusCompleted, summary.Status)
	require.Len(t, summary.Groups, 2)
	for _, g := range summary.Groups {
		assert.Equal(t, GroupStatusCompleted, g.Status, g.Name)
		require.NotNil(t, g.ExitCode)
		assert.Equal(t, 0, *g.ExitCode)
		assert.Equal(t, 3, g.Count)
	}
	assert.Equal(t, 3, summary.Group("second").First)

	assert.FileExists(t, metrics.Path(cfg.StateDir))
	lock, err := LoadLock(cfg.StateDir)
	require.NoError(t, err)
	assert.Nil(t, lock, "lock released")
}

func TestRun_CrossGroupPrerequisiteFailure(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, map[string]string{"fail": "1"})
	res, err := New(cfg, testUnits(nil), nil).Run(context.Background(), Options{Command: "run"})
	require.NoError(t, err)
	assert.True(t, res.Failed())

	nodes := byName(res.Registry)
	assert.Equal(t, node.CompleteFailed, nodes["Alpha.a2"].State)
	assert.Equal(t, node.CompleteSucceeded, nodes["Beta.b1"].State)
	assert.Equal(t, node.SkippedDueToPrerequisiteError, nodes["Beta.b2"].State)

	assert.Equal(t, GroupStatusFailed, res.Summary.Group("first").Status)
	assert.Equal(t, GroupStatusCompleted, res.Summary.Group("second").Status)
	succeeded, failed, skipped := res.Summary.Totals()
	assert.Equal(t, 4, succeeded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, skipped)
}

func TestRun_FailedReselection(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, map[string]string{"fail": "1"})
	_, err := New(cfg, testUnits(nil), nil).Run(context.Background(), Options{Command: "run"})
	require.NoError(t, err)

	cfg.Groups[0].Parameters = nil
	res, err := New(cfg, testUnits(nil), nil).Run(context.Background(), Options{Command: "run", Failed: true})
	require.NoError(t, err)
	assert.False(t, res.Failed())

	nodes := byName(res.Registry)
	assert.Equal(t, node.SkippedByUser, nodes["Alpha.a1"].State)
	assert.Equal(t, node.CompleteSucceeded, nodes["Alpha.a2"].State)
	assert.Equal(t, node.SkippedByUser, nodes["Beta.b1"].State)
	assert.Equal(t, node.CompleteSucceeded, nodes["Beta.b2"].State)
}

func TestRun_AlternateSelection(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		opts      Options
		wantRun   []string
		wantError bool
	}{
		"only pattern": {
			opts:    Options{Only: []string{"first:Alpha.a1"}},
			wantRun: []string{"alpha.run", "Alpha.a1"},
		},
		"tag": {
			opts:    Options{Tags: []string{"smoke"}},
			wantRun: []string{"alpha.run", "Alpha.a1"},
		},
		"class selects its nodes and prerequisites": {
			opts:    Options{Only: []string{"Beta"}},
			wantRun: []string{"alpha.run", "Alpha.a1", "Alpha.a2", "beta.run", "Beta.b1", "Beta.b2"},
		},
		"nothing matches": {
			opts:      Options{Only: []string{"Gamma.*"}},
			wantError: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig(t, nil)
			res, err := New(cfg, testUnits(nil), nil).Run(context.Background(), tt.opts)
			if tt.wantError {
				require.Error(t, err)
				assert.Equal(t, clierrors.Argument, clierrors.CategoryOf(err))
				assert.Equal(t, RunStatusAborted, res.Summary.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, node.AltRunFlag, res.Flag)
			assert.Equal(t, config.SelectionAlternate, res.Summary.Selection)

			ran := make(map[string]bool)
			for _, id := range tt.wantRun {
				ran[id] = true
			}
			for _, n := range res.Registry.Nodes() {
				if ran[n.ID.String()] {
					assert.Equal(t, node.CompleteSucceeded, n.State, n.ID.String())
				} else {
					assert.Equal(t, node.SkippedByUser, n.State, n.ID.String())
				}
			}
		})
	}
}

func TestRun_LaunchFailureRecordsNoOutcome(t *testing.T) {
	t.Parallel()

	req := &recordingRequirement{name: "R1"}
	cfg := testConfig(t, nil)
	good := cfg.LaunchCommand
	cfg.LaunchCommand = filepath.Join(t.TempDir(), "missing-proctest")

	res, err := New(cfg, testUnits(req), nil).Run(context.Background(), Options{Command: "run"})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Failed())

	first := res.Summary.Group("first")
	assert.Equal(t, GroupStatusFailed, first.Status)
	assert.False(t, first.Collected())
	assert.NotEmpty(t, first.FailureReason)
	assert.Equal(t, GroupStatusPending, res.Summary.Group("second").Status)

	for _, n := range res.Registry.Nodes() {
		assert.NotEqual(t, node.CompleteSucceeded, n.State, n.ID.Qualified())
	}
	assert.Empty(t, res.Coverage.Supporters["R1"])
	assert.Empty(t, req.notified)

	tree, _, err := snapshot.Load(coordinator.NewPaths(cfg.StateDir, "first").Results(), cfg.Branch, snapshot.KindResults)
	require.NoError(t, err)
	tree.Walk(func(n *node.Node) bool {
		assert.Equal(t, node.CompleteFailed, n.State, n.ID.Qualified())
		return true
	})
	_, statErr := os.Stat(coordinator.NewPaths(cfg.StateDir, "second").Results())
	assert.True(t, os.IsNotExist(statErr), "a pending group writes no results")

	// Nodes that never ran are reselected and run next time.
	cfg.LaunchCommand = good
	res, err = New(cfg, testUnits(nil), nil).Run(context.Background(), Options{Command: "run", Failed: true})
	require.NoError(t, err)
	assert.False(t, res.Failed())
	nodes := byName(res.Registry)
	assert.Equal(t, node.CompleteFailed, nodes["Alpha.a1"].PrevState)
	assert.Equal(t, node.CompleteSucceeded, nodes["Alpha.a1"].State)
	assert.Equal(t, node.CompleteSucceeded, nodes["Beta.b1"].State)
}

func TestRun_ConfigurationErrorAborts(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, nil)
	cfg.Groups = []config.Group{{Name: "bad", EntryPoint: "broken"}}

	res, err := New(cfg, testUnits(nil), nil).Run(context.Background(), Options{Command: "run"})
	require.Error(t, err)
	assert.Equal(t, clierrors.Configuration, clierrors.CategoryOf(err))
	assert.Contains(t, err.Error(), "matches no node")

	require.NotNil(t, res)
	assert.Equal(t, RunStatusAborted, res.Summary.Status)
	require.Len(t, res.Summary.ConfigErrors, 1)
	assert.Contains(t, res.Summary.ConfigErrors[0], "Nope.missing")

	_, statErr := os.Stat(coordinator.NewPaths(cfg.StateDir, "bad").Status())
	assert.True(t, os.IsNotExist(statErr), "no verification process launched")
}

func TestRun_Locked(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, nil)
	require.NoError(t, AcquireLock(cfg.StateDir, "other-run", "run"))

	_, err := New(cfg, testUnits(nil), nil).Run(context.Background(), Options{Command: "run"})
	require.Error(t, err)
	assert.Equal(t, clierrors.Runtime, clierrors.CategoryOf(err))
	assert.Contains(t, err.Error(), "locked")
}

func TestDiscoverAndEditState(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, nil)
	res, err := New(cfg, testUnits(nil), nil).Discover(context.Background(), Options{Command: "discover"})
	require.NoError(t, err)
	assert.Equal(t, 6, res.Registry.Len())
	_, statErr := os.Stat(coordinator.NewPaths(cfg.StateDir, "first").Status())
	assert.True(t, os.IsNotExist(statErr), "discover never verifies")

	state, err := LoadState(cfg)
	require.NoError(t, err)
	assert.False(t, state.Verified["first"])

	// Deselecting a1 cascades to its dependent b1.
	nodes, err := state.SetRun("first:Alpha.a1", false)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	_, err = state.SetExpanded("beta.run", true)
	require.NoError(t, err)
	require.NoError(t, state.Save("deselect"))

	reloaded, err := LoadState(cfg)
	require.NoError(t, err)
	byID := byName(reloaded.Registry)
	assert.False(t, byID["Alpha.a1"].Run)
	assert.False(t, byID["Beta.b1"].Run)
	assert.True(t, byID["Alpha.a2"].Run)
	assert.True(t, byID["beta.run"].Expanded)

	_, err = reloaded.SetRun("Gamma.x", true)
	require.Error(t, err)
	assert.Equal(t, clierrors.Argument, clierrors.CategoryOf(err))

	// The next run keeps the edited selection.
	run, err := New(cfg, testUnits(nil), nil).Run(context.Background(), Options{Command: "run"})
	require.NoError(t, err)
	after := byName(run.Registry)
	assert.Equal(t, node.SkippedByUser, after["Alpha.a1"].State)
	assert.Equal(t, node.SkippedByUser, after["Beta.b1"].State)
	assert.Equal(t, node.CompleteSucceeded, after["Beta.b2"].State)
}

func TestLoadState_NoPreviousRun(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, nil)
	_, err := LoadState(cfg)
	require.Error(t, err)
	assert.Equal(t, clierrors.Argument, clierrors.CategoryOf(err))
	assert.Contains(t, err.Error(), "no persisted tree")
}

func TestListSummaries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	older := NewRunSummary("s", "main", config.SelectionPersisted, []string{"g"})
	older.StartedAt = time.Now().Add(-time.Hour)
	newer := NewRunSummary("s", "main", config.SelectionPersisted, []string{"g"})
	require.NoError(t, SaveSummary(dir, older))
	require.NoError(t, SaveSummary(dir, newer))
	require.NoError(t, os.WriteFile(filepath.Join(GetRunsDir(dir), "junk.yaml"), []byte("status: [unclosed"), 0o644))

	runs, err := ListSummaries(dir)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.RunID, runs[0].RunID)
	assert.Equal(t, older.RunID, runs[1].RunID)

	missing, err := ListSummaries(filepath.Join(dir, "absent"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}
