package demo

import (
	"testing"

	"github.com/ariel-frischer/proctest/internal/controller"
	"github.com/ariel-frischer/proctest/internal/coverage"
	"github.com/ariel-frischer/proctest/internal/node"
	"github.com/ariel-frischer/proctest/internal/registry"
	"github.com/ariel-frischer/proctest/internal/resolver"
	"github.com/ariel-frischer/proctest/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runDemo(t *testing.T, params map[string]string) (*node.Registry, *Requirement) {
	t.Helper()

	req := NewRequirement(RequirementPersistence)
	units := registry.New().Use(Module{Requirement: req})
	ctor, ok := units.Unit(EntryPoint)
	require.True(t, ok)

	root := controller.RootIdentity("demo", EntryPoint)
	tree, err := controller.NewRun(controller.Options{Workers: 2, Params: params}).Discover(root, ctor())
	require.NoError(t, err)
	reg, err := node.Sequence([]*node.Node{tree})
	require.NoError(t, err)
	_, err = resolver.Resolve(reg, nil)
	require.NoError(t, err)

	vrun := controller.NewRun(controller.Options{
		Workers: 2,
		Params:  params,
		Store:   status.NewMemory(0, reg.Len()),
	})
	require.NoError(t, vrun.Verify(tree, ctor()))
	coverage.Propagate(reg, units.Requirement, nil)
	return reg, req
}

func find(t *testing.T, reg *node.Registry, id string) *node.Node {
	t.Helper()
	for _, n := range reg.Nodes() {
		if n.ID.String() == id {
			return n
		}
	}
	t.Fatalf("node %s not found", id)
	return nil
}

func TestDemo_AllSucceed(t *testing.T) {
	t.Parallel()

	reg, req := runDemo(t, nil)
	assert.Equal(t, 8, reg.Len())
	for _, n := range reg.Nodes() {
		assert.Equal(t, node.CompleteSucceeded, n.State, "%s", n.ID)
	}
	assert.ElementsMatch(t, []string{"demo:Store.write", "demo:Store.read"}, req.Supported())
	assert.True(t, find(t, reg, "Arith.all").HasTag("smoke"))
}

func TestDemo_FailParameter(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		fail       string
		wantFailed string
		check      func(t *testing.T, reg *node.Registry)
	}{
		"arith operand": {
			fail:       "Arith.double(2)",
			wantFailed: "Arith.double(2)",
			check: func(t *testing.T, reg *node.Registry) {
				assert.Equal(t, node.CompleteSucceeded, find(t, reg, "Arith.double(1)").State)
			},
		},
		"write skips read": {
			fail:       "Store.write",
			wantFailed: "Store.write",
			check: func(t *testing.T, reg *node.Registry) {
				assert.True(t, find(t, reg, "Store.read").State.Skipped())
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			reg, _ := runDemo(t, map[string]string{"fail": tt.fail})
			assert.Equal(t, node.CompleteFailed, find(t, reg, tt.wantFailed).State)
			tt.check(t, reg)
		})
	}
}
