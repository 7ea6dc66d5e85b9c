// Package demo is a small built-in suite so the proctest binary can be run
// without an embedding application. It exercises parallel and sequential
// scheduling, cross-node prerequisites and a requirement.
//
// Setting the group parameter "fail" to a method name (for example
// "Store.read") makes that node fail during verification.
package demo

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/ariel-frischer/proctest/internal/controller"
	"github.com/ariel-frischer/proctest/internal/node"
	"github.com/ariel-frischer/proctest/internal/registry"
)

// EntryPoint is the unit name the default configuration uses.
const EntryPoint = "demo"

// RequirementPersistence is supported by the storage nodes.
const RequirementPersistence = "persistence"

// Module registers the demo suite.
type Module struct {
	// Requirement receives support notifications; nil registers a fresh one.
	Requirement *Requirement
}

// Register implements registry.Module.
func (m Module) Register(r *registry.Registry) {
	req := m.Requirement
	if req == nil {
		req = NewRequirement(RequirementPersistence)
	}
	r.MustRegisterUnit(EntryPoint, func() controller.Unit { return suite{} })
	r.RegisterRequirement(req)
}

type suite struct{}

func (suite) Run(c *controller.Controller) {
	if _, err := c.Initialize(node.Options{Sequencing: node.Parallel}); err != nil {
		return
	}
	_ = c.Subtest(node.NewIdentity("Arith", "all"), controller.Func(arith))
	_ = c.Subtest(node.NewIdentity("Store", "all"), controller.Func(store))
}

// arith registers one parameterized node per operand.
func arith(c *controller.Controller) {
	if _, err := c.Initialize(node.Options{Sequencing: node.Parallel, Tags: []string{"smoke"}}); err != nil {
		return
	}
	for i := 1; i <= 3; i++ {
		operand := i
		id := node.NewIdentity("Arith", "double").WithArg(strconv.Itoa(operand))
		_ = c.Subtest(id, controller.Func(func(c *controller.Controller) {
			verifying, err := c.Initialize(node.Options{})
			if err != nil || !verifying {
				return
			}
			if got := operand + operand; got != 2*operand || shouldFail(c) {
				c.Failf("double(%d) = %d", operand, got)
				return
			}
			c.Logf("double(%d) ok", operand)
		}))
	}
}

// store writes then reads back a value, sequentially.
func store(c *controller.Controller) {
	if _, err := c.Initialize(node.Options{Sequencing: node.SequentialAbort}); err != nil {
		return
	}
	var (
		mu   sync.Mutex
		data = map[string]string{}
	)
	_ = c.Subtest(node.NewIdentity("Store", "write"), controller.Func(func(c *controller.Controller) {
		verifying, err := c.Initialize(node.Options{Requirements: []string{RequirementPersistence}})
		if err != nil || !verifying {
			return
		}
		mu.Lock()
		data["key"] = "value"
		mu.Unlock()
		if shouldFail(c) {
			c.Fail("write rejected")
		}
	}))
	_ = c.Subtest(node.NewIdentity("Store", "read"), controller.Func(func(c *controller.Controller) {
		verifying, err := c.Initialize(node.Options{
			Prerequisites: []node.Prerequisite{node.Requires("Store", "write")},
		})
		if err != nil || !verifying {
			return
		}
		mu.Lock()
		v := data["key"]
		mu.Unlock()
		if v != "value" || shouldFail(c) {
			c.Fail(fmt.Sprintf("read %q, want %q", v, "value"))
		}
	}))
}

func shouldFail(c *controller.Controller) bool {
	v, ok := c.Param("fail")
	return ok && v == c.Identity().String()
}

// Requirement records the nodes reported as supporting it.
type Requirement struct {
	name string

	mu        sync.Mutex
	supported []string
}

// NewRequirement creates a requirement named name.
func NewRequirement(name string) *Requirement {
	return &Requirement{name: name}
}

// Name implements coverage.Requirement.
func (r *Requirement) Name() string { return r.name }

// Notify implements coverage.Requirement.
func (r *Requirement) Notify(n *node.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.supported = append(r.supported, n.ID.Qualified())
}

// Supported returns the qualified identities notified so far.
func (r *Requirement) Supported() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.supported...)
}
