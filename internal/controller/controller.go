package controller

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ariel-frischer/proctest/internal/node"
	"github.com/ariel-frischer/proctest/internal/status"
	"go.uber.org/zap"
)

// ErrNotDiscovered is returned by Subtest in verification for a
// registration the discovery pass never saw.
var ErrNotDiscovered = errors.New("subtest was not registered during discovery")

// Controller drives one node. Units receive their controller in Run and use
// it to declare themselves, register subtests and report failures.
type Controller struct {
	run  *Run
	node *node.Node
	unit Unit

	children []*Controller
	// claimed marks discovered children matched by a verification registration.
	claimed []bool
	// remaining counts parallel children still running.
	remaining int
	// failed is set once any node in this subtree completed failed.
	failed bool
	onDone func()
}

// Node returns the controlled node. Units must treat it as read-only.
func (c *Controller) Node() *node.Node {
	return c.node
}

// Identity returns the node's identity.
func (c *Controller) Identity() node.Identity {
	return c.node.ID
}

// Verifying reports whether this is the verification pass.
func (c *Controller) Verifying() bool {
	return c.run.pass == Verification
}

// Param returns a configured group parameter.
func (c *Controller) Param(key string) (string, bool) {
	v, ok := c.run.opts.Params[key]
	return v, ok
}

// Logger returns a logger tagged with the node.
func (c *Controller) Logger() *zap.Logger {
	return c.run.log.With(zap.String("node", c.node.ID.Qualified()))
}

// Initialize declares the node's options. It must be called exactly once per
// pass and reports whether real assertions may run: discovery always returns
// false. Calling it twice or from a non-initial state is a configuration
// error.
func (c *Controller) Initialize(opts node.Options) (bool, error) {
	r := c.run
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := c.node.Initialize(opts); err != nil {
		r.configError(err)
		if r.pass == Verification {
			c.node.FailInternal(err.Error())
		}
		return false, err
	}
	return r.pass == Verification, nil
}

// Subtest registers a child unit. Children run after this unit returns,
// scheduled by the node's sequencing mode. In verification the registration
// is matched against the discovered children by position, then identity.
func (c *Controller) Subtest(id node.Identity, unit Unit) error {
	r := c.run
	r.mu.Lock()
	defer r.mu.Unlock()

	n := c.node
	if !n.Initialized() || n.State != node.Initialized {
		err := &node.ConfigError{
			Message: fmt.Sprintf("%s: subtest %s registered outside Run after Initialize", n.ID.Qualified(), id),
			Nodes:   []node.Identity{n.ID},
		}
		r.configError(err)
		return err
	}

	id.Group = n.ID.Group
	var child *node.Node
	if r.pass == Discovery {
		child = n.AddChild(id)
	} else if child = c.claim(id); child == nil {
		n.FailInternal(fmt.Sprintf("subtest %s was not registered during discovery", id))
		return fmt.Errorf("%s: %w", id, ErrNotDiscovered)
	}

	c.children = append(c.children, &Controller{run: r, node: child, unit: unit})
	return nil
}

// Fail records a failure on the node. The node completes failed.
func (c *Controller) Fail(msg string) {
	c.run.mu.Lock()
	defer c.run.mu.Unlock()
	c.node.Fail(msg)
}

// Failf is Fail with formatting.
func (c *Controller) Failf(format string, args ...any) {
	c.Fail(fmt.Sprintf(format, args...))
}

// Log captures a message on the node.
func (c *Controller) Log(msg string) {
	c.run.mu.Lock()
	defer c.run.mu.Unlock()
	c.node.Messages = append(c.node.Messages, msg)
}

// Logf is Log with formatting.
func (c *Controller) Logf(format string, args ...any) {
	c.Log(fmt.Sprintf(format, args...))
}

// claim finds the discovered child matching id. Callers hold the run lock.
func (c *Controller) claim(id node.Identity) *node.Node {
	kids := c.node.Children()
	if c.claimed == nil {
		c.claimed = make([]bool, len(kids))
	}
	if pos := len(c.children); pos < len(kids) && !c.claimed[pos] && kids[pos].ID.Equal(id) {
		c.claimed[pos] = true
		return kids[pos]
	}
	for i, k := range kids {
		if !c.claimed[i] && k.ID.Equal(id) {
			c.claimed[i] = true
			return k
		}
	}
	return nil
}

// start is the pool task for c: eligibility, local execution, then child
// scheduling.
func (c *Controller) start() {
	r := c.run
	r.mu.Lock()
	if state, skip, err := c.eligibility(); err != nil {
		r.log.Error("checking eligibility", zap.String("node", c.node.ID.Qualified()), zap.Error(err))
		c.node.FailInternal(err.Error())
		c.node.Started = time.Now()
		c.skipChildren(c.node.Children(), node.SkippedDueToPrerequisiteError)
		c.finish()
		r.mu.Unlock()
		return
	} else if skip {
		r.skipSubtree(c.node, state)
		c.onDone()
		r.mu.Unlock()
		return
	}
	c.node.Started = time.Now()
	r.executed++
	r.mu.Unlock()

	c.invoke()

	r.mu.Lock()
	defer r.mu.Unlock()
	c.localDone()
}

// eligibility decides whether the node runs. In discovery everything runs.
// In verification the active flag must be set and every required
// prerequisite must have a successful outcome in the store.
func (c *Controller) eligibility() (node.State, bool, error) {
	r := c.run
	if r.pass == Discovery {
		return 0, false, nil
	}
	n := c.node
	if !n.Selected(r.opts.Flag) {
		return node.SkippedByUser, true, nil
	}
	for _, seq := range n.Prereqs.Required() {
		ok, err := status.Succeeded(r.opts.Store, seq)
		if err != nil {
			return 0, false, fmt.Errorf("prerequisite #%d: %w", seq, err)
		}
		if !ok {
			r.log.Debug("prerequisite not satisfied",
				zap.String("node", n.ID.Qualified()), zap.Int("prerequisite", seq))
			return node.SkippedDueToPrerequisiteError, true, nil
		}
	}
	return 0, false, nil
}

// invoke runs the unit outside the lock. A panic is a failure of the node.
func (c *Controller) invoke() {
	defer func() {
		if p := recover(); p != nil {
			c.run.log.Debug("unit panicked",
				zap.String("node", c.node.ID.Qualified()),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
			c.Fail(fmt.Sprintf("panic: %v", p))
		}
	}()
	c.unit.Run(c)
}
