package controller

import (
	"time"

	"github.com/ariel-frischer/proctest/internal/node"
	"go.uber.org/zap"
)

// localDone runs after the unit returned. Callers hold the run lock.
func (c *Controller) localDone() {
	n := c.node
	if !n.Initialized() {
		n.FailInternal("unit returned without calling Initialize")
	}
	if c.run.pass == Verification {
		c.failUnclaimed()
	}

	if n.Failed() && (n.Continuation == node.SkipOnFailure || !n.Initialized()) {
		c.skipChildren(c.childNodes(), node.SkippedDueToPrerequisiteError)
		c.finish()
		return
	}
	if len(c.children) == 0 {
		c.finish()
		return
	}

	n.State = node.RunningSubtests
	if n.Sequencing == node.Parallel {
		c.remaining = len(c.children)
		for _, ch := range c.children {
			ch.onDone = func() { c.parallelDone(ch) }
			c.run.submit(ch)
		}
		return
	}
	c.startChild(0)
}

// parallelDone is called once per parallel child. The counter reaches zero
// exactly once.
func (c *Controller) parallelDone(ch *Controller) {
	if ch.failed {
		c.failed = true
	}
	c.remaining--
	if c.remaining == 0 {
		c.finish()
	}
}

func (c *Controller) startChild(i int) {
	ch := c.children[i]
	ch.onDone = func() { c.sequentialDone(i) }
	c.run.submit(ch)
}

// sequentialDone advances to the next sibling. Under abort semantics a
// failed subtree skips the remaining siblings.
func (c *Controller) sequentialDone(i int) {
	if c.children[i].failed {
		c.failed = true
		if c.node.Sequencing == node.SequentialAbort {
			c.skipChildren(c.childNodesFrom(i+1), node.SkippedDueToSiblingError)
			c.finish()
			return
		}
	}
	if i+1 < len(c.children) {
		c.startChild(i + 1)
		return
	}
	c.finish()
}

// finish settles the node's final state, records it and hands completion to
// the parent. The node's state reflects its own failures; failures below it
// are carried by c.failed.
func (c *Controller) finish() {
	n := c.node
	if n.Failed() {
		n.State = node.CompleteFailed
	} else {
		n.State = node.CompleteSucceeded
	}
	n.Finished = time.Now()
	c.run.record(n)
	if n.State == node.CompleteFailed {
		c.failed = true
	}

	c.run.log.Debug("node complete",
		zap.String("node", n.ID.Qualified()),
		zap.Stringer("state", n.State),
		zap.Duration("duration", n.Duration()))
	c.onDone()
}

// failUnclaimed fails discovered children the verification run did not
// register again, skipping their subtrees.
func (c *Controller) failUnclaimed() {
	for i, k := range c.node.Children() {
		if c.claimed != nil && c.claimed[i] {
			continue
		}
		k.FailInternal("not registered during verification")
		k.State = node.CompleteFailed
		c.run.record(k)
		c.skipChildren(k.Children(), node.SkippedDueToPrerequisiteError)
		c.failed = true
	}
}

func (c *Controller) skipChildren(kids []*node.Node, state node.State) {
	for _, k := range kids {
		c.run.skipSubtree(k, state)
	}
}

// childNodes are the nodes of the registered children, which in verification
// may be fewer than the discovered ones.
func (c *Controller) childNodes() []*node.Node {
	return c.childNodesFrom(0)
}

func (c *Controller) childNodesFrom(i int) []*node.Node {
	out := make([]*node.Node, 0, len(c.children)-i)
	for _, ch := range c.children[i:] {
		out = append(out, ch.node)
	}
	return out
}
