// Package controller runs a tree of units under the two-pass protocol.
//
// Each node gets a Controller. A controller runs its unit locally, then
// schedules the children the unit registered according to the node's
// sequencing mode. Work is passed along as continuations on a fixed-size
// worker pool: no controller ever blocks a worker waiting for children.
// Completion bubbles from the leaves to the root under the run lock, and the
// root's completion releases the caller of Discover or Verify.
//
// In the discovery pass every unit runs and Initialize reports false, so
// units only describe themselves and register subtests. In the verification
// pass the discovered tree is replayed: registrations are matched against it
// so identities and positions stay stable, and Initialize reports true.
package controller

import "github.com/ariel-frischer/proctest/internal/node"

// Unit is the code under test for one node. Run must call Initialize
// exactly once before registering subtests.
type Unit interface {
	Run(c *Controller)
}

// Func adapts a function to Unit.
type Func func(c *Controller)

// Run implements Unit.
func (f Func) Run(c *Controller) { f(c) }

// Pass identifies which of the two passes is running.
type Pass int

const (
	Discovery Pass = iota
	Verification
)

func (p Pass) String() string {
	if p == Verification {
		return "verification"
	}
	return "discovery"
}

// RootIdentity is the identity of a group's root node: the entry point's
// registered name and the fixed method "run".
func RootIdentity(group, entryPoint string) node.Identity {
	return node.Identity{Group: group, Class: entryPoint, Method: "run"}
}
