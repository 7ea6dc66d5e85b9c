package controller

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ariel-frischer/proctest/internal/node"
	"github.com/ariel-frischer/proctest/internal/pool"
	"github.com/ariel-frischer/proctest/internal/status"
	"go.uber.org/zap"
)

// ErrNoStore is returned by Verify without a status store.
var ErrNoStore = errors.New("verification requires a status store")

// Options configure a run.
type Options struct {
	// Workers sizes the pool for this pass.
	Workers int
	// Flag is the selection flag consulted for eligibility in verification.
	Flag node.Flag
	// Store receives one record per node in verification and answers
	// prerequisite checks.
	Store status.Store
	// Params are the group's configured parameters, visible to units.
	Params map[string]string
	Logger *zap.Logger
}

// Run is the context shared by every controller of one pass. Its mutex
// guards all node mutation and store access during the pass.
type Run struct {
	mu   sync.Mutex
	opts Options
	pass Pass
	pool *pool.Pool
	log  *zap.Logger
	done chan struct{}

	configErrs []error
	executed   int
}

// NewRun creates a run context. One context may run several passes one
// after the other.
func NewRun(opts Options) *Run {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Run{opts: opts, log: log.Named("controller")}
}

// Discover runs unit as the root of a new tree with every node eligible and
// returns the discovered tree, unsequenced. The error joins the
// configuration errors units raised; the tree is returned regardless.
func (r *Run) Discover(root node.Identity, unit Unit) (*node.Node, error) {
	tree := node.New(root)
	err := r.execute(Discovery, tree, unit)
	return tree, err
}

// Verify replays unit against a discovered, sequenced tree. Per-run data on
// the tree is reset first; selection, declarations and edges are kept. Every
// node of the tree ends in a terminal state with a record in the store.
func (r *Run) Verify(tree *node.Node, unit Unit) error {
	if r.opts.Store == nil {
		return ErrNoStore
	}
	tree.Walk(func(n *node.Node) bool {
		n.ResetRun()
		return true
	})
	return r.execute(Verification, tree, unit)
}

// Executed is how many units the last pass ran.
func (r *Run) Executed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.executed
}

func (r *Run) execute(pass Pass, tree *node.Node, unit Unit) error {
	r.mu.Lock()
	r.pass = pass
	r.pool = pool.New(r.opts.Workers, r.log)
	r.done = make(chan struct{})
	r.configErrs = nil
	r.executed = 0

	root := &Controller{run: r, node: tree, unit: unit}
	root.onDone = func() { close(r.done) }
	r.submit(root)
	r.mu.Unlock()

	<-r.done
	poolErr := r.pool.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.Debug("pass complete",
		zap.Stringer("pass", pass),
		zap.String("root", tree.ID.Qualified()),
		zap.Stringer("state", tree.State),
		zap.Int("executed", r.executed),
		zap.Int("workers", r.pool.Workers()))
	return errors.Join(append(r.configErrs, poolErr)...)
}

// submit queues c.start. Callers hold r.mu.
func (r *Run) submit(c *Controller) {
	if err := r.pool.Submit(c.start); err != nil {
		// The pool only closes after the root completed.
		panic(fmt.Sprintf("controller: submitting %s: %v", c.node.ID.Qualified(), err))
	}
}

// record writes n's outcome to the store. A failed write becomes an
// internal failure of n. Callers hold r.mu.
func (r *Run) record(n *node.Node) {
	if r.pass != Verification {
		return
	}
	if err := r.opts.Store.Put(n.Seq, status.RecordOf(n)); err != nil {
		r.log.Error("recording outcome", zap.String("node", n.ID.Qualified()), zap.Error(err))
		n.FailInternal(fmt.Sprintf("recording outcome: %v", err))
		n.State = node.CompleteFailed
	}
}

// skipSubtree marks n and its descendants with state without running them.
// Callers hold r.mu.
func (r *Run) skipSubtree(n *node.Node, state node.State) {
	n.Walk(func(d *node.Node) bool {
		d.State = state
		r.record(d)
		return true
	})
}

func (r *Run) configError(err error) {
	r.configErrs = append(r.configErrs, err)
}
