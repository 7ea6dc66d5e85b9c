// Package pool runs submitted tasks on a fixed number of workers.
//
// The queue is unbounded so Submit never blocks: controllers submit their
// children from inside a running task and must not wait for a free worker.
package pool

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("pool is closed")

// Pool is a fixed-size worker pool.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	closed  bool
	workers int
	panics  []error

	g   errgroup.Group
	log *zap.Logger
}

// New starts a pool with the given number of workers (at least one).
func New(workers int, log *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pool{workers: workers, log: log.Named("pool")}
	p.cond = sync.NewCond(&p.mu)
	for id := range workers {
		p.g.Go(func() error {
			p.work(id)
			return nil
		})
	}
	p.log.Debug("worker pool started", zap.Int("workers", workers))
	return p
}

// Workers is the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

// Submit queues task. It never blocks.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.queue = append(p.queue, task)
	p.cond.Signal()
	return nil
}

// Close stops accepting tasks, waits for queued and running tasks to finish
// and stops the workers. It returns the panics recovered from tasks.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	_ = p.g.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.panics...)
}

func (p *Pool) work(id int) {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(id, task)
	}
}

func (p *Pool) run(id int, task func()) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("worker %d: task panicked: %v", id, r)
			p.log.Error("task panicked", zap.Int("worker", id), zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			p.mu.Lock()
			p.panics = append(p.panics, err)
			p.mu.Unlock()
		}
	}()
	task()
}
