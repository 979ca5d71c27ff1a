// Package executor runs fire-and-forget side effects on a fixed-size worker
// pool so that they never delay detection.
//
// Tasks are queued in FIFO order and picked up by at most N workers.
// [Executor.Shutdown] stops intake and blocks until every queued task has run;
// no task is dropped and none is cancelled mid-execution.
package executor

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/gammazero/workerpool"
)

// ErrClosed is returned by [Executor.Schedule] after [Executor.Shutdown] has
// been called.
var ErrClosed = errors.New("executor: closed")

// Task is a unit of work. A returned error is recorded on the task's
// [Handle]; it is never propagated to the caller of Schedule.
type Task func() error

// Hooks observe task lifecycle events. Any field may be nil.
type Hooks struct {
	// OnScheduled is called after a task has been queued.
	OnScheduled func()

	// OnDone is called after a task has finished, with its error.
	OnDone func(err error)
}

// Executor is a bounded worker pool. It is safe for concurrent use.
type Executor struct {
	workers int
	hooks   Hooks

	mu     sync.Mutex
	closed bool
	pool   *workerpool.WorkerPool
}

// Option configures an [Executor].
type Option func(*Executor)

// WithHooks installs lifecycle hooks, typically for metrics.
func WithHooks(h Hooks) Option {
	return func(e *Executor) { e.hooks = h }
}

// New creates an Executor with the given number of workers. A value below 1
// selects [runtime.NumCPU].
func New(workers int, opts ...Option) *Executor {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	e := &Executor{workers: workers}
	for _, o := range opts {
		o(e)
	}
	e.pool = workerpool.New(workers)
	return e
}

// Workers returns the maximum number of concurrently running tasks.
func (e *Executor) Workers() int { return e.workers }

// Schedule queues task and returns a handle for its completion. It never
// waits for a worker. After Shutdown it returns [ErrClosed].
func (e *Executor) Schedule(task Task) (*Handle, error) {
	if task == nil {
		return nil, errors.New("executor: nil task")
	}
	h := newHandle()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	e.pool.Submit(func() {
		err := run(task)
		h.finish(err)
		if e.hooks.OnDone != nil {
			e.hooks.OnDone(err)
		}
	})
	if e.hooks.OnScheduled != nil {
		e.hooks.OnScheduled()
	}
	return h, nil
}

// Pending returns the number of queued tasks not yet picked up by a worker.
func (e *Executor) Pending() int {
	return e.pool.WaitingQueueSize()
}

// Shutdown stops accepting tasks and blocks until every queued and running
// task has finished. Calling Shutdown more than once is safe.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		// A concurrent Shutdown may still be draining; StopWait blocks until
		// the pool has stopped.
		e.pool.StopWait()
		return
	}
	e.closed = true
	e.mu.Unlock()

	pending := e.pool.WaitingQueueSize()
	slog.Debug("executor: draining", "pending", pending)
	e.pool.StopWait()
}

// run executes task, converting a panic into an error so that one bad task
// cannot take down a worker.
func run(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor: task panicked: %v", r)
			slog.Error("executor task panicked", "panic", r)
		}
	}()
	return task()
}
