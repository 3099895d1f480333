// Package executor runs tasks on one dedicated goroutine.
//
// Graphics contexts are bound to the thread that created them, so every
// device operation is funneled through an Executor. Tasks come in two
// priority classes; high priority tasks always run before normal ones and
// each class is FIFO.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/gogpu/mixer/future"
)

// Priority is the scheduling class of a task.
type Priority uint8

const (
	// Normal tasks run in submission order after all pending high priority
	// tasks.
	Normal Priority = iota

	// High tasks run before any pending normal task.
	High
)

// String returns a string representation of the priority.
func (p Priority) String() string {
	switch p {
	case Normal:
		return "normal"
	case High:
		return "high"
	default:
		return fmt.Sprintf("Priority(%d)", p)
	}
}

// DefaultCapacity bounds the tasks waiting in an executor's queues.
const DefaultCapacity = 256

var (
	// ErrClosed is returned for work submitted after Close.
	ErrClosed = errors.New("executor: closed")

	// ErrTaskPanicked wraps the value of a task that panicked.
	ErrTaskPanicked = errors.New("executor: task panicked")
)

type ctxKey struct{}

type task struct {
	fn func(context.Context)

	// admitted tasks hold one unit of the capacity semaphore.
	admitted bool
}

// Executor owns one goroutine and runs submitted tasks on it.
//
// Tasks receive a context identifying the executor; passing that context
// back into Invoke, Call or Submit runs or enqueues without waiting on the
// capacity bound, which keeps reentrant calls from deadlocking.
//
// Thread safety: Executor is safe for concurrent use.
type Executor struct {
	name string

	// taskCtx is handed to every task and marks the executor goroutine.
	taskCtx context.Context

	// capacity limits queued tasks submitted from other goroutines.
	capacity *semaphore.Weighted

	mu     sync.Mutex
	high   []task
	normal []task

	// wake is signaled after each enqueue.
	wake chan struct{}

	// done is closed by Close; stopped when the goroutine has exited.
	done    chan struct{}
	stopped chan struct{}

	closed atomic.Bool
}

// New starts an executor. capacity <= 0 selects DefaultCapacity.
func New(name string, capacity int) *Executor {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	e := &Executor{
		name:     name,
		capacity: semaphore.NewWeighted(int64(capacity)),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	e.taskCtx = context.WithValue(context.Background(), ctxKey{}, e)
	go e.run()
	return e
}

// Name returns the name the executor was created with.
func (e *Executor) Name() string {
	return e.name
}

// IsCurrent reports whether ctx was handed out by this executor, that is,
// whether the caller is running on the executor goroutine.
func (e *Executor) IsCurrent(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(ctxKey{}).(*Executor)
	return owner == e
}

// Len returns the number of queued tasks.
func (e *Executor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.high) + len(e.normal)
}

// Closed reports whether Close has been called.
func (e *Executor) Closed() bool {
	return e.closed.Load()
}

// Post enqueues fn without waiting for capacity or completion. It is meant
// for small bookkeeping tasks, such as returning resources to a pool, that
// may be issued from any goroutine including the executor's own.
func (e *Executor) Post(fn func(context.Context), prio Priority) error {
	return e.push(task{fn: fn}, prio)
}

// Invoke runs fn on the executor and waits for it. Called from a task it
// runs fn inline.
func (e *Executor) Invoke(ctx context.Context, fn func(context.Context) error, prio Priority) error {
	_, err := Call(e, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, prio)
	return err
}

// Submit enqueues fn and returns a future for its result. Callers outside
// the executor block while the queue is at capacity, until ctx is done.
func Submit[T any](e *Executor, ctx context.Context, fn func(context.Context) (T, error), prio Priority) *future.Future[T] {
	f, resolve := future.NewPromise[T]()
	err := e.enqueue(ctx, func(tc context.Context) {
		resolve(call(tc, fn))
	}, prio)
	if err != nil {
		var zero T
		resolve(zero, err)
	}
	return f
}

// Call runs fn on the executor and returns its result. Called from a task it
// runs fn inline.
func Call[T any](e *Executor, ctx context.Context, fn func(context.Context) (T, error), prio Priority) (T, error) {
	if e.IsCurrent(ctx) {
		return call(ctx, fn)
	}
	return Submit(e, ctx, fn, prio).Get()
}

// Yield runs one queued task if called from a task of e. It reports whether
// a task ran.
func (e *Executor) Yield(ctx context.Context) bool {
	if !e.IsCurrent(ctx) {
		return false
	}
	t, ok := e.pop()
	if !ok {
		return false
	}
	e.exec(t)
	return true
}

// Await waits for f. Called from a task of e it keeps running queued tasks
// while waiting, so a task may await work it has itself enqueued.
func Await[T any](ctx context.Context, e *Executor, f *future.Future[T]) (T, error) {
	if e.IsCurrent(ctx) && !f.IsDeferred() {
		for !f.Ready() {
			if e.Yield(ctx) {
				continue
			}
			select {
			case <-f.Done():
			case <-e.wake:
			}
		}
	}
	return f.Get()
}

// Close stops accepting tasks, runs the tasks already queued and waits for
// the goroutine to exit. It must not be called from a task.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed.Load() {
		e.mu.Unlock()
		<-e.stopped
		return
	}
	e.closed.Store(true)
	e.mu.Unlock()

	close(e.done)
	<-e.stopped
}

func (e *Executor) enqueue(ctx context.Context, fn func(context.Context), prio Priority) error {
	if e.closed.Load() {
		return ErrClosed
	}
	t := task{fn: fn}
	if !e.IsCurrent(ctx) {
		if ctx == nil {
			ctx = context.Background()
		}
		if err := e.capacity.Acquire(ctx, 1); err != nil {
			return err
		}
		t.admitted = true
	}
	if err := e.push(t, prio); err != nil {
		if t.admitted {
			e.capacity.Release(1)
		}
		return err
	}
	return nil
}

func (e *Executor) push(t task, prio Priority) error {
	e.mu.Lock()
	if e.closed.Load() {
		e.mu.Unlock()
		return ErrClosed
	}
	if prio == High {
		e.high = append(e.high, t)
	} else {
		e.normal = append(e.normal, t)
	}
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return nil
}

func (e *Executor) pop() (task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var t task
	switch {
	case len(e.high) > 0:
		t = e.high[0]
		e.high[0] = task{}
		e.high = e.high[1:]
	case len(e.normal) > 0:
		t = e.normal[0]
		e.normal[0] = task{}
		e.normal = e.normal[1:]
	default:
		return task{}, false
	}
	return t, true
}

func (e *Executor) exec(t task) {
	if t.admitted {
		e.capacity.Release(1)
	}
	t.fn(e.taskCtx)
}

// run is the executor goroutine.
func (e *Executor) run() {
	defer close(e.stopped)

	for {
		if t, ok := e.pop(); ok {
			e.exec(t)
			continue
		}
		select {
		case <-e.wake:
		case <-e.done:
			// Drain what was queued before Close
			for {
				t, ok := e.pop()
				if !ok {
					return
				}
				e.exec(t)
			}
		}
	}
}

func call[T any](ctx context.Context, fn func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return fn(ctx)
}
