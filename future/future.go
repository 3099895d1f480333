// Package future provides single-assignment results produced by work on
// another goroutine.
//
// A Future is either eager, resolved once by a producer, or deferred, whose
// thunk runs on the goroutine that first asks for the value. Deferred
// futures let the producer avoid blocking on work nobody consumes.
package future

import (
	"context"
	"sync"
)

// Future holds a value of type T or an error.
type Future[T any] struct {
	done     chan struct{}
	once     sync.Once
	thunk    func() (T, error)
	deferred bool

	val T
	err error
}

// NewPromise returns an unresolved future and the function that resolves it.
// Only the first call to resolve has an effect.
func NewPromise[T any]() (*Future[T], func(T, error)) {
	f := &Future[T]{done: make(chan struct{})}
	resolve := func(v T, err error) {
		f.once.Do(func() {
			f.val, f.err = v, err
			close(f.done)
		})
	}
	return f, resolve
}

// Ready returns a future already holding v.
func Ready[T any](v T) *Future[T] {
	f, resolve := NewPromise[T]()
	resolve(v, nil)
	return f
}

// Failed returns a future already holding err.
func Failed[T any](err error) *Future[T] {
	var zero T
	f, resolve := NewPromise[T]()
	resolve(zero, err)
	return f
}

// Deferred returns a future whose value is computed by fn on the first call
// to Get. Concurrent callers wait for that single computation.
func Deferred[T any](fn func() (T, error)) *Future[T] {
	return &Future[T]{done: make(chan struct{}), thunk: fn, deferred: true}
}

// Flatten returns a deferred future that resolves f and then the future f
// holds.
func Flatten[T any](f *Future[*Future[T]]) *Future[T] {
	return Deferred(func() (T, error) {
		inner, err := f.Get()
		if err != nil {
			var zero T
			return zero, err
		}
		return inner.Get()
	})
}

// Get returns the value, blocking until it is available. Deferred futures
// run their thunk here.
func (f *Future[T]) Get() (T, error) {
	if f.deferred {
		f.once.Do(func() {
			defer close(f.done)
			f.val, f.err = f.thunk()
		})
	}
	<-f.done
	return f.val, f.err
}

// GetContext is Get with cancellation. A deferred future is forced on the
// calling goroutine regardless of ctx.
func (f *Future[T]) GetContext(ctx context.Context) (T, error) {
	if f.IsDeferred() {
		return f.Get()
	}
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel closed once the value is available. For a deferred
// future that happens only after it has been forced.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether Get would return without blocking or computing.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// IsDeferred reports whether the future is deferred and not yet forced.
func (f *Future[T]) IsDeferred() bool {
	return f.deferred && !f.Ready()
}
