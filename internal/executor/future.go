package executor

import (
	"context"

	"github.com/hanpama/docdb/internal/dberr"
)

// Outcome is the result of one asynchronous operation: Value when Err is nil,
// otherwise a failure and the zero Value.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Future is a single-shot handle to an Outcome that is resolved by another
// goroutine. Successes and failures share the same channel.
type Future[T any] struct {
	done chan struct{}
	out  Outcome[T]
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns an already completed future.
func Resolved[T any](v T, err error) *Future[T] {
	f := newFuture[T]()
	f.resolve(Outcome[T]{Value: v, Err: err})
	return f
}

// resolve must be called exactly once.
func (f *Future[T]) resolve(o Outcome[T]) {
	if o.Err != nil {
		var zero T
		o.Value = zero
	}
	f.out = o
	close(f.done)
}

// Done is closed once the outcome is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await blocks until the future resolves or ctx ends. Giving up on ctx does
// not cancel the underlying request; the ctx error is reported as a
// dberr.Transport failure wrapping it.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.out.Value, f.out.Err
	case <-ctx.Done():
		var zero T
		return zero, dberr.NewTransport(ctx.Err())
	}
}

// Outcome returns the outcome if the future has resolved.
func (f *Future[T]) Outcome() (Outcome[T], bool) {
	select {
	case <-f.done:
		return f.out, true
	default:
		return Outcome[T]{}, false
	}
}

// Then runs fn with the outcome once resolved, on its own goroutine.
func (f *Future[T]) Then(fn func(Outcome[T])) {
	go func() {
		<-f.done
		fn(f.out)
	}()
}
