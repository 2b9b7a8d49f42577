package enrich

import "context"

// Future is a value that becomes available once. Done is closed when it does.
type Future[T any] struct {
	done  chan struct{}
	value T
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future that is already complete.
func Resolved[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.resolve(v)
	return f
}

func (f *Future[T]) resolve(v T) {
	f.value = v
	close(f.done)
}

func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Value returns the result. It must only be called after Done is closed.
func (f *Future[T]) Value() T {
	return f.value
}

// Wait blocks until the future completes or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
