// Package latch provides a single-write, multi-read value slot with
// bounded-wait reads.
//
// A Latch starts pending, is resolved at most once by a producer, and can be
// awaited by any number of independent consumers. Every Await call carries its
// own budget: if the producer never resolves, each waiter returns ErrTimedOut
// once its own budget elapses, regardless of other waiters.
package latch

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimedOut is returned by Await when the budget elapses before Resolve.
var ErrTimedOut = errors.New("latch: timed out")

type Latch[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
}

func New[T any]() *Latch[T] {
	return &Latch[T]{done: make(chan struct{})}
}

// Resolve stores v and releases all waiters. Only the first call has an
// effect; it reports whether this call was the one that resolved the latch.
func (l *Latch[T]) Resolve(v T) bool {
	resolved := false
	l.once.Do(func() {
		l.value = v
		close(l.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the latch is resolved.
func (l *Latch[T]) Done() <-chan struct{} { return l.done }

// Peek returns the value without waiting.
func (l *Latch[T]) Peek() (T, bool) {
	select {
	case <-l.done:
		return l.value, true
	default:
		var zero T
		return zero, false
	}
}

// Await blocks until the latch is resolved, the budget elapses, or ctx ends.
// A budget <= 0 checks once and never waits.
func (l *Latch[T]) Await(ctx context.Context, budget time.Duration) (T, error) {
	if v, ok := l.Peek(); ok {
		return v, nil
	}
	var zero T
	if budget <= 0 {
		return zero, ErrTimedOut
	}
	if ctx == nil {
		ctx = context.Background()
	}

	t := time.NewTimer(budget)
	defer t.Stop()

	select {
	case <-l.done:
		return l.value, nil
	case <-t.C:
		return zero, ErrTimedOut
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// AwaitUntil is Await with an absolute deadline, so several latches can share
// one budget.
func (l *Latch[T]) AwaitUntil(ctx context.Context, deadline time.Time) (T, error) {
	return l.Await(ctx, time.Until(deadline))
}
