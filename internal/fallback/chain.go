package fallback

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	logx "courier/pkg/logx"
)

var (
	ErrNoStrategies   = errors.New("fallback: no strategies")
	ErrAttemptTimeout = errors.New("fallback: attempt timed out")
)

// Strategy is one alternative way to reach a goal.
//
// Run must only write to values it owns until it returns: an attempt that
// outlives its budget is abandoned, and whatever it does afterwards must not
// touch shared state.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// AttemptError records one failed strategy.
type AttemptError struct {
	Strategy string
	Err      error
	Took     time.Duration
}

func (e *AttemptError) Error() string { return e.Strategy + ": " + e.Err.Error() }
func (e *AttemptError) Unwrap() error { return e.Err }

// AllFailedError is returned when every strategy failed. It carries one
// AttemptError per strategy tried, in order.
type AllFailedError struct {
	Goal   string
	Errors []*AttemptError
}

func (e *AllFailedError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, ae := range e.Errors {
		parts = append(parts, ae.Error())
	}
	goal := e.Goal
	if goal == "" {
		goal = "chain"
	}
	return fmt.Sprintf("%s: all %d strategies failed: %s", goal, len(e.Errors), strings.Join(parts, "; "))
}

func (e *AllFailedError) Unwrap() []error {
	out := make([]error, 0, len(e.Errors))
	for _, ae := range e.Errors {
		out = append(out, ae)
	}
	return out
}

// Attempt is reported to Chain.OnAttempt after every strategy finishes.
type Attempt struct {
	Goal     string
	Strategy string
	Index    int
	Took     time.Duration
	Err      error
}

// Chain runs strategies strictly in order and stops at the first success.
type Chain[T any] struct {
	Goal       string
	Strategies []Strategy[T]
	// Budget bounds each attempt independently. Zero leaves only the parent ctx.
	Budget time.Duration

	Log       logx.Logger
	OnAttempt func(Attempt)
}

// Run is shorthand for a Chain without logging or hooks.
func Run[T any](ctx context.Context, strategies []Strategy[T], budget time.Duration) (T, error) {
	c := Chain[T]{Strategies: strategies, Budget: budget}
	v, _, err := c.Run(ctx)
	return v, err
}

// Run returns the first successful value and the name of the strategy that
// produced it. Later strategies are never invoked after a success.
func (c *Chain[T]) Run(ctx context.Context) (T, string, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	if len(c.Strategies) == 0 {
		return zero, "", ErrNoStrategies
	}
	log := c.Log
	if log.IsZero() {
		log = logx.Nop()
	}

	failed := &AllFailedError{Goal: c.Goal}
	for i, s := range c.Strategies {
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("strategy.%d", i)
		}
		if err := ctx.Err(); err != nil {
			failed.Errors = append(failed.Errors, &AttemptError{Strategy: name, Err: err})
			break
		}

		start := time.Now()
		v, err := c.attempt(ctx, s)
		took := time.Since(start)

		if c.OnAttempt != nil {
			c.OnAttempt(Attempt{Goal: c.Goal, Strategy: name, Index: i, Took: took, Err: err})
		}
		if err == nil {
			log.Debug("strategy succeeded", logx.String("goal", c.Goal), logx.String("strategy", name), logx.Duration("took", took))
			return v, name, nil
		}
		log.Debug("strategy failed", logx.String("goal", c.Goal), logx.String("strategy", name), logx.Duration("took", took), logx.Err(err))
		failed.Errors = append(failed.Errors, &AttemptError{Strategy: name, Err: err, Took: took})
	}
	return zero, "", failed
}

type result[T any] struct {
	v   T
	err error
}

// attempt runs one strategy within its budget. The strategy runs in its own
// goroutine so one that ignores ctx cannot hold the chain past the budget.
func (c *Chain[T]) attempt(parent context.Context, s Strategy[T]) (T, error) {
	var zero T
	if s.Run == nil {
		return zero, errors.New("strategy has no Run func")
	}

	ctx := parent
	cancel := context.CancelFunc(func() {})
	if c.Budget > 0 {
		ctx, cancel = context.WithTimeout(parent, c.Budget)
	}
	defer cancel()

	ch := make(chan result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result[T]{err: fmt.Errorf("panic: %v\n%s", r, debug.Stack())}
			}
		}()
		v, err := s.Run(ctx)
		ch <- result[T]{v: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		if parent.Err() != nil {
			return zero, parent.Err()
		}
		return zero, ErrAttemptTimeout
	}
}
