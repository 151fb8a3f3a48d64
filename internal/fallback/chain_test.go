package fallback

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func ok[T any](name string, v T, calls *int32) Strategy[T] {
	return Strategy[T]{Name: name, Run: func(ctx context.Context) (T, error) {
		atomic.AddInt32(calls, 1)
		return v, nil
	}}
}

func fail[T any](name string, err error, calls *int32) Strategy[T] {
	return Strategy[T]{Name: name, Run: func(ctx context.Context) (T, error) {
		atomic.AddInt32(calls, 1)
		var zero T
		return zero, err
	}}
}

func TestFirstSuccessWins(t *testing.T) {
	var c1, c2, c3, c4 int32
	chain := Chain[string]{
		Goal: "test",
		Strategies: []Strategy[string]{
			fail[string]("a", errors.New("a down"), &c1),
			fail[string]("b", errors.New("b down"), &c2),
			ok("c", "v", &c3),
			ok("d", "w", &c4),
		},
	}

	v, name, err := chain.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v != "v" || name != "c" {
		t.Fatalf("got %q from %q, want v from c", v, name)
	}
	if c1 != 1 || c2 != 1 || c3 != 1 {
		t.Fatalf("expected one call each for a,b,c; got %d,%d,%d", c1, c2, c3)
	}
	if c4 != 0 {
		t.Fatalf("fourth strategy must never run, ran %d times", c4)
	}
}

func TestAllFailedAggregatesErrors(t *testing.T) {
	e1 := errors.New("e1")
	e2 := errors.New("e2")
	var calls int32

	_, err := Run(context.Background(), []Strategy[int]{
		fail[int]("first", e1, &calls),
		fail[int]("second", e2, &calls),
	}, 0)

	var all *AllFailedError
	if !errors.As(err, &all) {
		t.Fatalf("expected *AllFailedError, got %T (%v)", err, err)
	}
	if len(all.Errors) != 2 {
		t.Fatalf("expected 2 attempt errors, got %d", len(all.Errors))
	}
	if all.Errors[0].Strategy != "first" || all.Errors[1].Strategy != "second" {
		t.Fatalf("unexpected order: %+v", all.Errors)
	}
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Fatalf("aggregate should wrap both e1 and e2: %v", err)
	}
}

func TestStrategiesRunSequentially(t *testing.T) {
	var running, maxRunning int32
	slowFail := Strategy[int]{Name: "slow", Run: func(ctx context.Context) (int, error) {
		n := atomic.AddInt32(&running, 1)
		if n > atomic.LoadInt32(&maxRunning) {
			atomic.StoreInt32(&maxRunning, n)
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return 0, errors.New("nope")
	}}

	_, _ = Run(context.Background(), []Strategy[int]{slowFail, slowFail, slowFail}, time.Second)
	if maxRunning != 1 {
		t.Fatalf("expected strictly sequential attempts, saw %d concurrent", maxRunning)
	}
}

func TestAttemptBudgetAbandonsSlowStrategy(t *testing.T) {
	var late int32
	stuck := Strategy[string]{Name: "stuck", Run: func(ctx context.Context) (string, error) {
		// Ignores ctx on purpose.
		time.Sleep(300 * time.Millisecond)
		atomic.StoreInt32(&late, 1)
		return "late", nil
	}}
	var calls int32

	start := time.Now()
	v, err := Run(context.Background(), []Strategy[string]{stuck, ok("fast", "fast", &calls)}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v != "fast" {
		t.Fatalf("expected fallback value, got %q", v)
	}
	if took := time.Since(start); took > 250*time.Millisecond {
		t.Fatalf("chain waited on abandoned attempt: %v", took)
	}
}

func TestAttemptTimeoutIsReported(t *testing.T) {
	blocking := Strategy[int]{Name: "block", Run: func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}}
	_, err := Run(context.Background(), []Strategy[int]{blocking}, 20*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrAttemptTimeout) {
		t.Fatalf("expected a timeout error, got %v", err)
	}
}

func TestPanicBecomesAttemptError(t *testing.T) {
	var calls int32
	boom := Strategy[int]{Name: "boom", Run: func(ctx context.Context) (int, error) {
		panic("kaboom")
	}}
	v, err := Run(context.Background(), []Strategy[int]{boom, ok("after", 9, &calls)}, 0)
	if err != nil || v != 9 {
		t.Fatalf("expected recovery to next strategy, got %d,%v", v, err)
	}
}

func TestEmptyChain(t *testing.T) {
	if _, err := Run[int](context.Background(), nil, 0); !errors.Is(err, ErrNoStrategies) {
		t.Fatalf("expected ErrNoStrategies, got %v", err)
	}
}

func TestCanceledParentStopsChain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls int32
	_, err := Run(ctx, []Strategy[int]{ok("never", 1, &calls)}, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in aggregate, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("strategy ran under a canceled context")
	}
}

func TestOnAttemptHook(t *testing.T) {
	var seen []string
	var calls int32
	chain := Chain[int]{
		Goal:       "hook",
		Strategies: []Strategy[int]{fail[int]("x", errors.New("x"), &calls), ok("y", 1, &calls)},
		OnAttempt:  func(a Attempt) { seen = append(seen, a.Strategy) },
	}
	if _, _, err := chain.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 2 || seen[0] != "x" || seen[1] != "y" {
		t.Fatalf("unexpected attempts: %v", seen)
	}
}
