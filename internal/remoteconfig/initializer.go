package remoteconfig

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"courier/internal/fallback"
	logx "courier/pkg/logx"

	"golang.org/x/sync/singleflight"
)

type State int32

const (
	Uninitialized State = iota
	InFlight
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case InFlight:
		return "in_flight"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const flightKey = "remote-config"

// InitializerOptions configures an Initializer.
type InitializerOptions struct {
	Strategies []fallback.Strategy[Config]
	// Timeout bounds the whole acquisition and every caller's wait.
	Timeout time.Duration
	// AttemptTimeout bounds each strategy. Defaults to Timeout.
	AttemptTimeout time.Duration
	Log            logx.Logger
	OnAttempt      func(fallback.Attempt)
}

// Initializer acquires the remote config at most once concurrently.
//
// Concurrent callers share the in-flight acquisition instead of starting
// their own. A failed acquisition is not sticky: the next caller starts over.
// A successful one is final.
type Initializer struct {
	opts InitializerOptions
	log  logx.Logger

	group singleflight.Group

	mu      sync.RWMutex
	state   State
	cfg     Config
	lastErr error

	loads atomic.Int64
}

func NewInitializer(opts InitializerOptions) *Initializer {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.AttemptTimeout <= 0 || opts.AttemptTimeout > opts.Timeout {
		opts.AttemptTimeout = opts.Timeout
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Initializer{opts: opts, log: log.With(logx.String("comp", "remoteconfig"))}
}

// EnsureReady returns true once the config is loaded. It waits for at most
// the configured timeout (or until ctx ends), whether it started the
// acquisition or joined one already in flight.
func (i *Initializer) EnsureReady(ctx context.Context) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	if i.State() == Ready {
		return true
	}

	ch := i.group.DoChan(flightKey, func() (any, error) {
		// The flight must not die with whichever caller happened to start it.
		return i.load(context.WithoutCancel(ctx))
	})

	t := time.NewTimer(i.opts.Timeout)
	defer t.Stop()

	select {
	case r := <-ch:
		return r.Err == nil
	case <-t.C:
		i.log.Warn("remote config wait timed out", logx.Duration("timeout", i.opts.Timeout))
		return false
	case <-ctx.Done():
		return false
	}
}

func (i *Initializer) load(parent context.Context) (Config, error) {
	i.mu.Lock()
	if i.state == Ready {
		cfg := i.cfg
		i.mu.Unlock()
		return cfg, nil
	}
	prev := i.state
	i.state = InFlight
	i.mu.Unlock()

	i.loads.Add(1)
	if prev == Failed {
		i.log.Info("retrying remote config acquisition")
	}

	ctx, cancel := context.WithTimeout(parent, i.opts.Timeout)
	defer cancel()

	chain := fallback.Chain[Config]{
		Goal:       "remote-config",
		Strategies: i.opts.Strategies,
		Budget:     i.opts.AttemptTimeout,
		Log:        i.log,
		OnAttempt:  i.opts.OnAttempt,
	}
	cfg, source, err := chain.Run(ctx)

	i.mu.Lock()
	defer i.mu.Unlock()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrConfigUnavailable, err)
		i.state = Failed
		i.lastErr = err
		i.log.Error("remote config unavailable", logx.Err(err))
		return Config{}, err
	}
	i.state = Ready
	i.cfg = cfg
	i.lastErr = nil
	i.log.Info("remote config ready", logx.String("source", source), logx.String("destination", cfg.Destination))
	return cfg, nil
}

// Config returns the loaded config.
func (i *Initializer) Config() (Config, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cfg, i.state == Ready
}

func (i *Initializer) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Err returns the error of the last failed acquisition, if any.
func (i *Initializer) Err() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lastErr
}

// Loads returns how many times the retrieval chain has been executed.
func (i *Initializer) Loads() int64 { return i.loads.Load() }

// IsInvalid reports whether err came from a config that failed validation.
func IsInvalid(err error) bool { return errors.Is(err, ErrConfigInvalid) }
