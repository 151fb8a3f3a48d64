package enrich

import (
	"context"
	"net/http"
	"time"

	"courier/internal/fallback"
	"courier/internal/runtime/supervisor"
	logx "courier/pkg/logx"
)

// Spawner runs a named background task. *supervisor.Supervisor satisfies it.
type Spawner interface {
	Go(name string, fn func(ctx context.Context) error)
}

var _ Spawner = (*supervisor.Supervisor)(nil)

// CollectorOptions configures a Collector.
type CollectorOptions struct {
	Sources []Source
	Client  *http.Client
	// Timeout bounds each source query.
	Timeout   time.Duration
	Log       logx.Logger
	OnAttempt func(fallback.Attempt)
	// Spawner hosts the collection goroutine. Nil runs it on a bare goroutine.
	Spawner Spawner
}

// Collector gathers the enrichment record in the background.
type Collector struct {
	opts       CollectorOptions
	log        logx.Logger
	strategies []fallback.Strategy[Values]
}

func NewCollector(opts CollectorOptions) *Collector {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Collector{
		opts:       opts,
		log:        log.With(logx.String("comp", "enrich")),
		strategies: Strategies(opts.Client, opts.Sources, opts.Timeout),
	}
}

// Start launches a single collection attempt and returns the record it
// fills. Every field is written exactly once, even when ctx ends first. With
// a Spawner the attempt stops when either ctx or the spawner's context ends.
func (c *Collector) Start(ctx context.Context) *Record {
	rec := NewRecord()
	if c.opts.Spawner == nil {
		go c.Collect(ctx, rec)
		return rec
	}
	c.opts.Spawner.Go("enrich.collect", func(sctx context.Context) error {
		sctx, cancel := context.WithCancel(sctx)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
		c.Collect(sctx, rec)
		return nil
	})
	return rec
}

// Collect runs the fallback chain once and writes the outcome into rec.
func (c *Collector) Collect(ctx context.Context, rec *Record) {
	chain := fallback.Chain[Values]{
		Goal:       "enrichment",
		Strategies: c.strategies,
		Budget:     c.opts.Timeout,
		Log:        c.log,
		OnAttempt:  c.opts.OnAttempt,
	}
	vals, source, err := chain.Run(ctx)
	if err != nil {
		c.log.Warn("enrichment collection failed", logx.Err(err))
		for _, f := range Fields {
			rec.Set(f, FieldValue{State: Failed})
		}
		return
	}
	Fill(rec, vals)
	c.log.Debug("enrichment collected", logx.String("source", source), logx.Int("fields", len(vals)))
}

// Fill writes a successful source's values; fields it did not report become
// Unknown.
func Fill(rec *Record, vals Values) {
	for _, f := range Fields {
		if v, ok := vals[f]; ok && v != "" {
			rec.Set(f, FieldValue{State: Resolved, Value: v})
			continue
		}
		rec.Set(f, FieldValue{State: Unknown})
	}
}

// Disabled returns a record whose fields are all Unknown.
func Disabled() *Record {
	rec := NewRecord()
	Fill(rec, nil)
	return rec
}
