package delivery

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"courier/internal/enrich"
	"courier/internal/eventbus"
	"courier/internal/fallback"
	"courier/internal/remoteconfig"
	"courier/internal/telemetry"
	"courier/internal/transport"
	logx "courier/pkg/logx"

	"github.com/google/uuid"
)

var (
	ErrNotReady     = errors.New("delivery: remote config not ready")
	ErrNoTransports = errors.New("delivery: no transports configured")
)

const (
	EventSent   = "delivery.sent"
	EventFailed = "delivery.failed"
)

type Options struct {
	Initializer *remoteconfig.Initializer
	// Enrichment is nil when enrichment is disabled.
	Enrichment *enrich.Collector
	Transports []transport.Transport

	// Timeout is the base budget. EnrichmentBudget and AttemptTimeout
	// default to it.
	Timeout          time.Duration
	EnrichmentBudget time.Duration
	AttemptTimeout   time.Duration

	Sentinels enrich.Sentinels
	Header    string

	Bus     eventbus.Bus
	Metrics *telemetry.Metrics
	Log     logx.Logger
}

// Result describes one delivery.
type Result struct {
	ID        string
	OK        bool
	Transport string
	Attempts  []fallback.Attempt
	Payload   string
	Err       error
	Took      time.Duration
}

// Orchestrator owns the remote config state and the enrichment record for
// one application. Initialize and Deliver are safe for concurrent use.
type Orchestrator struct {
	opts       Options
	log        logx.Logger
	record     *enrich.Record
	transports []transport.Transport
}

// New builds an orchestrator and starts enrichment collection right away,
// bound to ctx.
func New(ctx context.Context, opts Options) *Orchestrator {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.EnrichmentBudget <= 0 {
		opts.EnrichmentBudget = opts.Timeout
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = opts.Timeout
	}
	opts.Sentinels = opts.Sentinels.WithDefaults()
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	o := &Orchestrator{
		opts:       opts,
		log:        log.With(logx.String("comp", "delivery")),
		transports: transport.Order(opts.Transports),
	}
	if opts.Enrichment != nil {
		o.record = opts.Enrichment.Start(ctx)
	}
	return o
}

// Initialize makes sure the remote config is loaded. It never panics and
// never returns an error; failures are logged.
func (o *Orchestrator) Initialize(ctx context.Context) bool {
	if o.opts.Initializer == nil {
		o.log.Error("no remote config initializer")
		return false
	}
	ok := o.opts.Initializer.EnsureReady(ctx)
	st := o.opts.Initializer.State()
	o.opts.Metrics.SetInitState(st.String(),
		remoteconfig.Uninitialized.String(), remoteconfig.InFlight.String(),
		remoteconfig.Ready.String(), remoteconfig.Failed.String())
	if !ok {
		o.log.Warn("initialization not ready", logx.String("state", st.String()), logx.Err(o.opts.Initializer.Err()))
	}
	return ok
}

// Deliver sends req through the first transport that succeeds.
//
// A true result means a transport reported success. A false result does not
// prove the message was lost: a transport may have delivered it while its
// acknowledgment was rejected or lost, after which the next transport is
// tried. False negatives are possible; false positives are not expected from
// acknowledged transports. A Dispatched transport (Beacon) reports success
// once the request is sent, so it can mask a failed delivery.
func (o *Orchestrator) Deliver(ctx context.Context, req Request) bool {
	return o.DeliverResult(ctx, req).OK
}

// DeliverResult is Deliver with the full outcome.
func (o *Orchestrator) DeliverResult(ctx context.Context, req Request) (res Result) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	res.ID = uuid.NewString()
	log := o.log.With(logx.String("delivery_id", res.ID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("delivery panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			res.OK = false
			res.Err = fmt.Errorf("panic: %v", r)
		}
		res.Took = time.Since(start)
		o.finish(log, res)
	}()

	if !o.Initialize(ctx) {
		res.Err = ErrNotReady
		if in := o.opts.Initializer; in != nil && in.Err() != nil {
			res.Err = fmt.Errorf("%w: %w", ErrNotReady, in.Err())
		}
		return res
	}
	cfg, _ := o.opts.Initializer.Config()

	var snap *enrich.Snapshot
	if o.enrichmentEnabled(cfg) {
		s := o.record.Await(ctx, o.opts.EnrichmentBudget)
		snap = &s
		for _, st := range []enrich.FieldState{enrich.Resolved, enrich.Unknown, enrich.Failed, enrich.TimedOut} {
			o.opts.Metrics.RecordEnrichment(st.String(), s.Count(st))
		}
		if n := s.Count(enrich.TimedOut); n > 0 {
			log.Info("enrichment incomplete", logx.Int("timed_out", n))
		}
	}
	res.Payload = Render(req, snap, o.opts.Sentinels, o.opts.Header, cfg.ParseMode)

	if len(o.transports) == 0 {
		res.Err = ErrNoTransports
		return res
	}
	msg := transport.Message{
		Text:        res.Payload,
		Destination: cfg.Destination,
		Credential:  cfg.Credential,
		ParseMode:   cfg.ParseMode,
	}
	chain := fallback.Chain[string]{
		Goal:       "delivery",
		Strategies: strategies(o.transports, msg),
		Budget:     o.opts.AttemptTimeout,
		Log:        log,
		OnAttempt: func(a fallback.Attempt) {
			res.Attempts = append(res.Attempts, a)
			o.opts.Metrics.ObserveAttempt(a)
			if a.Err != nil {
				log.Warn("transport failed", logx.String("transport", a.Strategy), logx.Duration("took", a.Took), logx.Err(a.Err))
			}
		},
	}
	name, _, err := chain.Run(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	res.OK = true
	res.Transport = name
	return res
}

func (o *Orchestrator) enrichmentEnabled(cfg remoteconfig.Config) bool {
	if o.record == nil {
		return false
	}
	return cfg.Enrichment == nil || *cfg.Enrichment
}

func strategies(ts []transport.Transport, msg transport.Message) []fallback.Strategy[string] {
	out := make([]fallback.Strategy[string], 0, len(ts))
	for _, t := range ts {
		t := t
		out = append(out, fallback.Strategy[string]{
			Name: t.Name(),
			Run: func(ctx context.Context) (string, error) {
				return t.Name(), t.Send(ctx, msg)
			},
		})
	}
	return out
}

func (o *Orchestrator) finish(log logx.Logger, res Result) {
	o.opts.Metrics.RecordDelivery(res.OK, res.Transport, res.Took)
	typ := EventSent
	if res.OK {
		log.Info("delivered", logx.String("transport", res.Transport), logx.Int("attempts", len(res.Attempts)), logx.Duration("took", res.Took))
	} else {
		typ = EventFailed
		log.Error("delivery failed", logx.Int("attempts", len(res.Attempts)), logx.Duration("took", res.Took), logx.Err(res.Err))
	}
	if o.opts.Bus != nil {
		o.opts.Bus.Publish(eventbus.Event{Type: typ, Data: res})
	}
}

// Record exposes the enrichment record; nil when enrichment is disabled.
func (o *Orchestrator) Record() *enrich.Record { return o.record }
