package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"courier/internal/config"
	"courier/internal/delivery"
	"courier/internal/eventbus"
	"courier/internal/runtime/supervisor"
	"courier/internal/storage"
	"courier/internal/telemetry"
	"courier/internal/transport"
	logx "courier/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	store   storage.Store
	metrics *telemetry.Metrics
	client  *http.Client

	beacon *transport.Beacon
	orch   *delivery.Orchestrator
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg))
	log = log.With(logx.String("comp", "app"))

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     eventbus.New(),
		store:   store,
		metrics: telemetry.New(mapMetrics(cfg)),
		client:  &http.Client{},
	}, nil
}

// Orchestrator is available after Start.
func (a *App) Orchestrator() *delivery.Orchestrator { return a.orch }

// Store returns the audit store, or nil when storage is disabled.
func (a *App) Store() storage.Store { return a.store }

func (a *App) Metrics() *telemetry.Metrics { return a.metrics }

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Tasks reports the supervised background tasks; nil before Start.
func (a *App) Tasks() []supervisor.TaskStats {
	if a.sup == nil {
		return nil
	}
	return a.sup.Snapshot()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start builds the delivery pipeline and its background tasks. Enrichment
// collection begins here.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	cfg := a.cfgm.Get()

	t, err := mapTimeouts(cfg)
	if err != nil {
		return err
	}
	in, err := newInitializer(cfg, t, a.client, a.metrics, a.log.With(logx.String("comp", "remoteconfig")))
	if err != nil {
		return err
	}
	sources, sentinels, err := mapEnrichment(cfg)
	if err != nil {
		return err
	}
	transports, beacon, err := mapTransports(cfg, a.client, a.log)
	if err != nil {
		return err
	}
	a.beacon = beacon

	header := ""
	if cfg.Enrichment != nil {
		header = cfg.Enrichment.Header
	}
	a.orch = delivery.New(a.sup.Context(), delivery.Options{
		Initializer:      in,
		Enrichment:       newCollector(sources, t, a.client, a.sup, a.metrics, a.log),
		Transports:       transports,
		Timeout:          t.base,
		EnrichmentBudget: t.enrichWait,
		Sentinels:        sentinels,
		Header:           header,
		Bus:              a.bus,
		Metrics:          a.metrics,
		Log:              a.log,
	})

	if a.store != nil {
		events, unsub := a.bus.Subscribe(256)
		a.sup.GoRestart("audit.writer", func(c context.Context) error {
			return runAudit(c, events, a.store, a.log.With(logx.String("comp", "audit")))
		}, supervisor.WithRestartBackoff(100*time.Millisecond, 5*time.Second))
		a.sup.Go("audit.unsubscribe", func(c context.Context) error {
			<-c.Done()
			unsub()
			return nil
		})
	}

	a.sup.Go("metrics.serve", func(c context.Context) error {
		return a.metrics.Serve(c, a.log.With(logx.String("comp", "metrics")))
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.Int("transports", len(transports)),
		logx.Bool("enrichment", len(sources) > 0),
		logx.Bool("storage", a.store != nil))
	return nil
}

// reloadLoop applies logging changes live. Everything else is read once at
// Start, so other changes only produce a warning.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}

			sections, attrs := config.SummarizeChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Info("config reloaded (no changes)")
				continue
			}
			a.logs.Apply(mapLogging(newCfg))

			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
			if config.RestartRequired(sections) {
				a.log.Warn("config changes outside logging take effect after restart")
			}
		}
	}
}

// Stop cancels background tasks, drains in-flight beacons and closes the
// store. It always runs every step.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	var firstErr error
	step := func(name string, fn func(context.Context) error) {
		start := time.Now()
		if err := fn(ctx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", name, err)
			}
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	if a.beacon != nil {
		step("beacon.drain", a.beacon.Wait)
	}
	step("supervisor", a.sup.Stop)
	a.logTasks()
	if a.store != nil {
		step("storage.close", func(context.Context) error { return a.store.Close() })
	}
	a.log.Info("stopped", logx.Uint64("bus_dropped", a.bus.Dropped()))
	_ = a.logs.Close()
	return firstErr
}

func (a *App) logTasks() {
	lvl := a.log.Debug
	if n := a.sup.Active(); n > 0 {
		lvl = a.log.Warn
		a.log.Warn("tasks still running after stop", logx.Int64("active", n))
	}
	for _, st := range a.sup.Snapshot() {
		fields := []logx.Field{
			logx.String("task", st.Name),
			logx.Int64("active", st.Active),
			logx.Uint64("started", st.Started),
			logx.Uint64("restarts", st.Restarts),
			logx.Uint64("panics", st.Panics),
		}
		if st.LastErr != "" {
			fields = append(fields, logx.String("last_err", st.LastErr))
		}
		lvl("task stats", fields...)
	}
}
