package app

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"courier/internal/config"
	"courier/internal/enrich"
	"courier/internal/fallback"
	"courier/internal/remoteconfig"
	"courier/internal/storage"
	"courier/internal/telemetry"
	"courier/internal/transport"
	logx "courier/pkg/logx"
)

const defaultTimeout = 10 * time.Second

// timeouts derived from delivery.timeout.
type timeouts struct {
	base       time.Duration
	enrichWait time.Duration
	remote     time.Duration
	lookup     time.Duration
}

func mapTimeouts(cfg *config.Config) (timeouts, error) {
	var t timeouts
	var err error
	if t.base, err = config.ParseDurationOrDefault("delivery.timeout", cfg.Delivery.Timeout, defaultTimeout); err != nil {
		return t, err
	}
	if t.enrichWait, err = config.ParseDurationOrDefault("delivery.enrichment_budget", cfg.Delivery.EnrichmentBudget, t.base); err != nil {
		return t, err
	}
	if t.remote, err = config.ParseDurationOrDefault("remote_config.attempt_timeout", cfg.RemoteConfig.AttemptTimeout, t.base); err != nil {
		return t, err
	}
	t.lookup = t.base
	if e := cfg.Enrichment; e != nil {
		if t.lookup, err = config.ParseDurationOrDefault("enrichment.timeout", e.Timeout, t.base); err != nil {
			return t, err
		}
	}
	return t, nil
}

func mapRemoteSources(cfg *config.Config) []remoteconfig.Source {
	out := make([]remoteconfig.Source, 0, len(cfg.RemoteConfig.Sources))
	for _, s := range cfg.RemoteConfig.Sources {
		out = append(out, remoteconfig.Source{Name: s.Name, Kind: s.Kind, Endpoint: s.Endpoint})
	}
	return out
}

func newInitializer(cfg *config.Config, t timeouts, client *http.Client, m *telemetry.Metrics, log logx.Logger) (*remoteconfig.Initializer, error) {
	strategies, err := remoteconfig.NewFetcher(client).Strategies(mapRemoteSources(cfg), t.remote)
	if err != nil {
		return nil, err
	}
	return remoteconfig.NewInitializer(remoteconfig.InitializerOptions{
		Strategies:     strategies,
		Timeout:        t.base,
		AttemptTimeout: t.remote,
		Log:            log,
		OnAttempt:      m.ObserveAttempt,
	}), nil
}

// mapEnrichment returns nil when enrichment is disabled.
func mapEnrichment(cfg *config.Config) ([]enrich.Source, enrich.Sentinels, error) {
	e := cfg.Enrichment
	if e == nil || !e.Enabled {
		return nil, enrich.Sentinels{}, nil
	}
	sources := make([]enrich.Source, 0, len(e.Sources))
	for i, s := range e.Sources {
		fields := make(map[enrich.Field]string, len(s.Fields))
		for k, path := range s.Fields {
			f, err := enrich.ParseField(k)
			if err != nil {
				return nil, enrich.Sentinels{}, fmt.Errorf("enrichment.sources[%d].fields: %w", i, err)
			}
			fields[f] = strings.TrimSpace(path)
		}
		sources = append(sources, enrich.Source{Name: s.Name, URL: s.URL, Fields: fields})
	}
	sentinels := enrich.Sentinels{Unknown: e.Sentinels.Unknown, Failed: e.Sentinels.Failed, TimedOut: e.Sentinels.TimedOut}
	return sources, sentinels.WithDefaults(), nil
}

func newCollector(sources []enrich.Source, t timeouts, client *http.Client, spawner enrich.Spawner, m *telemetry.Metrics, log logx.Logger) *enrich.Collector {
	if len(sources) == 0 {
		return nil
	}
	return enrich.NewCollector(enrich.CollectorOptions{
		Sources:   sources,
		Client:    client,
		Timeout:   t.lookup,
		Log:       log,
		OnAttempt: m.ObserveAttempt,
		Spawner:   spawner,
	})
}

func mapTransports(cfg *config.Config, client *http.Client, log logx.Logger) ([]transport.Transport, *transport.Beacon, error) {
	var out []transport.Transport
	tc := cfg.Transports
	if c := tc.Telegram; c != nil {
		d, err := config.ParseDurationOrDefault("transports.telegram.timeout", c.Timeout, 0)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, transport.NewTelegram(transport.TelegramConfig{APIURL: c.APIURL, Timeout: d, RatePerSec: c.RatePerSec}, log))
	}
	if c := tc.HTTP; c != nil {
		d, err := config.ParseDurationOrDefault("transports.http.timeout", c.Timeout, 0)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, transport.NewHTTPPost(transport.HTTPConfig{APIURL: c.APIURL, Timeout: d, Client: client}, log))
	}
	var beacon *transport.Beacon
	if c := tc.Beacon; c != nil {
		d, err := config.ParseDurationOrDefault("transports.beacon.timeout", c.Timeout, 0)
		if err != nil {
			return nil, nil, err
		}
		beacon = transport.NewBeacon(transport.BeaconConfig{APIURL: c.APIURL, Timeout: d, Client: client}, log)
		out = append(out, beacon)
	}
	return out, beacon, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapMetrics(cfg *config.Config) telemetry.Config {
	if cfg.Metrics == nil {
		return telemetry.Config{}
	}
	return telemetry.Config{Enabled: cfg.Metrics.Enabled, Namespace: cfg.Metrics.Namespace, Listen: cfg.Metrics.Listen}
}

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	}
}

// attemptNames lists the strategies that failed, in order.
func attemptNames(as []fallback.Attempt) []string {
	var out []string
	for _, a := range as {
		if a.Err != nil {
			out = append(out, a.Strategy)
		}
	}
	return out
}
