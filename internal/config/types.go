package config

// Config is the local application config file.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// It describes where to find the remote delivery config, which enrichment
// services to query, and which transports to use. Credentials for delivery are
// never stored here; they come from the remote config at runtime.
type Config struct {
	Logging      LoggingConfig       `json:"logging"`
	RemoteConfig RemoteConfigSection `json:"remote_config"`
	Enrichment   *EnrichmentConfig   `json:"enrichment,omitempty"`
	Transports   TransportsConfig    `json:"transports"`
	Delivery     DeliveryConfig      `json:"delivery"`

	Storage *StorageConfig `json:"storage,omitempty"`
	Metrics *MetricsConfig `json:"metrics,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// RemoteConfigSection lists the retrieval mechanisms for the remote delivery
// config, in priority order.
//
// Example:
//
//	"remote_config": {
//	  "attempt_timeout": "5s",
//	  "sources": [
//	    { "name": "primary", "kind": "json", "endpoint": "https://cfg.example.com/courier.json" },
//	    { "name": "legacy", "kind": "jsonp", "endpoint": "https://cfg.example.com/courier.js" },
//	    { "name": "local", "kind": "file", "endpoint": "./remote.yaml" }
//	  ]
//	}
type RemoteConfigSection struct {
	// AttemptTimeout bounds each source. Defaults to delivery.timeout.
	AttemptTimeout string               `json:"attempt_timeout,omitempty"`
	Sources        []RemoteSourceConfig `json:"sources" validate:"required,min=1,dive"`
}

type RemoteSourceConfig struct {
	Name     string `json:"name"`
	Kind     string `json:"kind" validate:"required,oneof=json jsonp file"`
	Endpoint string `json:"endpoint" validate:"required"`
}

// EnrichmentConfig controls origin/network metadata collection.
// If the section is omitted, enrichment is disabled.
type EnrichmentConfig struct {
	Enabled bool `json:"enabled"`
	// Timeout bounds each lookup source. Defaults to delivery.timeout.
	Timeout   string                   `json:"timeout,omitempty"`
	Sources   []EnrichmentSourceConfig `json:"sources" validate:"dive"`
	Sentinels SentinelConfig           `json:"sentinels,omitempty"`
	// Header is printed above the enrichment block. Defaults to "Origin".
	Header string `json:"header,omitempty"`
}

// EnrichmentSourceConfig maps fields of a JSON lookup service to enrichment
// fields. Paths are dotted (e.g. "connection.isp").
type EnrichmentSourceConfig struct {
	Name   string            `json:"name"`
	URL    string            `json:"url" validate:"required,url"`
	Fields map[string]string `json:"fields" validate:"required,min=1"`
}

// SentinelConfig overrides the text rendered for unresolved enrichment fields.
type SentinelConfig struct {
	Unknown  string `json:"unknown,omitempty"`
	Failed   string `json:"failed,omitempty"`
	TimedOut string `json:"timed_out,omitempty"`
}

// TransportsConfig enables delivery channels. Omitted sections are disabled.
// Priority is fixed by capability, not by the order here.
type TransportsConfig struct {
	Telegram *TelegramTransportConfig `json:"telegram,omitempty"`
	HTTP     *HTTPTransportConfig     `json:"http,omitempty"`
	Beacon   *BeaconTransportConfig   `json:"beacon,omitempty"`
}

type TelegramTransportConfig struct {
	// APIURL defaults to https://api.telegram.org.
	APIURL     string `json:"api_url,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type HTTPTransportConfig struct {
	APIURL  string `json:"api_url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type BeaconTransportConfig struct {
	APIURL  string `json:"api_url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

// DeliveryConfig holds the single timeout every wait point derives from.
type DeliveryConfig struct {
	// Timeout bounds initialization waits and is the default for every
	// per-attempt budget. Defaults to 10s.
	Timeout string `json:"timeout"`
	// EnrichmentBudget bounds how long a delivery waits for enrichment.
	// Defaults to delivery.timeout.
	EnrichmentBudget string `json:"enrichment_budget,omitempty"`
}

// StorageConfig controls the optional delivery audit store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./courier.db" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=none file sqlite sqlite3"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// MetricsConfig controls the Prometheus registry. When Listen is set the
// registry is served over HTTP at /metrics for as long as the process runs.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace,omitempty"`
	Listen    string `json:"listen,omitempty" validate:"omitempty,hostname_port"`
}
