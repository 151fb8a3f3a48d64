package config

import (
	"reflect"
	"sort"

	logx "courier/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections and safe
// structured attrs for logging (endpoints are summarized by count only).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.RemoteConfig, newCfg.RemoteConfig) {
		changed = append(changed, "remote_config")
		attrs = append(attrs, logx.Int("remote_config.sources", len(newCfg.RemoteConfig.Sources)))
	}
	if !reflect.DeepEqual(oldCfg.Enrichment, newCfg.Enrichment) {
		changed = append(changed, "enrichment")
		enabled, n := false, 0
		if newCfg.Enrichment != nil {
			enabled, n = newCfg.Enrichment.Enabled, len(newCfg.Enrichment.Sources)
		}
		attrs = append(attrs, logx.Bool("enrichment.enabled", enabled), logx.Int("enrichment.sources", n))
	}
	if !reflect.DeepEqual(oldCfg.Transports, newCfg.Transports) {
		changed = append(changed, "transports")
		attrs = append(attrs,
			logx.Bool("transports.telegram", newCfg.Transports.Telegram != nil),
			logx.Bool("transports.http", newCfg.Transports.HTTP != nil),
			logx.Bool("transports.beacon", newCfg.Transports.Beacon != nil),
		)
	}
	if !reflect.DeepEqual(oldCfg.Delivery, newCfg.Delivery) {
		changed = append(changed, "delivery")
		attrs = append(attrs, logx.String("delivery.timeout", newCfg.Delivery.Timeout))
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	if !reflect.DeepEqual(oldCfg.Metrics, newCfg.Metrics) {
		changed = append(changed, "metrics")
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired reports whether a change touches sections that are only
// read at startup. The remote config is immutable for the process lifetime,
// so only logging is applied live.
func RestartRequired(changed []string) bool {
	for _, s := range changed {
		if s != "logging" {
			return true
		}
	}
	return false
}
