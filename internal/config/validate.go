package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared struct validator. Other packages reuse it so
// validation tags behave the same everywhere.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks struct tags and duration fields.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if err := Validator().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	durations := map[string]string{
		"delivery.timeout":              cfg.Delivery.Timeout,
		"delivery.enrichment_budget":    cfg.Delivery.EnrichmentBudget,
		"remote_config.attempt_timeout": cfg.RemoteConfig.AttemptTimeout,
	}
	if e := cfg.Enrichment; e != nil {
		durations["enrichment.timeout"] = e.Timeout
		if e.Enabled && len(e.Sources) == 0 {
			return fmt.Errorf("enrichment: enabled without sources")
		}
	}
	if t := cfg.Transports.Telegram; t != nil {
		durations["transports.telegram.timeout"] = t.Timeout
	}
	if t := cfg.Transports.HTTP; t != nil {
		durations["transports.http.timeout"] = t.Timeout
	}
	if t := cfg.Transports.Beacon; t != nil {
		durations["transports.beacon.timeout"] = t.Timeout
	}
	if s := cfg.Storage; s != nil {
		durations["storage.busy_timeout"] = s.BusyTimeout
		if d := strings.ToLower(strings.TrimSpace(s.Driver)); d != "" && d != "none" && strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("storage.path: required for driver %q", s.Driver)
		}
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}

	if cfg.Transports.Telegram == nil && cfg.Transports.HTTP == nil && cfg.Transports.Beacon == nil {
		return fmt.Errorf("transports: at least one transport must be enabled")
	}
	return nil
}
