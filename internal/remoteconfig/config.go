package remoteconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"courier/internal/config"
)

var (
	// ErrConfigInvalid means a source answered but the config failed
	// validation. The same source is not retried; the next one is.
	ErrConfigInvalid = errors.New("remote config invalid")
	// ErrConfigUnavailable means every retrieval source failed.
	ErrConfigUnavailable = errors.New("remote config unavailable")
)

// Config is the remote delivery config. Once loaded it is immutable for the
// process lifetime.
type Config struct {
	Credential  string `json:"token" validate:"required"`
	Destination string `json:"chat_id" validate:"required"`
	// ParseMode is passed to transports that support formatted text.
	ParseMode string `json:"parse_mode,omitempty" validate:"omitempty,oneof=HTML Markdown MarkdownV2"`
	// Enrichment lets the remote side switch enrichment off. Nil keeps the
	// local setting.
	Enrichment *bool `json:"enrichment,omitempty"`
}

// Validate trims and checks the config. Failures wrap ErrConfigInvalid.
func (c *Config) Validate() error {
	c.Credential = strings.TrimSpace(c.Credential)
	c.Destination = strings.TrimSpace(c.Destination)
	if err := config.Validator().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return nil
}

// String never includes the credential.
func (c Config) String() string {
	return fmt.Sprintf("remoteconfig{destination=%s, credential_set=%t}", c.Destination, c.Credential != "")
}

// decode parses a JSON document into a validated Config. Unknown fields are
// ignored: the remote side may carry settings for other clients. chat_id may
// be a JSON number or string.
func decode(b []byte) (Config, error) {
	var raw struct {
		Credential  string          `json:"token"`
		Destination json.RawMessage `json:"chat_id"`
		ParseMode   string          `json:"parse_mode"`
		Enrichment  *bool           `json:"enrichment"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return Config{}, fmt.Errorf("%w: decode: %v", ErrConfigInvalid, err)
	}

	cfg := Config{Credential: raw.Credential, ParseMode: raw.ParseMode, Enrichment: raw.Enrichment}
	if len(raw.Destination) > 0 {
		var s string
		if err := json.Unmarshal(raw.Destination, &s); err == nil {
			cfg.Destination = s
		} else {
			var n json.Number
			if err := json.Unmarshal(raw.Destination, &n); err != nil {
				return Config{}, fmt.Errorf("%w: chat_id: %v", ErrConfigInvalid, err)
			}
			cfg.Destination = n.String()
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
