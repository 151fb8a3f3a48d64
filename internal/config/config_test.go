package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalJSON = `{
  "logging": {"level": "info", "console": true},
  "remote_config": {"sources": [{"name": "primary", "kind": "json", "endpoint": "https://cfg.example.com/c.json"}]},
  "transports": {"telegram": {"timeout": "5s"}},
  "delivery": {"timeout": "10s"}
}`

const minimalYAML = `
logging:
  level: debug
remote_config:
  sources:
    - name: local
      kind: file
      endpoint: ./remote.yaml
enrichment:
  enabled: true
  sources:
    - name: ipwho
      url: https://ipwho.is/
      fields:
        ip: ip
        country: country
transports:
  beacon: {}
delivery:
  timeout: 3s
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestDecodeJSONAndYAML(t *testing.T) {
	dir := t.TempDir()

	cfg, err := NewConfigManager(writeFile(t, dir, "c.json", minimalJSON)).Load()
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	if cfg.RemoteConfig.Sources[0].Kind != "json" || cfg.Transports.Telegram == nil {
		t.Fatalf("unexpected json config: %+v", cfg)
	}

	ycfg, err := NewConfigManager(writeFile(t, dir, "c.yaml", minimalYAML)).Load()
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if ycfg.Enrichment == nil || !ycfg.Enrichment.Enabled || ycfg.Enrichment.Sources[0].Fields["country"] != "country" {
		t.Fatalf("unexpected yaml enrichment: %+v", ycfg.Enrichment)
	}
	if ycfg.Transports.Beacon == nil {
		t.Fatalf("expected beacon transport enabled")
	}
}

func TestRemoteConfigExampleDecodes(t *testing.T) {
	body := `{
  "remote_config": {
    "attempt_timeout": "5s",
    "sources": [
      { "name": "primary", "kind": "json", "endpoint": "https://cfg.example.com/courier.json" },
      { "name": "legacy", "kind": "jsonp", "endpoint": "https://cfg.example.com/courier.js" },
      { "name": "local", "kind": "file", "endpoint": "./remote.yaml" }
    ]
  },
  "transports": {"http": {}},
  "delivery": {"timeout": "10s"}
}`
	cfg, err := Decode("c.json", []byte(body))
	if err != nil {
		t.Fatalf("documented example does not decode: %v", err)
	}
	if cfg.RemoteConfig.AttemptTimeout != "5s" || len(cfg.RemoteConfig.Sources) != 3 {
		t.Fatalf("unexpected remote_config: %+v", cfg.RemoteConfig)
	}
	if _, err := Decode("c.json", []byte(strings.Replace(body, `"attempt_timeout"`, `"timeout"`, 1))); err == nil {
		t.Fatalf("remote_config.timeout is not a field and must be rejected")
	}
}

func TestDecodeRejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":  strings.Replace(minimalJSON, `"delivery"`, `"bogus": 1, "delivery"`, 1),
		"trailing data":  minimalJSON + `{}`,
		"bad kind":       strings.Replace(minimalJSON, `"kind": "json"`, `"kind": "carrier-pigeon"`, 1),
		"bad duration":   strings.Replace(minimalJSON, `"10s"`, `"ten seconds"`, 1),
		"no transports":  strings.Replace(minimalJSON, `"telegram": {"timeout": "5s"}`, ``, 1),
		"no sources":     strings.Replace(minimalJSON, `[{"name": "primary", "kind": "json", "endpoint": "https://cfg.example.com/c.json"}]`, `[]`, 1),
		"negative delay": strings.Replace(minimalJSON, `"5s"`, `"-5s"`, 1),
	}
	for name, body := range cases {
		if _, err := Decode("c.json", []byte(body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", 2*time.Second)
	if err != nil || d != 2*time.Second {
		t.Fatalf("default: got %v,%v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "150ms", time.Second)
	if err != nil || d != 150*time.Millisecond {
		t.Fatalf("explicit: got %v,%v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatalf("expected negative duration error")
	}
}

func TestSummarizeChange(t *testing.T) {
	a, err := Decode("c.json", []byte(minimalJSON))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := *a
	b.Logging.Level = "debug"

	changed, _ := SummarizeChange(a, &b)
	if len(changed) != 1 || changed[0] != "logging" {
		t.Fatalf("expected only logging to change, got %v", changed)
	}
	if RestartRequired(changed) {
		t.Fatalf("logging change should apply live")
	}

	b.Delivery.Timeout = "1s"
	changed, _ = SummarizeChange(a, &b)
	if !RestartRequired(changed) {
		t.Fatalf("delivery change should require restart: %v", changed)
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "c.json", minimalJSON)

	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher a moment to register the directory.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, dir, "c.json", strings.Replace(minimalJSON, `"info"`, `"debug"`, 1))

	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("expected reloaded level debug, got %q", cfg.Logging.Level)
		}
	case <-ctx.Done():
		t.Fatalf("no config published after file change")
	}
}
