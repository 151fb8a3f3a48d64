package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"courier/internal/delivery"
	"courier/internal/fallback"
	"courier/internal/runtime/supervisor"
)

type botAPI struct {
	mu    sync.Mutex
	texts []string
}

func (b *botAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChatID string `json:"chat_id"`
		Text   string `json:"text"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	b.mu.Lock()
	b.texts = append(b.texts, body.Text)
	b.mu.Unlock()
	_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":42},"date":0}}`))
}

func (b *botAPI) sent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.texts...)
}

func writeConfig(t *testing.T, apiURL, lookupURL string) string {
	t.Helper()
	dir := t.TempDir()
	remote := filepath.Join(dir, "remote.yaml")
	if err := os.WriteFile(remote, []byte("token: \"123:abc\"\nchat_id: 42\n"), 0o600); err != nil {
		t.Fatalf("write remote: %v", err)
	}
	cfg := fmt.Sprintf(`{
  "logging": {"level": "error", "console": true},
  "remote_config": {"sources": [
    {"name": "missing", "kind": "file", "endpoint": %q},
    {"name": "local", "kind": "file", "endpoint": %q}
  ]},
  "enrichment": {
    "enabled": true,
    "sources": [{"name": "lookup", "url": %q, "fields": {"ip": "ip", "country": "country"}}]
  },
  "transports": {"http": {"api_url": %q, "timeout": "1s"}},
  "delivery": {"timeout": "2s"},
  "storage": {"driver": "sqlite", "path": %q},
  "metrics": {"enabled": true}
}`, filepath.Join(dir, "nope.yaml"), remote, lookupURL, apiURL, filepath.Join(dir, "audit.db"))
	p := filepath.Join(dir, "courier.json")
	if err := os.WriteFile(p, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestAppDeliversAndAudits(t *testing.T) {
	api := &botAPI{}
	apiSrv := httptest.NewServer(api)
	defer apiSrv.Close()
	lookup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ip":"1.2.3.4","country":"Freedonia"}`))
	}))
	defer lookup.Close()

	a, err := NewApp(writeConfig(t, apiSrv.URL, lookup.URL))
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	req := delivery.MustRequest("", "", delivery.Field("name", "Ann"))
	if !a.Orchestrator().Initialize(ctx) {
		t.Fatalf("Initialize failed")
	}
	if !a.Orchestrator().Deliver(ctx, req) {
		t.Fatalf("Deliver failed")
	}

	sent := api.sent()
	if len(sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sent))
	}
	for _, want := range []string{"name: Ann", "IP: 1.2.3.4", "Country: Freedonia", "Region: Unknown"} {
		if !strings.Contains(sent[0], want) {
			t.Fatalf("message missing %q:\n%s", want, sent[0])
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, err := a.Store().RecentDeliveries(ctx, 10)
		if err != nil {
			t.Fatalf("RecentDeliveries: %v", err)
		}
		if len(entries) == 1 {
			if !entries[0].OK || entries[0].Transport != "http" {
				t.Fatalf("unexpected audit entry %+v", entries[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("audit entry not written")
		}
		time.Sleep(20 * time.Millisecond)
	}

	if a.Metrics().Registry() == nil {
		t.Fatalf("metrics should be enabled")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopInputDone); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	tasks := map[string]supervisor.TaskStats{}
	for _, st := range a.Tasks() {
		tasks[st.Name] = st
	}
	for _, name := range []string{"audit.writer", "enrich.collect", "config.watch"} {
		st, ok := tasks[name]
		if !ok || st.Started == 0 {
			t.Fatalf("task %q not recorded: %+v", name, a.Tasks())
		}
		if st.Active != 0 || st.Panics != 0 {
			t.Fatalf("task %q not cleanly stopped: %+v", name, st)
		}
	}
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(p, []byte(`{"remote_config": {"sources": []}, "transports": {}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewApp(p); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestAttemptNames(t *testing.T) {
	got := attemptNames([]fallback.Attempt{
		{Strategy: "telegram", Err: fmt.Errorf("x")},
		{Strategy: "http"},
	})
	if len(got) != 1 || got[0] != "telegram" {
		t.Fatalf("unexpected names %v", got)
	}
}
