package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatalf("expected zero logger")
	}
	l.Info("nothing", String("k", "v"))
	l.With(Int("n", 1)).Error("still nothing", Err(errors.New("boom")))
}

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "debug").With(String("comp", "test"))
	l.Warn("hello", Int("n", 3), Err(errors.New("bad")))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if m["message"] != "hello" || m["comp"] != "test" || m["err"] != "bad" {
		t.Fatalf("unexpected log line: %v", m)
	}
	if m["n"].(float64) != 3 {
		t.Fatalf("expected n=3, got %v", m["n"])
	}
	if !strings.Contains(m["caller"].(string), "logging_test.go") {
		t.Fatalf("expected short caller, got %v", m["caller"])
	}
}

func TestServiceApplyFileSink(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	t.Cleanup(func() { _ = svc.Close() })

	log.Debug("dropped")
	log.Info("kept")

	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	log.Debug("kept after apply")
	_ = svc.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(b)
	if strings.Contains(out, "dropped") {
		t.Fatalf("debug line should be filtered at info level: %s", out)
	}
	if !strings.Contains(out, "\"kept\"") || !strings.Contains(out, "kept after apply") {
		t.Fatalf("missing expected lines: %s", out)
	}
}
