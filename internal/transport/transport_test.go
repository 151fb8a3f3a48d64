package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	logx "courier/pkg/logx"
)

// fakeAPI imitates the Bot API sendMessage method.
type fakeAPI struct {
	mu    sync.Mutex
	texts []string
	chats []string
	paths []string
	// reject makes the API answer ok:false after recording the message.
	reject bool
}

func (f *fakeAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := map[string]string{}
		switch r.Method {
		case http.MethodGet:
			for k := range r.URL.Query() {
				params[k] = r.URL.Query().Get(k)
			}
		default:
			var raw map[string]any
			b, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(b, &raw)
			for k, v := range raw {
				params[k] = fmt.Sprint(v)
			}
		}
		f.mu.Lock()
		f.texts = append(f.texts, params["text"])
		f.chats = append(f.chats, params["chat_id"])
		f.paths = append(f.paths, r.URL.Path)
		reject := f.reject
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if reject {
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":42,"type":"private"},"date":0,"text":"x"}}`))
	})
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

func newFake(t *testing.T, reject bool) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{reject: reject}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return f, srv
}

var msg = Message{Text: "hello", Destination: "42", Credential: "123:secret"}

func TestTelegramSend(t *testing.T) {
	f, srv := newFake(t, false)
	tr := NewTelegram(TelegramConfig{APIURL: srv.URL, Timeout: time.Second, RatePerSec: 100}, logx.Nop())

	if err := tr.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if f.count() != 1 || f.texts[0] != "hello" || f.chats[0] != "42" {
		t.Fatalf("unexpected request: texts=%v chats=%v", f.texts, f.chats)
	}
	if f.paths[0] != "/bot123:secret/sendMessage" {
		t.Fatalf("unexpected path %q", f.paths[0])
	}
}

func TestTelegramSplitsLongText(t *testing.T) {
	f, srv := newFake(t, false)
	tr := NewTelegram(TelegramConfig{APIURL: srv.URL, Timeout: time.Second, RatePerSec: 100}, logx.Nop())

	long := strings.Repeat(strings.Repeat("x", 99)+"\n", 90)
	m := msg
	m.Text = long
	if err := tr.Send(context.Background(), m); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if f.count() != 3 {
		t.Fatalf("expected 3 chunks, got %d", f.count())
	}
}

func TestTelegramRejected(t *testing.T) {
	_, srv := newFake(t, true)
	tr := NewTelegram(TelegramConfig{APIURL: srv.URL, Timeout: time.Second}, logx.Nop())

	err := tr.Send(context.Background(), msg)
	if !errors.Is(err, ErrTransportFailure) {
		t.Fatalf("expected ErrTransportFailure, got %v", err)
	}
	if strings.Contains(err.Error(), "secret") {
		t.Fatalf("error leaks credential: %v", err)
	}
}

func TestHTTPPost(t *testing.T) {
	f, srv := newFake(t, false)
	tr := NewHTTPPost(HTTPConfig{APIURL: srv.URL, Timeout: time.Second}, logx.Nop())
	if err := tr.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if f.count() != 1 || f.chats[0] != "42" {
		t.Fatalf("unexpected request: %v", f.chats)
	}
}

func TestHTTPPostChecksOKFlag(t *testing.T) {
	f, srv := newFake(t, true)
	tr := NewHTTPPost(HTTPConfig{APIURL: srv.URL, Timeout: time.Second}, logx.Nop())

	err := tr.Send(context.Background(), msg)
	var se *SendError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SendError, got %v", err)
	}
	if se.Description != "Bad Request: chat not found" {
		t.Fatalf("unexpected description %q", se.Description)
	}
	// The service recorded the message even though it answered ok:false.
	if f.count() != 1 {
		t.Fatalf("expected the request to reach the service")
	}
}

func TestHTTPPostStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewHTTPPost(HTTPConfig{APIURL: srv.URL}, logx.Nop()).Send(context.Background(), msg)
	var se *SendError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected status 502 SendError, got %v", err)
	}
}

func TestHTTPPostKeepsDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>gateway</html>`))
	}))
	defer srv.Close()

	err := NewHTTPPost(HTTPConfig{APIURL: srv.URL}, logx.Nop()).Send(context.Background(), msg)
	var se *SendError
	if !errors.As(err, &se) || se.StatusCode != http.StatusOK {
		t.Fatalf("expected SendError for a non-JSON 200, got %v", err)
	}
	if se.Err == nil || !strings.Contains(err.Error(), "decode response") {
		t.Fatalf("decode error lost: %v", err)
	}
	if strings.Contains(err.Error(), msg.Credential) {
		t.Fatalf("credential leaked: %v", err)
	}
}

func TestBeaconIsOptimistic(t *testing.T) {
	f, srv := newFake(t, true)
	b := NewBeacon(BeaconConfig{APIURL: srv.URL, Timeout: time.Second}, logx.Nop())

	if err := b.Send(context.Background(), msg); err != nil {
		t.Fatalf("beacon should report dispatch success, got %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if f.count() != 1 || f.texts[0] != "hello" {
		t.Fatalf("beacon request not observed: %v", f.texts)
	}
}

func TestMissingCredential(t *testing.T) {
	for _, tr := range []Transport{
		NewTelegram(TelegramConfig{}, logx.Nop()),
		NewHTTPPost(HTTPConfig{}, logx.Nop()),
		NewBeacon(BeaconConfig{}, logx.Nop()),
	} {
		if err := tr.Send(context.Background(), Message{Destination: "1"}); !errors.Is(err, ErrTransportFailure) {
			t.Fatalf("%s: expected failure, got %v", tr.Name(), err)
		}
	}
}

func TestOrderByCapability(t *testing.T) {
	b := NewBeacon(BeaconConfig{}, logx.Nop())
	h := NewHTTPPost(HTTPConfig{}, logx.Nop())
	tg := NewTelegram(TelegramConfig{}, logx.Nop())

	got := Order([]Transport{b, h, nil, tg})
	names := make([]string, 0, len(got))
	for _, tr := range got {
		names = append(names, tr.Name())
	}
	if strings.Join(names, ",") != "http,telegram,beacon" {
		t.Fatalf("unexpected order %v", names)
	}
}

func TestSplitText(t *testing.T) {
	if got := splitText("short", 10, ""); len(got) != 1 || got[0] != "short" {
		t.Fatalf("unexpected split %q", got)
	}
	chunks := splitText("aaaa\nbbbb\ncccc", 10, "")
	if len(chunks) != 2 || chunks[0] != "aaaa\nbbbb" || chunks[1] != "cccc" {
		t.Fatalf("unexpected chunks %q", chunks)
	}
	html := splitText("abcdef<b>bold</b>", 8, "HTML")
	if html[0] != "abcdef" {
		t.Fatalf("split inside a tag: %q", html)
	}
	entity := splitText("abcdef AT&amp;T", 10, "HTML")
	if entity[0] != "abcdef AT" || entity[1] != "&amp;T" {
		t.Fatalf("split inside an entity: %q", entity)
	}
	md := splitText(`abcde\.fgh`, 6, "MarkdownV2")
	if md[0] != "abcde" || md[1] != `\.fgh` {
		t.Fatalf("split after an escape backslash: %q", md)
	}
}
