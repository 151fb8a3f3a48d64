package delivery

import (
	"context"
	"strings"
	"testing"
	"time"

	"courier/internal/enrich"
	"courier/internal/transport"
)

func TestDeliverEscapesForHTML(t *testing.T) {
	srv := lookupServer(t, 200, `{"ip":"1.2.3.4","country":"US","region":"TX","city":"Dallas","connection":{"isp":"AT&T"}}`)
	ok := succeeding("ok")

	cfg := baseConfig
	cfg.ParseMode = ParseModeHTML
	o := New(context.Background(), Options{
		Initializer: readyInitializer(cfg),
		Enrichment:  collector(srv.URL),
		Transports:  []transport.Transport{ok},
		Timeout:     2 * time.Second,
	})
	res := o.DeliverResult(context.Background(), MustRequest("<hello>", "", Field("note", "a<b")))
	if !res.OK {
		t.Fatalf("delivery failed: %v", res.Err)
	}
	sent := ok.last
	if sent.ParseMode != ParseModeHTML {
		t.Fatalf("parse mode = %q", sent.ParseMode)
	}
	for _, want := range []string{"&lt;hello&gt;", "note: a&lt;b", "<b>Origin</b>", "ISP: AT&amp;T"} {
		if !strings.Contains(sent.Text, want) {
			t.Fatalf("payload missing %q:\n%s", want, sent.Text)
		}
	}
	if strings.Contains(sent.Text, "a<b") || strings.Contains(sent.Text, "AT&T") {
		t.Fatalf("payload has unescaped text:\n%s", sent.Text)
	}
}

func TestRenderEscapesPerParseMode(t *testing.T) {
	req := MustRequest("", "", Field("user_name", "a<b> [x] 1.5!"))
	snap := enrich.NewSnapshot(map[enrich.Field]enrich.FieldValue{
		enrich.FieldISP: {State: enrich.Resolved, Value: "AT&T"},
	})

	cases := []struct {
		mode string
		want []string
	}{
		{"", []string{"user_name: a<b> [x] 1.5!", "Origin", "ISP: AT&T"}},
		{ParseModeHTML, []string{"user_name: a&lt;b&gt; [x] 1.5!", "<b>Origin</b>", "ISP: AT&amp;T"}},
		{ParseModeMarkdown, []string{`user\_name: a<b> \[x] 1.5!`, "*Origin*", "ISP: AT&T"}},
		{ParseModeMarkdownV2, []string{`user\_name: a<b\> \[x\] 1\.5\!`, "*Origin*", `Timed Out`}},
	}
	for _, tc := range cases {
		got := Render(req, &snap, enrich.Sentinels{}, "", tc.mode)
		for _, want := range tc.want {
			if !strings.Contains(got, want) {
				t.Fatalf("mode %q: payload missing %q:\n%s", tc.mode, want, got)
			}
		}
	}
}

func TestEscapeMarkdownV2Backslash(t *testing.T) {
	if got := Escape(ParseModeMarkdownV2, `a\b-c`); got != `a\\b\-c` {
		t.Fatalf("got %q", got)
	}
	if got := Escape("rtf", "a<b"); got != "a<b" {
		t.Fatalf("unknown mode should pass through, got %q", got)
	}
}
