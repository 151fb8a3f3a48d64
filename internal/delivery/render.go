package delivery

import (
	"strings"

	"courier/internal/enrich"
)

const DefaultHeader = "Origin"

// Render builds the payload text: prefix, one "key: value" line per pair in
// request order, the enrichment block when snap is non-nil, then suffix.
// Empty sections are skipped. Every piece of text is escaped for parseMode.
// The output depends only on its inputs.
func Render(req Request, snap *enrich.Snapshot, sentinels enrich.Sentinels, header, parseMode string) string {
	esc := func(s string) string { return Escape(parseMode, s) }
	var b strings.Builder
	line := func(s string) {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s)
	}

	if p := strings.TrimRight(req.prefix, "\n"); p != "" {
		line(esc(p))
	}
	for _, p := range req.pairs {
		line(esc(p.Key) + ": " + esc(p.Value))
	}
	if snap != nil {
		if header == "" {
			header = DefaultHeader
		}
		sentinels = sentinels.WithDefaults()
		line("")
		line(bold(parseMode, header))
		for _, f := range enrich.Fields {
			line(esc(f.Label()) + ": " + esc(sentinels.Text(snap.Get(f))))
		}
	}
	if s := strings.TrimRight(req.suffix, "\n"); s != "" {
		line("")
		line(esc(s))
	}
	return b.String()
}
