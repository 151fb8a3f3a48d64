package delivery

import (
	"html"
	"strings"
)

// Payload text is always plain. The parse mode only decides how it is
// escaped and how the enrichment header is emphasized.
const (
	ParseModeHTML       = "HTML"
	ParseModeMarkdown   = "Markdown"
	ParseModeMarkdownV2 = "MarkdownV2"
)

var (
	markdownEscaper   = strings.NewReplacer(`\`, `\\`, "_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)
	markdownV2Escaper = newBackslashEscaper("\\_*[]()~`>#+-=|{}.!")
)

func newBackslashEscaper(chars string) *strings.Replacer {
	pairs := make([]string, 0, 2*len(chars))
	for _, c := range chars {
		pairs = append(pairs, string(c), `\`+string(c))
	}
	return strings.NewReplacer(pairs...)
}

// Escape makes s safe to send as literal text under parseMode. Unknown or
// empty modes return s unchanged.
func Escape(parseMode, s string) string {
	switch parseMode {
	case ParseModeHTML:
		return html.EscapeString(s)
	case ParseModeMarkdown:
		return markdownEscaper.Replace(s)
	case ParseModeMarkdownV2:
		return markdownV2Escaper.Replace(s)
	default:
		return s
	}
}

func bold(parseMode, s string) string {
	switch parseMode {
	case ParseModeHTML:
		return "<b>" + Escape(parseMode, s) + "</b>"
	case ParseModeMarkdown, ParseModeMarkdownV2:
		return "*" + Escape(parseMode, s) + "*"
	default:
		return s
	}
}
