package transport

import "strings"

const textLimit = 4000

// splitText splits long messages into chunks under limit runes. It prefers
// newline boundaries and never cuts through markup or an escape sequence.
func splitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// Avoid tiny chunks.
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		if end < len(rs) {
			end = safeCut(rs, start, end, parseMode)
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

// safeCut moves end back so rs[start:end] does not stop inside an HTML tag or
// entity, or right after a Markdown escape backslash.
func safeCut(rs []rune, start, end int, parseMode string) int {
	switch {
	case strings.EqualFold(parseMode, "HTML"):
		open, amp := -1, -1
		for i := start; i < end; i++ {
			switch rs[i] {
			case '<':
				open = i
			case '>':
				open = -1
			case '&':
				amp = i
			case ';':
				amp = -1
			}
		}
		cut := open
		if amp > cut {
			cut = amp
		}
		if cut > start+1 {
			return cut
		}
	case strings.HasPrefix(parseMode, "Markdown"):
		n := 0
		for i := end - 1; i >= start && rs[i] == '\\'; i-- {
			n++
		}
		if n%2 == 1 && end-1 > start {
			return end - 1
		}
	}
	return end
}
