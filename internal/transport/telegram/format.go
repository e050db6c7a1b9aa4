package telegram

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"statusbot/internal/transport"
)

const (
	captionLimit = 1024
	textLimit    = 4000
)

// FormatCaption renders an embed as Telegram HTML that fits a photo caption.
// Backtick spans become <code>. When too long, the longest fields lose lines
// from the end first.
func FormatCaption(e transport.Embed) string {
	fields := make([][]string, len(e.Fields))
	for i, f := range e.Fields {
		fields[i] = strings.Split(f.Value, "\n")
	}
	hidden := make([]int, len(e.Fields))

	for {
		out := renderCaption(e, fields, hidden)
		if utf8.RuneCountInString(out) <= captionLimit {
			return out
		}
		i := longestField(fields)
		if i < 0 {
			return truncateRunes(html.EscapeString(e.Title), captionLimit)
		}
		fields[i] = fields[i][:len(fields[i])-1]
		hidden[i]++
	}
}

func renderCaption(e transport.Embed, fields [][]string, hidden []int) string {
	var b strings.Builder
	if e.Title != "" {
		b.WriteString("<b>" + html.EscapeString(e.Title) + "</b>\n")
	}
	for i, f := range e.Fields {
		b.WriteString("\n<b>" + html.EscapeString(strings.TrimSpace(f.Name)) + "</b>\n")
		for _, line := range fields[i] {
			b.WriteString(codeSpans(line) + "\n")
		}
		if hidden[i] > 0 {
			b.WriteString(fmt.Sprintf("<i>… %d more</i>\n", hidden[i]))
		}
	}
	footer := e.Footer
	if !e.Timestamp.IsZero() {
		footer = strings.TrimSpace(footer + " • " + e.Timestamp.UTC().Format("15:04:05 UTC"))
	}
	if footer != "" {
		b.WriteString("\n<i>" + html.EscapeString(footer) + "</i>")
	}
	return strings.TrimRight(b.String(), "\n")
}

// longestField returns the field with the most lines, or -1 if none has more than one.
func longestField(fields [][]string) int {
	best, n := -1, 1
	for i, f := range fields {
		if len(f) > n {
			best, n = i, len(f)
		}
	}
	return best
}

// codeSpans escapes s and turns `x` into <code>x</code>. An unpaired backtick stays literal.
func codeSpans(s string) string {
	parts := strings.Split(s, "`")
	var b strings.Builder
	for i, p := range parts {
		esc := html.EscapeString(p)
		switch {
		case i%2 == 0:
			b.WriteString(esc)
		case i == len(parts)-1:
			b.WriteString("`" + esc)
		default:
			b.WriteString("<code>" + esc + "</code>")
		}
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// splitText cuts s into chunks of at most limit runes, preferring newline boundaries.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	start := 0
	for start < len(rs) {
		end := start + limit
		if end >= len(rs) {
			out = append(out, strings.TrimRight(string(rs[start:]), "\n"))
			break
		}
		for i := end - 1; i > start+limit/3; i-- {
			if rs[i] == '\n' {
				end = i + 1
				break
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
