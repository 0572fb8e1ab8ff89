package transform

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	blockBoundary = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/li|/h[1-6]|/blockquote|/tr)\b[^>]*>`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// StripHTML reduces CMS markup to plain text
func (t *Transformer) StripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = blockBoundary.ReplaceAllString(s, " $0")
	s = t.policy.Sanitize(s)
	return unescape(s)
}

// unescape decodes entities, which the CMS sometimes double-encodes,
// and collapses whitespace
func unescape(s string) string {
	s = html.UnescapeString(html.UnescapeString(s))
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	cut := strings.TrimSpace(string(runes[:max]))
	if i := strings.LastIndex(cut, " "); i > max/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
