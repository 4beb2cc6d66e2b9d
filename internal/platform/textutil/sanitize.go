package textutil

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var strictPolicy = bluemonday.StrictPolicy()

// PlainText strips all markup from free text supplied by users (tracking messages, delivery
// instructions, cancel reasons), normalises it to NFC, collapses whitespace and caps it at
// limit runes. A non-positive limit disables the cap.
func PlainText(value string, limit int) string {
	cleaned := html.UnescapeString(strictPolicy.Sanitize(value))
	cleaned = norm.NFC.String(cleaned)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if limit > 0 && utf8.RuneCountInString(cleaned) > limit {
		runes := []rune(cleaned)
		cleaned = strings.TrimSpace(string(runes[:limit]))
	}
	return cleaned
}

// PlainTextMap applies PlainText to every value and drops entries whose key or cleaned value is
// empty. Keys are only trimmed. It returns nil when nothing survives.
func PlainTextMap(values map[string]string, limit int) map[string]string {
	var out map[string]string
	for key, value := range values {
		key = strings.TrimSpace(key)
		value = PlainText(value, limit)
		if key == "" || value == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(values))
		}
		out[key] = value
	}
	return out
}
