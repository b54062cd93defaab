package chat

import (
	"html"
	"net/url"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

const (
	maxNameRunes    = 32
	maxMessageRunes = 2000
)

var (
	// names are plain text only
	namePolicy = bluemonday.StrictPolicy()

	messagePolicy = bluemonday.UGCPolicy().
			AllowElements("b", "i", "em", "strong", "u", "s", "del", "code", "br").
			AllowURLSchemes("http", "https").
			RequireNoFollowOnLinks(true)
)

// SanitizeName strips markup and control characters from a display name.
// An empty result becomes fallback.
func SanitizeName(name, fallback string) string {
	out := clean(plain(name), maxNameRunes)
	if out == "" {
		return fallback
	}
	return out
}

// SanitizeMessage keeps safe formatting and drops everything else.
func SanitizeMessage(text string) string {
	if text == "" {
		return ""
	}
	return clean(messagePolicy.Sanitize(html.UnescapeString(text)), maxMessageRunes)
}

func clean(s string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(s))
	n := 0
	for _, r := range s {
		if unicode.IsControl(r) && r != '\t' && r != '\n' {
			continue
		}
		if r == unicode.ReplacementChar {
			continue
		}
		if n == maxLen {
			break
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimSpace(b.String())
}

const (
	maxLabelRunes = 120
	maxURLRunes   = 2048
)

// SanitizeLabel is used for free text activity fields.
func SanitizeLabel(s string) string {
	return clean(plain(s), maxLabelRunes)
}

// plain strips all markup and returns unescaped text, so "Tom & Jerry" is
// stored as typed. Renderers escape it themselves.
func plain(s string) string {
	return html.UnescapeString(namePolicy.Sanitize(html.UnescapeString(s)))
}

// SanitizeURL keeps http(s) URLs and returns "" for anything else.
func SanitizeURL(raw string) string {
	raw = clean(raw, maxURLRunes)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.String()
}
