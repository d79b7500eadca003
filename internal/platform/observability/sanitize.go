package observability

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// sanitizeString drops control characters and caps value at limit runes.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	var b strings.Builder
	b.Grow(min(len(value), limit*utf8.UTFMax))
	count := 0
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		if count == limit {
			break
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}

// SanitizeRoute bounds a route pattern for log and span names.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod bounds an HTTP method for log and span names.
func SanitizeMethod(method string) string {
	return sanitizeString(strings.ToUpper(method), 10)
}
