// Package ticker canonicalizes ticker symbols arriving from heterogeneous
// sources (broker RPC, scraped metric files, manual config) so the rest of
// the engine can compare them by simple string equality.
package ticker

import "strings"

// aliases maps legacy or vendor-specific tickers to their canonical form.
var aliases = map[string]string{
	"TRAY": "TPAY",
}

// Normalize strips one trailing '@', trims whitespace, and applies the
// alias table. Empty strings and a bare "@" normalize to "" (treated as
// missing by callers).
func Normalize(t string) string {
	trimmed := strings.TrimSpace(t)
	trimmed = strings.TrimSuffix(trimmed, "@")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return ""
	}
	upper := strings.ToUpper(trimmed)
	if canonical, ok := aliases[upper]; ok {
		return canonical
	}
	return upper
}

// Equal reports whether a and b refer to the same instrument once
// normalized and upper-cased.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
