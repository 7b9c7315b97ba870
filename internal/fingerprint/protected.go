package fingerprint

import "strings"

// defaultProtectedPatterns are substrings of URLs known to sit behind bot
// protection.
var defaultProtectedPatterns = []string{
	"cloudflare",
	"cf-",
	"upwork.com",
	"fiverr.com",
	"discord.com",
	"medium.com",
}

// Detector decides which targets get the fingerprinted transport.
type Detector struct {
	patterns []string
}

// NewDetector returns a detector with the built-in patterns plus extra.
// Matching is case-insensitive; blank patterns are ignored.
func NewDetector(extra ...string) *Detector {
	patterns := append([]string(nil), defaultProtectedPatterns...)
	for _, p := range extra {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	return &Detector{patterns: patterns}
}

// IsLikelyProtected reports whether rawURL matches any pattern. It is a
// heuristic, not a guarantee.
func (d *Detector) IsLikelyProtected(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, p := range d.patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Patterns returns the active pattern list.
func (d *Detector) Patterns() []string {
	return append([]string(nil), d.patterns...)
}
