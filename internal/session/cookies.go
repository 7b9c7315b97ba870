package session

import (
	"net/http"
	"strings"
	"time"
)

// MergeCookies folds Set-Cookie header values into a Cookie header value.
// Later values replace earlier ones with the same name; cookies that arrive
// already expired are removed. Order of first appearance is kept.
func MergeCookies(current string, setCookies []string) string {
	names, values := parseCookieHeader(current)

	now := time.Now()
	for _, line := range setCookies {
		c, err := http.ParseSetCookie(line)
		if err != nil {
			continue
		}
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(now)) {
			if _, ok := values[c.Name]; ok {
				delete(values, c.Name)
				names = removeName(names, c.Name)
			}
			continue
		}
		if _, ok := values[c.Name]; !ok {
			names = append(names, c.Name)
		}
		values[c.Name] = c.Value
	}

	return joinCookies(names, values)
}

// CombineCookies overlays the browser's own cookie header on the session's
// accumulated cookies. Browser values win; the proxy's own session cookie
// is never forwarded upstream.
func CombineCookies(sessionCookies, browserCookies string) string {
	names, values := parseCookieHeader(sessionCookies)
	bNames, bValues := parseCookieHeader(browserCookies)
	for _, n := range bNames {
		if n == CookieName {
			continue
		}
		if _, ok := values[n]; !ok {
			names = append(names, n)
		}
		values[n] = bValues[n]
	}
	return joinCookies(names, values)
}

func parseCookieHeader(header string) ([]string, map[string]string) {
	values := make(map[string]string)
	var names []string
	for _, pair := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" {
			continue
		}
		if _, seen := values[name]; !seen {
			names = append(names, name)
		}
		values[name] = value
	}
	return names, values
}

func joinCookies(names []string, values map[string]string) string {
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, n+"="+values[n])
	}
	return strings.Join(parts, "; ")
}

func removeName(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
