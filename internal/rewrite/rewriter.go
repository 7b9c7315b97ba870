// Package rewrite translates references between the target origin and the
// proxy origin.
//
// Every function here is pure with respect to the Rewriter's two origins.
// Malformed input is never an error: anything that cannot be parsed is
// returned unchanged so a single bad attribute cannot break a page.
package rewrite

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// passthroughSchemes are never rewritten.
var passthroughSchemes = []string{"data:", "javascript:", "mailto:"}

// Rewriter holds the fixed target/proxy origin pair.
type Rewriter struct {
	target      *url.URL // scheme + host only
	proxy       *url.URL // scheme + host only
	targetOrig  string
	proxyOrigin string
}

// New builds a Rewriter for targetURL served from proxyHost.
// The proxy scheme is derived once here: see Scheme.
func New(targetURL, proxyHost string, hosted bool) (*Rewriter, error) {
	t, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("parse target url: %w", err)
	}
	if t.Scheme != "http" && t.Scheme != "https" {
		return nil, fmt.Errorf("target url %q: scheme must be http or https", targetURL)
	}
	if t.Host == "" {
		return nil, fmt.Errorf("target url %q: missing host", targetURL)
	}
	if proxyHost == "" {
		return nil, fmt.Errorf("proxy host is required")
	}

	target := &url.URL{Scheme: t.Scheme, Host: t.Host}
	proxy := &url.URL{Scheme: Scheme(proxyHost, hosted), Host: proxyHost}
	return &Rewriter{
		target:      target,
		proxy:       proxy,
		targetOrig:  target.String(),
		proxyOrigin: proxy.String(),
	}, nil
}

// Scheme returns the scheme the proxy is reached on: http for a local host
// unless hosted is set, https otherwise.
func Scheme(proxyHost string, hosted bool) string {
	if hosted {
		return "https"
	}
	if IsLocalHost(proxyHost) {
		return "http"
	}
	return "https"
}

// IsLocalHost reports whether host (with or without port) is a loopback name.
func IsLocalHost(host string) bool {
	h := host
	if hp, _, err := net.SplitHostPort(host); err == nil {
		h = hp
	}
	h = strings.Trim(strings.ToLower(h), "[]")
	return h == "localhost" || h == "127.0.0.1" || h == "::1"
}

func (r *Rewriter) TargetOrigin() string { return r.targetOrig }
func (r *Rewriter) ProxyOrigin() string  { return r.proxyOrigin }
func (r *Rewriter) TargetHost() string   { return r.target.Host }
func (r *Rewriter) ProxyHost() string    { return r.proxy.Host }
func (r *Rewriter) ProxyScheme() string  { return r.proxy.Scheme }

// BaseTag is the <base> element that anchors relative URLs to the proxy.
func (r *Rewriter) BaseTag() string {
	return `<base href="` + r.proxyOrigin + `/">`
}

// TargetURL maps an inbound proxy request URI (path + query) onto the target.
func (r *Rewriter) TargetURL(requestURI string) string {
	if !strings.HasPrefix(requestURI, "/") {
		requestURI = "/" + requestURI
	}
	return r.targetOrig + requestURI
}

// ToProxyURL rewrites ref, resolved against base (a target-side page URL),
// so that it points at the proxy. Cross-origin absolute references are
// left alone; special schemes and unparseable input pass through.
func (r *Rewriter) ToProxyURL(ref, base string) string {
	if ref == "" || hasPassthroughScheme(ref) {
		return ref
	}

	expanded := ref
	if strings.HasPrefix(ref, "//") {
		expanded = r.target.Scheme + ":" + ref
	}

	b := r.target
	if base != "" {
		pb, err := url.Parse(base)
		if err != nil {
			return ref
		}
		b = pb
	}
	u, err := b.Parse(expanded)
	if err != nil {
		return ref
	}

	if !sameHost(u, r.target) && !isRootRelative(expanded) {
		return ref
	}

	out := *u
	out.Scheme = r.proxy.Scheme
	out.Host = r.proxy.Host
	out.User = nil
	return out.String()
}

// ToTargetURL is the inverse of ToProxyURL for references on the proxy
// origin. References on any other origin come back absolute but otherwise
// untouched.
func (r *Rewriter) ToTargetURL(ref string) string {
	if ref == "" {
		return ref
	}
	u, err := r.proxy.Parse(ref)
	if err != nil {
		return ref
	}
	if !sameHost(u, r.proxy) {
		return u.String()
	}
	u.Scheme = r.target.Scheme
	u.Host = r.target.Host
	return u.String()
}

// RewriteLocation rewrites a redirect Location value. Root-relative paths
// already resolve against the proxy and pass through untouched.
func (r *Rewriter) RewriteLocation(location, base string) string {
	if isRootRelative(location) {
		return location
	}
	return r.ToProxyURL(location, base)
}

// sameHost compares host names case-insensitively and ports after dropping
// the default port of each URL's scheme, so example.com:443 over https
// matches example.com.
func sameHost(u, origin *url.URL) bool {
	return strings.EqualFold(u.Hostname(), origin.Hostname()) &&
		effectivePort(u) == effectivePort(origin)
}

func effectivePort(u *url.URL) string {
	port := u.Port()
	if (port == "443" && u.Scheme == "https") || (port == "80" && u.Scheme == "http") {
		return ""
	}
	return port
}

func isRootRelative(ref string) bool {
	return strings.HasPrefix(ref, "/") && !strings.HasPrefix(ref, "//")
}

func hasPassthroughScheme(ref string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(ref))
	for _, s := range passthroughSchemes {
		if strings.HasPrefix(trimmed, s) {
			return true
		}
	}
	return false
}

// PassthroughSchemes returns the schemes ToProxyURL never touches.
func PassthroughSchemes() []string {
	out := make([]string, len(passthroughSchemes))
	copy(out, passthroughSchemes)
	return out
}
