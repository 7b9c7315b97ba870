package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strings"

	"mirror-proxy/internal/fingerprint"
	"mirror-proxy/internal/rewrite"
	"mirror-proxy/internal/session"
)

// Outbound is a fully prepared upstream request. Strategies must treat it
// as read-only; it is replayed verbatim by each strategy in turn.
type Outbound struct {
	Method    string
	URL       string // absolute target URL
	Header    http.Header
	Body      []byte
	SessionID string
	Jar       http.CookieJar // session jar; may be nil
}

// NewRequest builds an *http.Request for o. Host is always the URL's host.
func (o *Outbound) NewRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(o.Body) > 0 {
		body = bytes.NewReader(o.Body)
	}
	req, err := http.NewRequestWithContext(ctx, o.Method, o.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header = o.Header.Clone()
	if req.Header == nil {
		req.Header = http.Header{}
	}
	req.Host = req.URL.Host
	return req, nil
}

// hopHeaders never cross the proxy. Host is set from the target URL.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Host",
	"Content-Length",
}

// forwardingHeaders would reveal the proxy or the client's address. Every
// X-Forwarded-* header is dropped as well.
var forwardingHeaders = []string{
	"Forwarded",
	"Via",
	"X-Real-Ip",
}

// inboundWins lists browser headers whose inbound value is more accurate
// than the navigation defaults (an XHR asking for JSON must keep asking
// for JSON).
var inboundWins = map[string]bool{
	"Accept":          true,
	"Accept-Language": true,
	"Sec-Fetch-Dest":  true,
	"Sec-Fetch-Mode":  true,
}

// BuildHeaders derives upstream headers from an inbound proxy request:
// transport and forwarding headers are dropped, the session's browser
// identity is applied, Referer and Origin are mapped to the target, and the
// session's cookies are attached.
func BuildHeaders(in *http.Request, sess session.Session, rw *rewrite.Rewriter) http.Header {
	h := in.Header.Clone()
	if h == nil {
		h = http.Header{}
	}

	for _, v := range in.Header.Values("Connection") {
		for _, token := range strings.Split(v, ",") {
			if t := strings.TrimSpace(token); t != "" {
				h.Del(textproto.CanonicalMIMEHeaderKey(t))
			}
		}
	}
	for _, k := range hopHeaders {
		h.Del(k)
	}
	for _, k := range forwardingHeaders {
		h.Del(k)
	}
	for k := range h {
		switch {
		case strings.HasPrefix(k, "X-Forwarded-"):
			delete(h, k)
		case strings.HasPrefix(k, "Sec-Ch-Ua"):
			// The real browser's client hints would contradict the session's UA.
			delete(h, k)
		}
	}

	referer := in.Header.Get("Referer")
	for k, v := range fingerprint.BrowserHeaders(sess.UserAgent, referer != "") {
		if inboundWins[k] && h.Get(k) != "" {
			continue
		}
		h[k] = v
	}
	if mode := h.Get("Sec-Fetch-Mode"); mode != "" && mode != "navigate" {
		h.Del("Sec-Fetch-User")
		h.Del("Upgrade-Insecure-Requests")
	}
	h.Set("Accept-Encoding", fingerprint.AcceptEncoding)

	if referer != "" {
		h.Set("Referer", rw.ToTargetURL(referer))
	}
	if in.Header.Get("Origin") != "" || in.Method == http.MethodPost {
		h.Set("Origin", rw.TargetOrigin())
	}
	if in.Method == http.MethodPost && h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	h.Del("Cookie")
	if cookies := session.CombineCookies(sess.Cookies, in.Header.Get("Cookie")); cookies != "" {
		h.Set("Cookie", cookies)
	}
	return h
}
