package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"mirror-proxy/internal/cache"
	"mirror-proxy/internal/dispatch"
	"mirror-proxy/internal/model"
	"mirror-proxy/internal/session"
)

// strippedHeaders are upstream response headers that would break the page
// when served from the proxy origin, or that no longer describe the body.
var strippedHeaders = []string{
	"Content-Encoding",
	"Content-Length",
	"Transfer-Encoding",
	"Connection",
	"Keep-Alive",
	"Content-Security-Policy",
	"Content-Security-Policy-Report-Only",
	"X-Frame-Options",
	"X-Content-Type-Options",
	"X-Xss-Protection",
	"Strict-Transport-Security",
	"Report-To",
	"Nel",
	"Expect-Ct",
	"Permissions-Policy",
}

// handleProxy mirrors one request to the target.
func (h *Handler) handleProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		h.setCORS(w.Header())
		w.WriteHeader(http.StatusNoContent)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, dispatch.MaxRequestBody)

	// A stale or unknown id is replaced as well; the client only learns the
	// new id from this cookie.
	sess, created := h.sessions.Resolve(r.Context(), sessionID(r))
	if created {
		http.SetCookie(w, h.sessionCookie(sess.ID))
	}

	targetURL := h.rw.TargetURL(r.URL.RequestURI())
	cacheable := r.Method == http.MethodGet

	if cacheable {
		if entry, ok := h.cache.Get(targetURL); ok {
			h.logger.Debug("cache hit", slog.String("url", targetURL))
			h.writeResponse(w, r, entry.StatusCode, entry.Header, entry.Body)
			return
		}
	}

	resp, err := h.dispatcher.Dispatch(r.Context(), r, sess)
	if err != nil {
		h.writeErrorPage(w, err)
		return
	}

	if !resp.IsRedirect() {
		resp = h.transformer.Process(resp, targetURL)
	}
	header := h.normalizeHeaders(resp.Header, targetURL)

	if cacheable && resp.StatusCode == http.StatusOK {
		cached := header.Clone()
		cached.Del("Set-Cookie")
		h.cache.Put(targetURL, cache.Entry{
			StatusCode: resp.StatusCode,
			Header:     cached,
			Body:       resp.Body,
		})
	}

	h.writeResponse(w, r, resp.StatusCode, header, resp.Body)
}

// writeResponse copies header onto w, keeping anything already set on w
// (the session cookie), and writes the body unless r is a HEAD request.
func (h *Handler) writeResponse(w http.ResponseWriter, r *http.Request, status int, header http.Header, body []byte) {
	dst := w.Header()
	for k, vs := range header {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(body); err != nil {
		h.logger.Debug("write response", slog.String("error", err.Error()))
	}
}

// normalizeHeaders prepares upstream response headers for the browser.
// pageURL is the target URL the response was fetched from.
func (h *Handler) normalizeHeaders(src http.Header, pageURL string) http.Header {
	out := src.Clone()
	if out == nil {
		out = http.Header{}
	}
	for _, k := range strippedHeaders {
		out.Del(k)
	}
	for k := range out {
		if strings.HasPrefix(k, "Cross-Origin-") {
			delete(out, k)
		}
	}

	if loc := out.Get("Location"); loc != "" {
		out.Set("Location", h.rw.RewriteLocation(loc, pageURL))
	}
	if cookies := out.Values("Set-Cookie"); len(cookies) > 0 {
		out.Del("Set-Cookie")
		for _, c := range cookies {
			out.Add("Set-Cookie", h.rw.RewriteSetCookie(c))
		}
	}

	h.setCORS(out)
	return out
}

func (h *Handler) setCORS(header http.Header) {
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", "*")
	header.Set("Access-Control-Allow-Headers", "*")
	if h.cfg.AllowCredentials {
		header.Set("Access-Control-Allow-Credentials", "true")
	}
}

func (h *Handler) sessionCookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     session.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(session.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.rw.ProxyScheme() == "https",
		SameSite: http.SameSiteLaxMode,
	}
}

func sessionID(r *http.Request) string {
	c, err := r.Cookie(session.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// writeErrorPage answers a failed dispatch with an HTML page carrying the
// last upstream status, or 500 when there was none.
func (h *Handler) writeErrorPage(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "The target site could not be reached."

	var (
		dispatchErr *model.DispatchError
		apiErr      *model.APIError
		tooLarge    *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		status = http.StatusRequestEntityTooLarge
		message = "The request body is too large."
	case errors.As(err, &apiErr):
		status = apiErr.StatusCode
		message = apiErr.Message
	case errors.As(err, &dispatchErr):
		status = dispatchErr.StatusCode
		message = dispatchErr.Message
	}

	h.logger.Error("proxy request failed",
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	h.setCORS(w.Header())
	w.WriteHeader(status)
	if _, werr := w.Write([]byte(renderErrorPage(status, message))); werr != nil {
		h.logger.Debug("write error page", slog.String("error", werr.Error()))
	}
}
