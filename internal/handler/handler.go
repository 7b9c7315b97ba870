// Package handler provides the HTTP surface of the mirror proxy: the
// catch-all proxy route plus health, cache, metrics and MCP admin routes.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"mirror-proxy/internal/cache"
	"mirror-proxy/internal/config"
	"mirror-proxy/internal/dispatch"
	"mirror-proxy/internal/metrics"
	"mirror-proxy/internal/model"
	"mirror-proxy/internal/rewrite"
	"mirror-proxy/internal/session"
	"mirror-proxy/internal/transform"
)

// Options holds the handler's dependencies.
type Options struct {
	Config      config.ProxyConfig
	Rewriter    *rewrite.Rewriter
	Transformer *transform.Transformer
	Dispatcher  *dispatch.Dispatcher
	Sessions    *session.Store
	Cache       *cache.Cache
	Metrics     *metrics.Metrics // may be nil
	Logger      *slog.Logger
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	cfg         config.ProxyConfig
	rw          *rewrite.Rewriter
	transformer *transform.Transformer
	dispatcher  *dispatch.Dispatcher
	sessions    *session.Store
	cache       *cache.Cache
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// New creates a Handler from opts.
func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		cfg:         opts.Config,
		rw:          opts.Rewriter,
		transformer: opts.Transformer,
		dispatcher:  opts.Dispatcher,
		sessions:    opts.Sessions,
		cache:       opts.Cache,
		metrics:     opts.Metrics,
		logger:      logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns. Everything not claimed by an
// admin route is proxied.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /_health", h.handleHealth)
	mux.HandleFunc("POST /_cache/clear", h.handleCacheClear)
	mux.Handle("GET /_metrics", h.metrics.Handler())

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/_mcp", h.NewMCPHandler())

	mux.HandleFunc("/", h.handleProxy)
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends a JSON error response, extracting status/code from
// APIError if present. Used by the admin routes only; proxied requests get
// the HTML error page.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		apiErr = model.NewInternalError(err)
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
