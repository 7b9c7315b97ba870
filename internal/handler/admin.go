package handler

import (
	"net/http"
)

// handleHealth reports liveness and the active configuration.
// GET /_health
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.status())
}

// handleCacheClear drops every cached response.
// POST /_cache/clear
func (h *Handler) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	n := h.cache.Clear()
	h.logger.Info("cache cleared", "entries", n)
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "Cache cleared"})
}

// statusResponse is shared by /_health and the proxy_status MCP tool.
type statusResponse struct {
	Status     string      `json:"status"`
	TargetURL  string      `json:"target_url"`
	ProxyHost  string      `json:"proxy_host"`
	ProxyURL   string      `json:"proxy_url"`
	Hosted     bool        `json:"hosted"`
	Cache      cacheStatus `json:"cache"`
	Sessions   int         `json:"sessions"`
	Strategies []string    `json:"strategies"`
}

type cacheStatus struct {
	Enabled    bool `json:"enabled"`
	TTLSeconds int  `json:"ttl_seconds"`
	Capacity   int  `json:"capacity"`
	Entries    int  `json:"entries"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) status() statusResponse {
	return statusResponse{
		Status:    "ok",
		TargetURL: h.rw.TargetOrigin(),
		ProxyHost: h.rw.ProxyHost(),
		ProxyURL:  h.rw.ProxyOrigin(),
		Hosted:    h.cfg.Hosted,
		Cache: cacheStatus{
			Enabled:    h.cache.Enabled(),
			TTLSeconds: int(h.cache.TTL().Seconds()),
			Capacity:   h.cache.Capacity(),
			Entries:    h.cache.Len(),
		},
		Sessions:   h.sessions.Len(),
		Strategies: h.dispatcher.StrategyNames(),
	}
}
