// MCP admin transport for the mirror proxy using the official MCP Go SDK.
// Exposes status, cache and URL-translation operations as MCP tools.
package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// === MCP Tool Input/Output Types ===

// ProxyStatusInput is the (empty) input schema for proxy_status.
type ProxyStatusInput struct{}

// ClearCacheInput is the (empty) input schema for clear_cache.
type ClearCacheInput struct{}

// ClearCacheOutput reports how many entries were dropped.
type ClearCacheOutput struct {
	Message string `json:"message"`
	Cleared int    `json:"cleared"`
}

// RewriteURLInput is the input schema for rewrite_url.
type RewriteURLInput struct {
	URL       string `json:"url" jsonschema:"URL or reference to translate,required"`
	Direction string `json:"direction,omitempty" jsonschema:"to_proxy (default) or to_target"`
	Base      string `json:"base,omitempty" jsonschema:"target page URL relative references resolve against"`
}

// RewriteURLOutput carries the translated URL.
type RewriteURLOutput struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// NewMCPServer creates an MCP server with the admin tools registered.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "mirror-proxy",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Mirror proxy administration. Inspect the proxy, clear its " +
				"response cache, or translate URLs between the target and proxy origins.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "proxy_status",
		Description: "Report the target, proxy origin, cache settings and active session count.",
	}, h.mcpProxyStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_cache",
		Description: "Drop every cached response.",
	}, h.mcpClearCache)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "rewrite_url",
		Description: "Translate a URL to its proxied form (to_proxy) or back to the target (to_target).",
	}, h.mcpRewriteURL)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /_mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpProxyStatus(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ProxyStatusInput,
) (*mcp.CallToolResult, *statusResponse, error) {
	s := h.status()
	return nil, &s, nil
}

func (h *Handler) mcpClearCache(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ClearCacheInput,
) (*mcp.CallToolResult, *ClearCacheOutput, error) {
	n := h.cache.Clear()
	h.logger.Info("cache cleared via mcp", "entries", n)
	return nil, &ClearCacheOutput{Message: "Cache cleared", Cleared: n}, nil
}

func (h *Handler) mcpRewriteURL(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RewriteURLInput,
) (*mcp.CallToolResult, *RewriteURLOutput, error) {
	if input.URL == "" {
		return nil, nil, fmt.Errorf("url is required")
	}

	var out string
	switch input.Direction {
	case "", "to_proxy":
		out = h.rw.ToProxyURL(input.URL, input.Base)
	case "to_target":
		out = h.rw.ToTargetURL(input.URL)
	default:
		return nil, nil, fmt.Errorf("direction must be to_proxy or to_target, got %q", input.Direction)
	}
	return nil, &RewriteURLOutput{Input: input.URL, Output: out}, nil
}
