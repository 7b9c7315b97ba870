package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"mirror-proxy/internal/model"
)

// FallbackStrategy is the last resort: a plain resty client over an
// explicit keep-alive transport.
type FallbackStrategy struct {
	client *resty.Client
}

var _ Strategy = (*FallbackStrategy)(nil)

// NewFallbackStrategy wraps rt, normally transport.NewKeepAlive.
func NewFallbackStrategy(rt http.RoundTripper, timeout time.Duration) *FallbackStrategy {
	client := resty.New().
		SetTransport(rt).
		SetTimeout(timeout).
		SetRedirectPolicy(resty.RedirectPolicyFunc(noRedirect)).
		SetDoNotParseResponse(true)
	return &FallbackStrategy{client: client}
}

func (s *FallbackStrategy) Name() string { return "fallback" }

func (s *FallbackStrategy) Attempt(ctx context.Context, out *Outbound) (*model.Response, error) {
	req := s.client.R().SetContext(ctx)
	req.Header = out.Header.Clone()
	if len(out.Body) > 0 {
		req.SetBody(out.Body)
	}

	resp, err := req.Execute(out.Method, out.URL)
	if err != nil {
		return nil, fmt.Errorf("fallback fetch: %w", err)
	}
	if resp.RawResponse == nil {
		return nil, fmt.Errorf("fallback fetch: %w", model.ErrUpstream)
	}
	return readResponse(resp.RawResponse)
}
