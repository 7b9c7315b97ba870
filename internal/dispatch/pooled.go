package dispatch

import (
	"context"
	"fmt"
	"net/http"

	"mirror-proxy/internal/model"
)

// PooledStrategy sends the request once over a keep-alive connection pool.
type PooledStrategy struct {
	client *http.Client
}

var _ Strategy = (*PooledStrategy)(nil)

// NewPooledStrategy wraps rt, normally transport.NewPooled.
func NewPooledStrategy(rt http.RoundTripper) *PooledStrategy {
	return &PooledStrategy{
		client: &http.Client{Transport: rt, CheckRedirect: noRedirect},
	}
}

func (s *PooledStrategy) Name() string { return "pooled" }

func (s *PooledStrategy) Attempt(ctx context.Context, out *Outbound) (*model.Response, error) {
	req, err := out.NewRequest(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pooled fetch: %w", err)
	}
	return readResponse(resp)
}
