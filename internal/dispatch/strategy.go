// Package dispatch obtains upstream responses by trying an ordered list of
// fetch strategies until one succeeds.
package dispatch

import (
	"context"
	"net/http"

	"mirror-proxy/internal/model"
)

// Strategy is one way of fetching an Outbound request. An error means the
// dispatcher should try the next strategy; any upstream status that makes
// it back as a response is a success.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, out *Outbound) (*model.Response, error)
}

// Gate is implemented by strategies that only apply to some requests.
type Gate interface {
	Applies(out *Outbound) bool
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc struct {
	StrategyName string
	AttemptFunc  func(ctx context.Context, out *Outbound) (*model.Response, error)
	AppliesFunc  func(out *Outbound) bool // nil means always
}

var (
	_ Strategy = (*StrategyFunc)(nil)
	_ Gate     = (*StrategyFunc)(nil)
)

// Name returns StrategyName.
func (s *StrategyFunc) Name() string { return s.StrategyName }

// Attempt calls AttemptFunc, or fails with ErrUpstream when unset.
func (s *StrategyFunc) Attempt(ctx context.Context, out *Outbound) (*model.Response, error) {
	if s.AttemptFunc != nil {
		return s.AttemptFunc(ctx, out)
	}
	return nil, model.ErrUpstream
}

// Applies calls AppliesFunc, defaulting to true.
func (s *StrategyFunc) Applies(out *Outbound) bool {
	if s.AppliesFunc != nil {
		return s.AppliesFunc(out)
	}
	return true
}

// noRedirect makes an http.Client hand redirects back to the caller.
func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}
