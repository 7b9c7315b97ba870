package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"mirror-proxy/internal/fingerprint"
	"mirror-proxy/internal/metrics"
	"mirror-proxy/internal/model"
	"mirror-proxy/internal/session"
)

// FingerprintStrategy fetches through the browser-fingerprinted transport
// and answers arithmetic challenges. It only runs for targets the detector
// marks as likely protected.
type FingerprintStrategy struct {
	client   *http.Client
	detector *fingerprint.Detector
	solver   *fingerprint.Solver
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

var (
	_ Strategy = (*FingerprintStrategy)(nil)
	_ Gate     = (*FingerprintStrategy)(nil)
)

// NewFingerprintStrategy wraps rt, normally transport.NewFingerprint.
func NewFingerprintStrategy(rt http.RoundTripper, d *fingerprint.Detector, s *fingerprint.Solver, m *metrics.Metrics, logger *slog.Logger) *FingerprintStrategy {
	return &FingerprintStrategy{
		client:   &http.Client{Transport: rt, CheckRedirect: noRedirect},
		detector: d,
		solver:   s,
		metrics:  m,
		logger:   logger,
	}
}

func (s *FingerprintStrategy) Name() string { return "fingerprint" }

// Applies reports whether the target is likely behind bot protection.
func (s *FingerprintStrategy) Applies(out *Outbound) bool {
	return s.detector.IsLikelyProtected(out.URL)
}

// Attempt fetches out. A challenge page is solved and the answer submitted
// once; an unsolvable challenge is returned as the response.
func (s *FingerprintStrategy) Attempt(ctx context.Context, out *Outbound) (*model.Response, error) {
	resp, err := s.fetch(ctx, out)
	if err != nil {
		return nil, err
	}
	if !fingerprint.IsChallengePage(string(resp.Body)) {
		return resp, nil
	}

	next, ok := s.solver.Solve(ctx, string(resp.Body), out.URL)
	if !ok {
		s.unsolved(out.URL, resp.StatusCode, model.ErrChallengeUnsolved)
		return resp, nil
	}
	s.metrics.RecordChallenge("solved")

	// Clearance flows set tracking cookies (__cf_bm and friends) on the
	// interstitial and expect them back with the answer.
	interstitialCookies := resp.Header.Values("Set-Cookie")

	retry := &Outbound{
		Method:    http.MethodGet,
		URL:       next,
		Header:    out.Header.Clone(),
		SessionID: out.SessionID,
		Jar:       out.Jar,
	}
	retry.Header.Set("Referer", out.URL)
	retry.Header.Del("Content-Type")
	retry.Header.Del("Origin")
	if cookies := session.MergeCookies(out.Header.Get("Cookie"), interstitialCookies); cookies != "" {
		retry.Header.Set("Cookie", cookies)
	}

	solved, err := s.fetch(ctx, retry)
	if err != nil {
		return nil, fmt.Errorf("submit challenge answer: %w", err)
	}
	if len(interstitialCookies) > 0 {
		solved.Header["Set-Cookie"] = append(append([]string(nil), interstitialCookies...), solved.Header.Values("Set-Cookie")...)
	}
	if fingerprint.IsChallengePage(string(solved.Body)) {
		s.unsolved(next, solved.StatusCode, fmt.Errorf("%w: answer rejected", model.ErrChallengeUnsolved))
	}
	return solved, nil
}

// unsolved records a challenge the strategy could not clear. The
// interstitial itself is still returned to the caller.
func (s *FingerprintStrategy) unsolved(url string, status int, err error) {
	s.metrics.RecordChallenge("unsolved")
	s.logger.Warn("returning challenge interstitial",
		slog.String("url", url),
		slog.Int("status", status),
		slog.Any("error", err),
	)
}

func (s *FingerprintStrategy) fetch(ctx context.Context, out *Outbound) (*model.Response, error) {
	req, err := out.NewRequest(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fingerprint fetch: %w", err)
	}
	return readResponse(resp)
}
