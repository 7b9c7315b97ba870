package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"mirror-proxy/internal/model"
)

// retryStatuses are the upstream statuses worth another attempt.
var retryStatuses = map[int]bool{
	http.StatusRequestTimeout:        true,
	http.StatusRequestEntityTooLarge: true,
	http.StatusTooManyRequests:       true,
	http.StatusInternalServerError:   true,
	http.StatusBadGateway:            true,
	http.StatusServiceUnavailable:    true,
	http.StatusGatewayTimeout:        true,
}

// idempotentMethods may be replayed without the client's consent.
var idempotentMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
}

// RetryingOptions configures NewRetryingStrategy.
type RetryingOptions struct {
	RetryMax     int           // default 2
	RetryWaitMin time.Duration // default 200ms
	RetryWaitMax time.Duration // default 2s
	Logger       *slog.Logger
}

// RetryingStrategy retries transient failures of idempotent requests and
// keeps cookies in the session's jar between attempts.
type RetryingStrategy struct {
	transport http.RoundTripper
	opts      RetryingOptions
}

var _ Strategy = (*RetryingStrategy)(nil)

// NewRetryingStrategy wraps rt, normally transport.NewHTTP2.
func NewRetryingStrategy(rt http.RoundTripper, opts RetryingOptions) *RetryingStrategy {
	if opts.RetryMax == 0 {
		opts.RetryMax = 2
	}
	if opts.RetryWaitMin == 0 {
		opts.RetryWaitMin = 200 * time.Millisecond
	}
	if opts.RetryWaitMax == 0 {
		opts.RetryWaitMax = 2 * time.Second
	}
	return &RetryingStrategy{transport: rt, opts: opts}
}

func (s *RetryingStrategy) Name() string { return "retrying" }

func (s *RetryingStrategy) Attempt(ctx context.Context, out *Outbound) (*model.Response, error) {
	var body io.Reader
	if len(out.Body) > 0 {
		body = bytes.NewReader(out.Body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, out.Method, out.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header = out.Header.Clone()
	req.Host = req.URL.Host

	client := &retryablehttp.Client{
		HTTPClient: &http.Client{
			Transport:     s.transport,
			Jar:           out.Jar,
			CheckRedirect: noRedirect,
		},
		RetryWaitMin: s.opts.RetryWaitMin,
		RetryWaitMax: s.opts.RetryWaitMax,
		RetryMax:     s.opts.RetryMax,
		CheckRetry:   checkRetry(idempotentMethods[out.Method]),
		Backoff:      retryablehttp.DefaultBackoff,
		ErrorHandler: giveUp,
	}
	if s.opts.Logger != nil {
		client.Logger = s.opts.Logger
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrying fetch: %w", err)
	}
	return readResponse(resp)
}

// checkRetry retries listed statuses and transport errors, and only for
// idempotent methods.
func checkRetry(idempotent bool) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if !idempotent {
			return false, nil
		}
		if err != nil {
			return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		}
		return retryStatuses[resp.StatusCode], nil
	}
}

// giveUp turns an exhausted retry into an error carrying the last status
// so the dispatcher can move on to the next strategy.
func giveUp(resp *http.Response, err error, attempts int) (*http.Response, error) {
	if resp != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("after %d attempts: %w", attempts, &model.StatusError{StatusCode: resp.StatusCode})
	}
	return nil, err
}
