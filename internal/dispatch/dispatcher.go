package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"mirror-proxy/internal/metrics"
	"mirror-proxy/internal/model"
	"mirror-proxy/internal/rewrite"
	"mirror-proxy/internal/session"
)

// DefaultAttemptTimeout bounds each strategy attempt. There is no overall
// deadline: a request that exhausts every strategy waits for all of them.
const DefaultAttemptTimeout = 30 * time.Second

// MaxRequestBody caps inbound bodies replayed upstream.
const MaxRequestBody = 50 << 20

// Options configures a Dispatcher.
type Options struct {
	Rewriter       *rewrite.Rewriter
	Sessions       *session.Store
	Limiter        *rate.Limiter // nil means unlimited
	AttemptTimeout time.Duration
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

// Dispatcher tries its strategies in order and returns the first response.
type Dispatcher struct {
	opts       Options
	strategies []Strategy
}

// New creates a dispatcher. Strategies are tried in the order given.
func New(opts Options, strategies ...Strategy) *Dispatcher {
	if opts.AttemptTimeout == 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{opts: opts, strategies: strategies}
}

// StrategyNames lists the configured strategies in order.
func (d *Dispatcher) StrategyNames() []string {
	names := make([]string, len(d.strategies))
	for i, s := range d.strategies {
		names[i] = s.Name()
	}
	return names
}

// Dispatch fetches the target resource for inbound request r on behalf of
// sess. Upstream Set-Cookie values are folded into the session. When every
// strategy fails the error is a *model.DispatchError carrying the last
// failure.
func (d *Dispatcher) Dispatch(ctx context.Context, r *http.Request, sess session.Session) (*model.Response, error) {
	out, err := d.outbound(r, sess)
	if err != nil {
		return nil, err
	}

	if d.opts.Limiter != nil {
		if err := d.opts.Limiter.Wait(ctx); err != nil {
			return nil, model.NewRateLimitError(err)
		}
	}

	var lastErr error
	for _, s := range d.strategies {
		if g, ok := s.(Gate); ok && !g.Applies(out) {
			continue
		}

		start := time.Now()
		resp, err := d.attempt(ctx, s, out)
		if err != nil {
			lastErr = err
			d.opts.Metrics.RecordAttempt(s.Name(), "error")
			d.opts.Logger.Warn("strategy failed",
				slog.String("strategy", s.Name()),
				slog.String("method", out.Method),
				slog.String("url", out.URL),
				slog.String("error", err.Error()),
			)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		d.opts.Metrics.RecordAttempt(s.Name(), "ok")
		d.opts.Logger.Debug("strategy succeeded",
			slog.String("strategy", s.Name()),
			slog.String("url", out.URL),
			slog.Int("status", resp.StatusCode),
			slog.Duration("elapsed", time.Since(start)),
		)
		if d.opts.Sessions != nil {
			d.opts.Sessions.AppendCookies(ctx, sess.ID, resp.Header.Values("Set-Cookie"))
		}
		return resp, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no strategy applies")
	}
	return nil, model.NewDispatchError(lastErr)
}

func (d *Dispatcher) attempt(ctx context.Context, s Strategy, out *Outbound) (*model.Response, error) {
	actx, cancel := context.WithTimeout(ctx, d.opts.AttemptTimeout)
	defer cancel()
	return s.Attempt(actx, out)
}

// outbound prepares the upstream request for r.
func (d *Dispatcher) outbound(r *http.Request, sess session.Session) (*Outbound, error) {
	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		b, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBody+1))
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		if len(b) > MaxRequestBody {
			return nil, model.NewValidationError("body", "request body too large")
		}
		body = b
	}

	out := &Outbound{
		Method:    r.Method,
		URL:       d.opts.Rewriter.TargetURL(r.URL.RequestURI()),
		Header:    BuildHeaders(r, sess, d.opts.Rewriter),
		Body:      body,
		SessionID: sess.ID,
	}
	if d.opts.Sessions != nil {
		out.Jar = d.opts.Sessions.Jar(sess.ID)
	}
	return out, nil
}
