// Mirror Proxy - serves a target site from the proxy's own origin,
// rewriting every same-origin reference so browsing stays on the proxy.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"mirror-proxy/internal/cache"
	"mirror-proxy/internal/config"
	"mirror-proxy/internal/dispatch"
	"mirror-proxy/internal/fingerprint"
	"mirror-proxy/internal/handler"
	"mirror-proxy/internal/metrics"
	"mirror-proxy/internal/middleware"
	"mirror-proxy/internal/rewrite"
	"mirror-proxy/internal/session"
	"mirror-proxy/internal/transform"
	"mirror-proxy/internal/transport"
)

// sweepInterval is how often expired sessions are dropped.
const sweepInterval = time.Hour

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := newLogger(os.Getenv("ENVIRONMENT"), os.Getenv("LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// CONFIG_FILE may carry its own level and environment.
	logger = newLogger(cfg.Environment, cfg.LogLevel)

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("target_url", cfg.Proxy.TargetURL),
		slog.String("proxy_host", cfg.Proxy.ProxyHost),
		slog.Bool("hosted", cfg.Proxy.Hosted),
		slog.Bool("cache", cfg.Proxy.EnableCache),
		slog.Bool("stealth", cfg.Proxy.Stealth),
	)

	m := metrics.New()

	rw, err := rewrite.New(cfg.Proxy.TargetURL, cfg.Proxy.ProxyHost, cfg.Proxy.Hosted)
	if err != nil {
		return fmt.Errorf("creating rewriter: %w", err)
	}
	tr, err := transform.New(rw, transform.Options{Stealth: cfg.Proxy.Stealth})
	if err != nil {
		return fmt.Errorf("creating transformer: %w", err)
	}

	sessions, closeSessions, err := openSessions(ctx, cfg.Proxy, m, logger)
	if err != nil {
		return err
	}
	defer closeSessions()
	go sessions.Run(ctx, sweepInterval)

	responses := cache.New(cache.Options{
		Enabled:  cfg.Proxy.EnableCache,
		TTL:      time.Duration(cfg.Proxy.CacheTTL) * time.Second,
		Capacity: cfg.Proxy.CacheCapacity,
		Metrics:  m,
	})

	dispatcher := newDispatcher(cfg.Proxy, rw, sessions, m, logger)

	h := handler.New(handler.Options{
		Config:      cfg.Proxy,
		Rewriter:    rw,
		Transformer: tr,
		Dispatcher:  dispatcher,
		Sessions:    sessions,
		Cache:       responses,
		Metrics:     m,
		Logger:      logger,
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.Logging(logger),
		middleware.Metrics(m),
	)(mux)

	// WriteTimeout leaves room for every strategy to run once.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", server.Addr),
			slog.String("proxy_url", rw.ProxyOrigin()),
			slog.Any("strategies", dispatcher.StrategyNames()),
		)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		logger.Info("shutdown signal received")

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// openSessions builds the session store, backed by SQLite when SESSION_DB
// is configured. The returned func releases the database.
func openSessions(ctx context.Context, cfg config.ProxyConfig, m *metrics.Metrics, logger *slog.Logger) (*session.Store, func(), error) {
	opts := session.Options{
		PickAgent: fingerprint.RandomUserAgent,
		Logger:    logger,
		Metrics:   m,
	}
	if cfg.SessionDB == "" {
		return session.NewStore(opts), func() {}, nil
	}

	db, err := session.OpenSQLite(ctx, cfg.SessionDB)
	if err != nil {
		return nil, nil, fmt.Errorf("opening session db: %w", err)
	}
	opts.Persister = db
	store := session.NewStore(opts)

	restored, err := store.Restore(ctx)
	if err != nil {
		logger.Warn("restoring sessions failed", slog.String("error", err.Error()))
	} else {
		logger.Info("sessions restored", slog.Int("count", restored))
	}

	return store, func() {
		if err := db.Close(); err != nil {
			logger.Warn("closing session db", slog.String("error", err.Error()))
		}
	}, nil
}

// newDispatcher wires the four fetch strategies in order: fingerprinted,
// pooled, retrying, fallback.
func newDispatcher(cfg config.ProxyConfig, rw *rewrite.Rewriter, sessions *session.Store, m *metrics.Metrics, logger *slog.Logger) *dispatch.Dispatcher {
	timeout := dispatch.DefaultAttemptTimeout

	var limiter *rate.Limiter
	if cfg.UpstreamRPS > 0 {
		burst := max(1, int(cfg.UpstreamRPS))
		limiter = rate.NewLimiter(rate.Limit(cfg.UpstreamRPS), burst)
	}

	return dispatch.New(
		dispatch.Options{
			Rewriter:       rw,
			Sessions:       sessions,
			Limiter:        limiter,
			AttemptTimeout: timeout,
			Metrics:        m,
			Logger:         logger,
		},
		dispatch.NewFingerprintStrategy(
			transport.NewFingerprint(transport.FingerprintOptions{Timeout: timeout}),
			fingerprint.NewDetector(cfg.ProtectedPatterns...),
			&fingerprint.Solver{Logger: logger},
			m,
			logger,
		),
		dispatch.NewPooledStrategy(transport.NewPooled(timeout)),
		dispatch.NewRetryingStrategy(transport.NewHTTP2(timeout), dispatch.RetryingOptions{Logger: logger}),
		dispatch.NewFallbackStrategy(transport.NewKeepAlive(timeout), timeout),
	)
}

// newLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func newLogger(environment, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: lvl,
		// Add source location in debug mode
		AddSource: lvl == slog.LevelDebug,
	}

	if environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
