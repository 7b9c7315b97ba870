// Package session tracks one client identity per browser: a stable user
// agent, the cookies the target has set, and a cookie jar for strategies
// that manage cookies themselves.
package session

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"mirror-proxy/internal/metrics"
)

// CookieName is the client cookie carrying the session id.
const CookieName = "sessionId"

// MaxAge is how long a session lives after creation.
const MaxAge = 24 * time.Hour

// Session is a snapshot of one client's identity.
// UserAgent never changes after creation.
type Session struct {
	ID        string
	UserAgent string
	Cookies   string // accumulated "name=value; name2=value2"
	CreatedAt time.Time
	LastSeen  time.Time
}

// Persister saves sessions outside the process. Implementations must be
// safe for concurrent use.
type Persister interface {
	Save(ctx context.Context, s Session) error
	LoadAll(ctx context.Context) ([]Session, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Options configures a Store.
type Options struct {
	// PickAgent chooses the user agent for a new session.
	PickAgent func() string
	MaxAge    time.Duration
	Persister Persister // optional
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Store is the in-memory session table. All methods are safe for
// concurrent use; callers receive copies, never shared pointers.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	jars     map[string]http.CookieJar
	opts     Options
}

// NewStore creates an empty store.
func NewStore(opts Options) *Store {
	if opts.MaxAge <= 0 {
		opts.MaxAge = MaxAge
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.PickAgent == nil {
		opts.PickAgent = func() string { return "" }
	}
	return &Store{
		sessions: make(map[string]*Session),
		jars:     make(map[string]http.CookieJar),
		opts:     opts,
	}
}

// Resolve returns the session for id, creating a fresh one when id is
// empty, unknown or expired. created reports whether a new session was made.
func (s *Store) Resolve(ctx context.Context, id string) (sess Session, created bool) {
	now := s.opts.Now()

	s.mu.Lock()
	if existing, ok := s.sessions[id]; ok && id != "" && !s.expired(existing, now) {
		existing.LastSeen = now
		sess = *existing
		s.mu.Unlock()
		return sess, false
	}

	fresh := &Session{
		ID:        uuid.NewString(),
		UserAgent: s.opts.PickAgent(),
		CreatedAt: now,
		LastSeen:  now,
	}
	s.sessions[fresh.ID] = fresh
	sess = *fresh
	count := len(s.sessions)
	s.mu.Unlock()

	s.opts.Metrics.SetSessions(count)
	s.persist(ctx, sess)
	s.opts.Logger.Debug("session created",
		slog.String("session_id", sess.ID),
		slog.String("user_agent", sess.UserAgent),
	)
	return sess, true
}

// Get returns the session for id without creating or touching it.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	existing, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *existing, true
}

// AppendCookies merges upstream Set-Cookie values into the session's
// cookie string. Unknown ids are ignored.
func (s *Store) AppendCookies(ctx context.Context, id string, setCookies []string) {
	if len(setCookies) == 0 {
		return
	}

	s.mu.Lock()
	existing, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	merged := MergeCookies(existing.Cookies, setCookies)
	if merged == existing.Cookies {
		s.mu.Unlock()
		return
	}
	existing.Cookies = merged
	snapshot := *existing
	s.mu.Unlock()

	s.persist(ctx, snapshot)
}

// Jar returns the session's cookie jar, creating it on first use.
func (s *Store) Jar(id string) http.CookieJar {
	s.mu.Lock()
	defer s.mu.Unlock()

	if jar, ok := s.jars[id]; ok {
		return jar
	}
	// publicsuffix keeps cookies off registrable suffixes like co.uk.
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		s.opts.Logger.Error("cookie jar", slog.String("error", err.Error()))
		return nil
	}
	s.jars[id] = jar
	return jar
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep drops sessions older than MaxAge along with their jars and
// returns how many were removed.
func (s *Store) Sweep(ctx context.Context) int {
	now := s.opts.Now()

	s.mu.Lock()
	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, id)
			delete(s.jars, id)
			removed++
		}
	}
	count := len(s.sessions)
	s.mu.Unlock()

	s.opts.Metrics.SetSessions(count)

	if p := s.opts.Persister; p != nil {
		if _, err := p.DeleteBefore(ctx, now.Add(-s.opts.MaxAge)); err != nil {
			s.opts.Logger.Warn("session sweep persist failed", slog.String("error", err.Error()))
		}
	}
	if removed > 0 {
		s.opts.Logger.Info("sessions swept",
			slog.Int("removed", removed),
			slog.Int("remaining", count),
		)
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Restore loads persisted sessions that have not expired yet.
func (s *Store) Restore(ctx context.Context) (int, error) {
	p := s.opts.Persister
	if p == nil {
		return 0, nil
	}
	saved, err := p.LoadAll(ctx)
	if err != nil {
		return 0, err
	}

	now := s.opts.Now()
	s.mu.Lock()
	restored := 0
	for i := range saved {
		sess := saved[i]
		if s.expired(&sess, now) {
			continue
		}
		s.sessions[sess.ID] = &sess
		restored++
	}
	count := len(s.sessions)
	s.mu.Unlock()

	s.opts.Metrics.SetSessions(count)
	return restored, nil
}

func (s *Store) expired(sess *Session, now time.Time) bool {
	return now.Sub(sess.CreatedAt) > s.opts.MaxAge
}

func (s *Store) persist(ctx context.Context, sess Session) {
	if s.opts.Persister == nil {
		return
	}
	if err := s.opts.Persister.Save(ctx, sess); err != nil {
		s.opts.Logger.Warn("session persist failed",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
	}
}
