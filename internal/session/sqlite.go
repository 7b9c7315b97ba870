package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	user_agent TEXT NOT NULL,
	cookies    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	last_seen  TEXT NOT NULL
)`

// timeLayout is fixed width so timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLitePersister stores sessions in a SQLite database so they survive
// restarts.
type SQLitePersister struct {
	db *sql.DB
}

var _ Persister = (*SQLitePersister)(nil)

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLitePersister, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	return &SQLitePersister{db: db}, nil
}

// Save inserts or replaces s.
func (p *SQLitePersister) Save(ctx context.Context, s Session) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (id, user_agent, cookies, created_at, last_seen)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID,
		s.UserAgent,
		s.Cookies,
		s.CreatedAt.UTC().Format(timeLayout),
		s.LastSeen.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	return nil
}

// LoadAll returns every stored session, newest first.
func (p *SQLitePersister) LoadAll(ctx context.Context) ([]Session, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_agent, cookies, created_at, last_seen
		FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var created, seen string
		if err := rows.Scan(&s.ID, &s.UserAgent, &s.Cookies, &created, &seen); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.CreatedAt, _ = time.Parse(timeLayout, created)
		s.LastSeen, _ = time.Parse(timeLayout, seen)
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteBefore removes sessions created before cutoff.
func (p *SQLitePersister) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE created_at < ?`,
		cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("delete old sessions: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
