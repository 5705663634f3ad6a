package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kurisu/squadagent/internal/session"
)

// SessionStore implements session.Store on the sessions table.
// Saves are upserts, so concurrent writers to one key are last-write-wins.
type SessionStore struct {
	db  *sql.DB
	now func() time.Time
}

func (s *SessionStore) timestamp() string {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	return now().UTC().Format(time.RFC3339Nano)
}

// Load implements session.Store.
func (s *SessionStore) Load(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, "SELECT blob FROM sessions WHERE key = ?", key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load session: %w", err)
	}
	return blob, nil
}

// Save implements session.Store.
func (s *SessionStore) Save(ctx context.Context, key string, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (key, blob, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at`,
		key, blob, s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save session: %w", err)
	}
	return nil
}

// Delete implements session.Store.
func (s *SessionStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE key = ?", key); err != nil {
		return fmt.Errorf("sqlite: delete session: %w", err)
	}
	return nil
}

// List implements session.Store. Entries are sorted by key.
func (s *SessionStore) List(ctx context.Context) ([]session.Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, updated_at FROM sessions ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []session.Entry
	for rows.Next() {
		var (
			e  session.Entry
			ts string
		)
		if err := rows.Scan(&e.Key, &ts); err != nil {
			return nil, fmt.Errorf("sqlite: scan session: %w", err)
		}
		e.UpdatedAt, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse updated_at %q: %w", ts, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ session.Store = (*SessionStore)(nil)
