package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// DB is an open squadagent database holding session blobs and the SQuAD
// full-text index.
type DB struct {
	db       *sql.DB
	sessions *SessionStore
	index    *Index
}

// Open opens (creating if needed) the database at path with WAL mode and a
// 5 s busy timeout, and migrates the schema. Close it when done.
func Open(ctx context.Context, path string) (*DB, error) {
	return open(ctx, Config{Path: path})
}

func open(ctx context.Context, cfg Config) (*DB, error) {
	cfg.defaults()
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	// SQLite handles one writer at a time; a single connection keeps the
	// PRAGMAs below in effect for every statement.
	db.SetMaxOpenConns(1)

	if cfg.walEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{
		db:       db,
		sessions: &SessionStore{db: db},
		index:    &Index{db: db, topK: cfg.TopK},
	}, nil
}

// Sessions returns the session blob store.
func (d *DB) Sessions() *SessionStore { return d.sessions }

// Index returns the SQuAD full-text index.
func (d *DB) Index() *Index { return d.index }

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }
