// Package sqlite is the default mnemon storage backend: a single-file
// SQLite database with an FTS5 lexical index and embeddings packed into
// BLOB columns. Tests run it in memory.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/mnemon-ai/mnemon/internal/store"
)

// DB wraps a sql.DB connection and implements store.Store.
type DB struct {
	*sql.DB
	Path string
}

var _ store.Store = (*DB)(nil)

// DefaultPath returns the default database path: ~/.mnemon/mnemon.db
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".mnemon", "mnemon.db"), nil
}

// Open opens (or creates) the database at the given path, configures
// pragmas, and runs migrations.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db := &DB{DB: sqlDB, Path: path}
	if err := db.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// OpenMemory opens an in-memory database for testing. The pool is pinned to
// one connection because every :memory: connection is its own database.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	db := &DB{DB: sqlDB, Path: ":memory:"}
	if err := db.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *DB) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA mmap_size=268435456", // 256MB
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

// Stats returns row counts for health and graph endpoints.
func (db *DB) Stats(ctx context.Context) (*store.Stats, error) {
	var s store.Stats
	counts := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM blobs", &s.Blobs},
		{"SELECT COUNT(*) FROM commits", &s.Commits},
		{"SELECT COUNT(*) FROM branches", &s.Branches},
		{"SELECT COUNT(*) FROM candidates WHERE status = 'active'", &s.ActiveCandidates},
		{"SELECT COUNT(*) FROM trail_edges", &s.TrailEdges},
		{"SELECT COUNT(*) FROM links", &s.Links},
	}
	for _, c := range counts {
		if err := db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("stats %q: %w", c.query, err)
		}
	}
	return &s, nil
}
