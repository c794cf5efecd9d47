// Package postgres is the shared-deployment mnemon storage backend:
// pgvector carries the embedding columns and nearest-neighbor indexes,
// Postgres full text search carries the lexical leg.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/mnemon-ai/mnemon/internal/store"
)

// DB wraps a pgx pool and implements store.Store.
type DB struct {
	Pool *pgxpool.Pool
	dim  int
}

var _ store.Store = (*DB)(nil)

// Open connects to the database, registers the pgvector types on every
// connection, and brings the schema up to date. The dimension fixes the
// width of every vector column and must match the embedding provider.
func Open(ctx context.Context, url string, dimension int) (*DB, error) {
	if dimension <= 0 {
		dimension = 256
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	db := &DB{Pool: pool, dim: dimension}
	if err := db.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

// Close releases the pool.
func (db *DB) Close() error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	return nil
}

// vecParam wraps an embedding for a vector parameter; empty embeddings
// become NULL.
func vecParam(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

// vecSlice parses the textual form of a vector column read through
// COALESCE(col::text, '').
func vecSlice(text string) []float32 {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var v pgvector.Vector
	if err := v.Parse(text); err != nil {
		return nil
	}
	return v.Slice()
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
		if err := db.Pool.QueryRow(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("stats %q: %w", c.query, err)
		}
	}
	return &s, nil
}
