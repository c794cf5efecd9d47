package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mnemon-ai/mnemon/internal/store"
)

const trailColumns = `source, target, traversal_count, stability, last_traversed, created_at`

// ReinforceTrail folds one traversal into an edge in a single upsert. The
// update arm grows stability by the forgetting-scaled gain, clamped to the
// cap; a brand new edge starts at the base stability.
func (db *DB) ReinforceTrail(ctx context.Context, source, target string, p store.TrailParams, now int64) (*store.TrailEdge, error) {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO trail_edges (source, target, traversal_count, stability, last_traversed, created_at)
		VALUES ($1, $2, 1, $3, $4, $4)
		ON CONFLICT (source, target) DO UPDATE SET
			traversal_count = trail_edges.traversal_count + 1,
			stability = LEAST($5, trail_edges.stability + $6 * (1.0 - 1.0 / (1.0 + (($4 - trail_edges.last_traversed) / 3600000.0) / (9.0 * trail_edges.stability)))),
			last_traversed = $4
	`, source, target, p.BaseStability, now, p.Cap, p.Gain)
	if err != nil {
		return nil, fmt.Errorf("reinforce trail: %w", err)
	}
	return db.GetTrail(ctx, source, target)
}

// GetTrail returns one edge.
func (db *DB) GetTrail(ctx context.Context, source, target string) (*store.TrailEdge, error) {
	var e store.TrailEdge
	err := db.Pool.QueryRow(ctx,
		"SELECT "+trailColumns+" FROM trail_edges WHERE source = $1 AND target = $2",
		source, target).Scan(&e.Source, &e.Target, &e.TraversalCount, &e.Stability, &e.LastTraversed, &e.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("trail %s->%s: %w", source, target, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get trail: %w", err)
	}
	return &e, nil
}

func scanTrails(rows pgx.Rows) ([]store.TrailEdge, error) {
	var edges []store.TrailEdge
	for rows.Next() {
		var e store.TrailEdge
		if err := rows.Scan(&e.Source, &e.Target, &e.TraversalCount, &e.Stability, &e.LastTraversed, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trail: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// HotTrails returns edges ordered by current retrieval strength descending.
// Retrieval strength falls monotonically in elapsed/stability, so ordering
// by that ratio ascending gives the same order without computing the curve.
func (db *DB) HotTrails(ctx context.Context, now int64, limit int) ([]store.TrailEdge, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT `+trailColumns+` FROM trail_edges
		ORDER BY (($1 - last_traversed) / 3600000.0) / stability ASC, source, target
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("hot trails: %w", err)
	}
	defer rows.Close()
	return scanTrails(rows)
}

// TrailsFrom returns outgoing edges of a fingerprint.
func (db *DB) TrailsFrom(ctx context.Context, fingerprint string) ([]store.TrailEdge, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+trailColumns+" FROM trail_edges WHERE source = $1 ORDER BY traversal_count DESC", fingerprint)
	if err != nil {
		return nil, fmt.Errorf("trails from: %w", err)
	}
	defer rows.Close()
	return scanTrails(rows)
}

// TrailsTo returns incoming edges of a fingerprint.
func (db *DB) TrailsTo(ctx context.Context, fingerprint string) ([]store.TrailEdge, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+trailColumns+" FROM trail_edges WHERE target = $1 ORDER BY traversal_count DESC", fingerprint)
	if err != nil {
		return nil, fmt.Errorf("trails to: %w", err)
	}
	defer rows.Close()
	return scanTrails(rows)
}

// TrailsTouching returns every edge incident to any of the fingerprints.
func (db *DB) TrailsTouching(ctx context.Context, fingerprints []string) ([]store.TrailEdge, error) {
	if len(fingerprints) == 0 {
		return nil, nil
	}
	rows, err := db.Pool.Query(ctx,
		"SELECT "+trailColumns+" FROM trail_edges WHERE source = ANY($1) OR target = ANY($1)", fingerprints)
	if err != nil {
		return nil, fmt.Errorf("trails touching: %w", err)
	}
	defer rows.Close()
	return scanTrails(rows)
}

// AllTrails returns every edge, most traversed first. limit <= 0 means all.
func (db *DB) AllTrails(ctx context.Context, limit int) ([]store.TrailEdge, error) {
	query := "SELECT " + trailColumns + " FROM trail_edges ORDER BY traversal_count DESC, source, target"
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("all trails: %w", err)
	}
	defer rows.Close()
	return scanTrails(rows)
}

// BuriedTrails returns edges whose retrieval has sunk below the given
// elapsed/stability ratio, most traversed first.
func (db *DB) BuriedTrails(ctx context.Context, now int64, minRatio float64, limit int) ([]store.TrailEdge, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT `+trailColumns+` FROM trail_edges
		WHERE (($1 - last_traversed) / 3600000.0) / stability >= $2
		ORDER BY traversal_count DESC, source, target
		LIMIT $3
	`, now, minRatio, limit)
	if err != nil {
		return nil, fmt.Errorf("buried trails: %w", err)
	}
	defer rows.Close()
	return scanTrails(rows)
}

// ResurrectTrail doubles an edge's stability within the cap and stamps a
// fresh traversal time.
func (db *DB) ResurrectTrail(ctx context.Context, source, target string, capHours float64, now int64) (*store.TrailEdge, error) {
	ct, err := db.Pool.Exec(ctx, `
		UPDATE trail_edges SET stability = LEAST($1, stability * 2.0), last_traversed = $2
		WHERE source = $3 AND target = $4
	`, capHours, now, source, target)
	if err != nil {
		return nil, fmt.Errorf("resurrect trail: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, fmt.Errorf("trail %s->%s: %w", source, target, store.ErrNotFound)
	}
	return db.GetTrail(ctx, source, target)
}
