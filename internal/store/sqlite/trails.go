package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mnemon-ai/mnemon/internal/store"
)

const trailColumns = `source, target, traversal_count, stability, last_traversed, created_at`

// ReinforceTrail folds one traversal into an edge in a single upsert, so
// concurrent reinforcements of the same edge never lose counts. The update
// arm grows stability by the forgetting-scaled gain, clamped to the cap, in
// SQL arithmetic; a brand new edge starts at the base stability.
func (db *DB) ReinforceTrail(ctx context.Context, source, target string, p store.TrailParams, now int64) (*store.TrailEdge, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO trail_edges (source, target, traversal_count, stability, last_traversed, created_at)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT(source, target) DO UPDATE SET
			traversal_count = traversal_count + 1,
			stability = MIN(?, stability + ? * (1.0 - 1.0 / (1.0 + ((? - last_traversed) / 3600000.0) / (9.0 * stability)))),
			last_traversed = ?
	`, source, target, p.BaseStability, now, now,
		p.Cap, p.Gain, now, now)
	if err != nil {
		return nil, fmt.Errorf("reinforce trail: %w", err)
	}
	return db.GetTrail(ctx, source, target)
}

// GetTrail returns one edge.
func (db *DB) GetTrail(ctx context.Context, source, target string) (*store.TrailEdge, error) {
	var e store.TrailEdge
	err := db.QueryRowContext(ctx,
		"SELECT "+trailColumns+" FROM trail_edges WHERE source = ? AND target = ?",
		source, target).Scan(&e.Source, &e.Target, &e.TraversalCount, &e.Stability, &e.LastTraversed, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trail %s->%s: %w", source, target, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get trail: %w", err)
	}
	return &e, nil
}

func scanTrails(rows *sql.Rows) ([]store.TrailEdge, error) {
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
// by that ratio ascending is the same ordering without computing the curve
// in SQL.
func (db *DB) HotTrails(ctx context.Context, now int64, limit int) ([]store.TrailEdge, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+trailColumns+` FROM trail_edges
		ORDER BY ((? - last_traversed) / 3600000.0) / stability ASC, source, target
		LIMIT ?
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("hot trails: %w", err)
	}
	defer rows.Close()
	return scanTrails(rows)
}

// TrailsFrom returns outgoing edges of a fingerprint.
func (db *DB) TrailsFrom(ctx context.Context, fingerprint string) ([]store.TrailEdge, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+trailColumns+" FROM trail_edges WHERE source = ? ORDER BY traversal_count DESC", fingerprint)
	if err != nil {
		return nil, fmt.Errorf("trails from: %w", err)
	}
	defer rows.Close()
	return scanTrails(rows)
}

// TrailsTo returns incoming edges of a fingerprint.
func (db *DB) TrailsTo(ctx context.Context, fingerprint string) ([]store.TrailEdge, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+trailColumns+" FROM trail_edges WHERE target = ? ORDER BY traversal_count DESC", fingerprint)
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

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(fingerprints)), ",")
	args := make([]any, 0, len(fingerprints)*2)
	for _, fp := range fingerprints {
		args = append(args, fp)
	}
	for _, fp := range fingerprints {
		args = append(args, fp)
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(
		"SELECT "+trailColumns+" FROM trail_edges WHERE source IN (%s) OR target IN (%s)",
		placeholders, placeholders), args...)
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
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("all trails: %w", err)
	}
	defer rows.Close()
	return scanTrails(rows)
}

// BuriedTrails returns edges whose retrieval has sunk below the given
// elapsed/stability ratio, most traversed first: well-worn paths that have
// gone quiet.
func (db *DB) BuriedTrails(ctx context.Context, now int64, minRatio float64, limit int) ([]store.TrailEdge, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+trailColumns+` FROM trail_edges
		WHERE ((? - last_traversed) / 3600000.0) / stability >= ?
		ORDER BY traversal_count DESC, source, target
		LIMIT ?
	`, now, minRatio, limit)
	if err != nil {
		return nil, fmt.Errorf("buried trails: %w", err)
	}
	defer rows.Close()
	return scanTrails(rows)
}

// ResurrectTrail doubles an edge's stability within the cap and stamps a
// fresh traversal time, bringing it back to full retrieval strength.
func (db *DB) ResurrectTrail(ctx context.Context, source, target string, capHours float64, now int64) (*store.TrailEdge, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE trail_edges SET stability = MIN(?, stability * 2.0), last_traversed = ?
		WHERE source = ? AND target = ?
	`, capHours, now, source, target)
	if err != nil {
		return nil, fmt.Errorf("resurrect trail: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("trail %s->%s: %w", source, target, store.ErrNotFound)
	}
	return db.GetTrail(ctx, source, target)
}
