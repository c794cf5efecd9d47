package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mnemon-ai/mnemon/internal/store"
)

// GetBranchFingerprint returns the semantic profile of a branch.
func (db *DB) GetBranchFingerprint(ctx context.Context, branch string) (*store.BranchFingerprint, error) {
	var fp store.BranchFingerprint
	var centroid string
	err := db.Pool.QueryRow(ctx, `
		SELECT branch, COALESCE(centroid::text, ''), commit_count, health, updated_at
		FROM branch_fingerprints WHERE branch = $1
	`, branch).Scan(&fp.Branch, &centroid, &fp.CommitCount, &fp.Health, &fp.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("fingerprint %s: %w", branch, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get fingerprint: %w", err)
	}
	fp.Centroid = vecSlice(centroid)
	return &fp, nil
}

// ListBranchFingerprints returns every branch profile.
func (db *DB) ListBranchFingerprints(ctx context.Context) ([]store.BranchFingerprint, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT branch, COALESCE(centroid::text, ''), commit_count, health, updated_at
		FROM branch_fingerprints ORDER BY branch
	`)
	if err != nil {
		return nil, fmt.Errorf("list fingerprints: %w", err)
	}
	defer rows.Close()

	var fps []store.BranchFingerprint
	for rows.Next() {
		var fp store.BranchFingerprint
		var centroid string
		if err := rows.Scan(&fp.Branch, &centroid, &fp.CommitCount, &fp.Health, &fp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		fp.Centroid = vecSlice(centroid)
		fps = append(fps, fp)
	}
	return fps, rows.Err()
}

// SaveBranchFingerprint writes a branch profile guarded by the expected
// commit count. A first write passes expectedCount 0 and only succeeds if no
// profile exists yet. Losing the race returns ErrBranchConflict so the
// caller can refold and retry.
func (db *DB) SaveBranchFingerprint(ctx context.Context, fp *store.BranchFingerprint, expectedCount int64) error {
	now := time.Now().UnixMilli()
	fp.UpdatedAt = now

	if expectedCount == 0 {
		ct, err := db.Pool.Exec(ctx, `
			INSERT INTO branch_fingerprints (branch, centroid, commit_count, health, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (branch) DO NOTHING
		`, fp.Branch, vecParam(fp.Centroid), fp.CommitCount, fp.Health, now)
		if err != nil {
			return fmt.Errorf("insert fingerprint: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("fingerprint %s: %w", fp.Branch, store.ErrBranchConflict)
		}
		return nil
	}

	ct, err := db.Pool.Exec(ctx, `
		UPDATE branch_fingerprints
		SET centroid = $1, commit_count = $2, health = $3, updated_at = $4
		WHERE branch = $5 AND commit_count = $6
	`, vecParam(fp.Centroid), fp.CommitCount, fp.Health, now, fp.Branch, expectedCount)
	if err != nil {
		return fmt.Errorf("update fingerprint: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("fingerprint %s: %w", fp.Branch, store.ErrBranchConflict)
	}
	return nil
}
