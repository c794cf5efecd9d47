package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mnemon-ai/mnemon/internal/store"
)

// GetBranchFingerprint returns the semantic profile of a branch.
func (db *DB) GetBranchFingerprint(ctx context.Context, branch string) (*store.BranchFingerprint, error) {
	var fp store.BranchFingerprint
	var centroid []byte
	err := db.QueryRowContext(ctx, `
		SELECT branch, centroid, commit_count, health, updated_at
		FROM branch_fingerprints WHERE branch = ?
	`, branch).Scan(&fp.Branch, &centroid, &fp.CommitCount, &fp.Health, &fp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("fingerprint %s: %w", branch, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get fingerprint: %w", err)
	}
	fp.Centroid = decodeVec(centroid)
	return &fp, nil
}

// ListBranchFingerprints returns every branch profile.
func (db *DB) ListBranchFingerprints(ctx context.Context) ([]store.BranchFingerprint, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT branch, centroid, commit_count, health, updated_at
		FROM branch_fingerprints ORDER BY branch
	`)
	if err != nil {
		return nil, fmt.Errorf("list fingerprints: %w", err)
	}
	defer rows.Close()

	var fps []store.BranchFingerprint
	for rows.Next() {
		var fp store.BranchFingerprint
		var centroid []byte
		if err := rows.Scan(&fp.Branch, &centroid, &fp.CommitCount, &fp.Health, &fp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		fp.Centroid = decodeVec(centroid)
		fps = append(fps, fp)
	}
	return fps, rows.Err()
}

// SaveBranchFingerprint writes a branch profile guarded by the expected
// commit count, the same discipline heads use. A first write passes
// expectedCount 0 and only succeeds if no profile exists yet. Losing the
// race returns ErrBranchConflict so the caller can refold and retry.
func (db *DB) SaveBranchFingerprint(ctx context.Context, fp *store.BranchFingerprint, expectedCount int64) error {
	now := time.Now().UnixMilli()
	fp.UpdatedAt = now

	if expectedCount == 0 {
		res, err := db.ExecContext(ctx, `
			INSERT INTO branch_fingerprints (branch, centroid, commit_count, health, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(branch) DO NOTHING
		`, fp.Branch, encodeVec(fp.Centroid), fp.CommitCount, fp.Health, now)
		if err != nil {
			return fmt.Errorf("insert fingerprint: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("fingerprint %s: %w", fp.Branch, store.ErrBranchConflict)
		}
		return nil
	}

	res, err := db.ExecContext(ctx, `
		UPDATE branch_fingerprints
		SET centroid = ?, commit_count = ?, health = ?, updated_at = ?
		WHERE branch = ? AND commit_count = ?
	`, encodeVec(fp.Centroid), fp.CommitCount, fp.Health, now, fp.Branch, expectedCount)
	if err != nil {
		return fmt.Errorf("update fingerprint: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("fingerprint %s: %w", fp.Branch, store.ErrBranchConflict)
	}
	return nil
}
