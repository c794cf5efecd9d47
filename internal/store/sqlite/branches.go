package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mnemon-ai/mnemon/internal/store"
)

// EnsureBranch creates the branch row if it does not exist. New branches
// start with an empty head; the first commit's compare-and-swap fills it.
func (db *DB) EnsureBranch(ctx context.Context, name string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO branches (name, head, created_at, updated_at)
		VALUES (?, '', ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, now, now)
	if err != nil {
		return fmt.Errorf("ensure branch: %w", err)
	}
	return nil
}

// GetBranch returns a branch by name.
func (db *DB) GetBranch(ctx context.Context, name string) (*store.Branch, error) {
	var b store.Branch
	err := db.QueryRowContext(ctx, `
		SELECT name, head, created_at, updated_at FROM branches WHERE name = ?
	`, name).Scan(&b.Name, &b.Head, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("branch %s: %w", name, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get branch: %w", err)
	}
	return &b, nil
}

// ListBranches returns all branches ordered by name.
func (db *DB) ListBranches(ctx context.Context) ([]store.Branch, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT name, head, created_at, updated_at FROM branches ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer rows.Close()

	var branches []store.Branch
	for rows.Next() {
		var b store.Branch
		if err := rows.Scan(&b.Name, &b.Head, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}
