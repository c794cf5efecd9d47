package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/mnemon-ai/mnemon/internal/store"
)

// TagCommit attaches a named marker to a commit. Re-tagging is a no-op.
func (db *DB) TagCommit(ctx context.Context, tag, commitID, branch string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO commit_tags (tag, commit_id, branch, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tag, commit_id) DO NOTHING
	`, tag, commitID, branch, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("tag commit: %w", err)
	}
	return nil
}

// ListTags returns tags, optionally scoped to a branch, newest first.
func (db *DB) ListTags(ctx context.Context, branch string) ([]store.CommitTag, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT tag, commit_id, branch, created_at FROM commit_tags
		WHERE (? = '' OR branch = ?)
		ORDER BY created_at DESC, tag
	`, branch, branch)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var tags []store.CommitTag
	for rows.Next() {
		var t store.CommitTag
		if err := rows.Scan(&t.Tag, &t.CommitID, &t.Branch, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
