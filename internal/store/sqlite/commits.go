package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mnemon-ai/mnemon/internal/store"
)

// CreateCommit advances the branch head with a compare-and-swap against
// c.ParentID, then writes the snapshot, its entries, and the commit row, all
// in one transaction. The swap goes first so a stale parent fails fast: zero
// rows means another writer moved the head, everything rolls back, and the
// caller retries with a fresh parent. When a promote mark is given, the
// candidate flips to promoted in the same transaction, which is what makes
// promotion exactly-once across crashes.
func (db *DB) CreateCommit(ctx context.Context, c *store.Commit, entries []store.TreeEntry, promote *store.PromoteMark) error {
	now := time.Now().UnixMilli()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE branches SET head = ?, updated_at = ? WHERE name = ? AND head = ?
	`, c.ID, now, c.Branch, c.ParentID)
	if err != nil {
		return fmt.Errorf("advance head: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("branch %s: %w", c.Branch, store.ErrBranchConflict)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO trees (tree_id, branch, created_at) VALUES (?, ?, ?)
	`, c.TreeID, c.Branch, c.CreatedAt); err != nil {
		return fmt.Errorf("insert tree: %w", err)
	}

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tree_entries (tree_id, position, name, fingerprint, mode)
			VALUES (?, ?, ?, ?, ?)
		`, c.TreeID, e.Position, e.Name, e.Fingerprint, e.Mode); err != nil {
			return fmt.Errorf("insert tree entry %d: %w", e.Position, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO commits (commit_id, tree_id, parent_id, branch, author, message,
			agent_id, parent_agent, depth, run_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.TreeID, c.ParentID, c.Branch, c.Author, c.Message,
		c.AgentID, c.ParentAgent, c.Depth, c.RunID, c.CreatedAt); err != nil {
		return fmt.Errorf("insert commit: %w", err)
	}

	if promote != nil {
		res, err := tx.ExecContext(ctx, `
			UPDATE candidates SET status = ?, promoted_commit = ?
			WHERE id = ? AND status IN ('active', 'cooling')
		`, store.CandidatePromoted, c.ID, promote.CandidateID)
		if err != nil {
			return fmt.Errorf("mark promoted: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("candidate %s not promotable: %w", promote.CandidateID, store.ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const commitColumns = `commit_id, tree_id, parent_id, branch, author, message,
	agent_id, parent_agent, depth, run_id, created_at`

func scanCommit(row *sql.Row) (*store.Commit, error) {
	var c store.Commit
	err := row.Scan(&c.ID, &c.TreeID, &c.ParentID, &c.Branch, &c.Author, &c.Message,
		&c.AgentID, &c.ParentAgent, &c.Depth, &c.RunID, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCommits(rows *sql.Rows) ([]store.Commit, error) {
	var commits []store.Commit
	for rows.Next() {
		var c store.Commit
		if err := rows.Scan(&c.ID, &c.TreeID, &c.ParentID, &c.Branch, &c.Author, &c.Message,
			&c.AgentID, &c.ParentAgent, &c.Depth, &c.RunID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		commits = append(commits, c)
	}
	return commits, rows.Err()
}

// GetCommit returns a commit by id.
func (db *DB) GetCommit(ctx context.Context, commitID string) (*store.Commit, error) {
	c, err := scanCommit(db.QueryRowContext(ctx,
		"SELECT "+commitColumns+" FROM commits WHERE commit_id = ?", commitID))
	if err == store.ErrNotFound {
		return nil, fmt.Errorf("commit %s: %w", commitID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get commit: %w", err)
	}
	return c, nil
}

// TreeEntries returns a snapshot's entries in position order.
func (db *DB) TreeEntries(ctx context.Context, treeID string) ([]store.TreeEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT tree_id, position, name, fingerprint, mode
		FROM tree_entries WHERE tree_id = ? ORDER BY position
	`, treeID)
	if err != nil {
		return nil, fmt.Errorf("tree entries: %w", err)
	}
	defer rows.Close()

	var entries []store.TreeEntry
	for rows.Next() {
		var e store.TreeEntry
		if err := rows.Scan(&e.TreeID, &e.Position, &e.Name, &e.Fingerprint, &e.Mode); err != nil {
			return nil, fmt.Errorf("scan tree entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Log walks a branch's history newest first, following parent pointers from
// the head. An existing branch with no commits returns ErrEmptyBranch.
func (db *DB) Log(ctx context.Context, branch string, limit int) ([]store.Commit, error) {
	b, err := db.GetBranch(ctx, branch)
	if err != nil {
		return nil, err
	}
	if b.Head == "" {
		return nil, fmt.Errorf("branch %s: %w", branch, store.ErrEmptyBranch)
	}

	if limit <= 0 {
		limit = 50
	}

	var commits []store.Commit
	next := b.Head
	for next != "" && len(commits) < limit {
		c, err := db.GetCommit(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("walk history at %s: %w", next, err)
		}
		commits = append(commits, *c)
		next = c.ParentID
	}
	return commits, nil
}

// RecentCommits returns the newest commits across all branches.
func (db *DB) RecentCommits(ctx context.Context, limit int) ([]store.Commit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx,
		"SELECT "+commitColumns+" FROM commits ORDER BY created_at DESC, commit_id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("recent commits: %w", err)
	}
	defer rows.Close()
	return scanCommits(rows)
}
