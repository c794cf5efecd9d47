package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mnemon-ai/mnemon/internal/store"
)

const commitColumns = `commit_id, tree_id, parent_id, branch, author, message,
	agent_id, parent_agent, depth, run_id, created_at`

// CreateCommit advances the branch head with a compare-and-swap against
// c.ParentID, then writes the snapshot, its entries, and the commit row, all
// in one transaction. The swap goes first so a stale parent fails fast with
// ErrBranchConflict and nothing else is written. A promote mark flips its
// candidate to promoted in the same transaction.
func (db *DB) CreateCommit(ctx context.Context, c *store.Commit, entries []store.TreeEntry, promote *store.PromoteMark) error {
	now := time.Now().UnixMilli()

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		UPDATE branches SET head = $1, updated_at = $2 WHERE name = $3 AND head = $4
	`, c.ID, now, c.Branch, c.ParentID)
	if err != nil {
		return fmt.Errorf("advance head: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("branch %s: %w", c.Branch, store.ErrBranchConflict)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO trees (tree_id, branch, created_at) VALUES ($1, $2, $3)
	`, c.TreeID, c.Branch, c.CreatedAt); err != nil {
		return fmt.Errorf("insert tree: %w", err)
	}

	if len(entries) > 0 {
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(`
				INSERT INTO tree_entries (tree_id, position, name, fingerprint, mode)
				VALUES ($1, $2, $3, $4, $5)
			`, c.TreeID, e.Position, e.Name, e.Fingerprint, e.Mode)
		}
		br := tx.SendBatch(ctx, batch)
		for range entries {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert tree entries: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("insert tree entries: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO commits (commit_id, tree_id, parent_id, branch, author, message,
			agent_id, parent_agent, depth, run_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, c.ID, c.TreeID, c.ParentID, c.Branch, c.Author, c.Message,
		c.AgentID, c.ParentAgent, c.Depth, c.RunID, c.CreatedAt); err != nil {
		return fmt.Errorf("insert commit: %w", err)
	}

	if promote != nil {
		ct, err := tx.Exec(ctx, `
			UPDATE candidates SET status = $1, promoted_commit = $2
			WHERE id = $3 AND status IN ('active', 'cooling')
		`, store.CandidatePromoted, c.ID, promote.CandidateID)
		if err != nil {
			return fmt.Errorf("promote candidate: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("candidate %s not promotable: %w", promote.CandidateID, store.ErrNotFound)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanCommit(row pgx.Row) (*store.Commit, error) {
	var c store.Commit
	err := row.Scan(&c.ID, &c.TreeID, &c.ParentID, &c.Branch, &c.Author, &c.Message,
		&c.AgentID, &c.ParentAgent, &c.Depth, &c.RunID, &c.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCommits(rows pgx.Rows) ([]store.Commit, error) {
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
	c, err := scanCommit(db.Pool.QueryRow(ctx,
		"SELECT "+commitColumns+" FROM commits WHERE commit_id = $1", commitID))
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
	rows, err := db.Pool.Query(ctx, `
		SELECT tree_id, position, name, fingerprint, mode
		FROM tree_entries WHERE tree_id = $1 ORDER BY position
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
	rows, err := db.Pool.Query(ctx,
		"SELECT "+commitColumns+" FROM commits ORDER BY created_at DESC, commit_id LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("recent commits: %w", err)
	}
	defer rows.Close()
	return scanCommits(rows)
}
