package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mnemon-ai/mnemon/internal/store"
)

const candidateColumns = `id, branch, payload, content_type, content_vec, context_vec,
	salience, replay_count, status, created_at, expires_at, promoted_commit`

// InsertCandidate stages a new candidate memory.
func (db *DB) InsertCandidate(ctx context.Context, c *store.CandidateMemory) error {
	if c.Status == "" {
		c.Status = store.CandidateActive
	}
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().UnixMilli()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO candidates (id, branch, payload, content_type, content_vec, context_vec,
			salience, replay_count, status, created_at, expires_at, promoted_commit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '')
	`, c.ID, c.Branch, c.Payload, c.ContentType, encodeVec(c.ContentEmbedding), encodeVec(c.ContextEmbedding),
		c.Salience, c.ReplayCount, c.Status, c.CreatedAt, c.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert candidate: %w", err)
	}
	return nil
}

func scanCandidate(scan func(dest ...any) error) (*store.CandidateMemory, error) {
	var c store.CandidateMemory
	var contentVec, contextVec []byte
	err := scan(&c.ID, &c.Branch, &c.Payload, &c.ContentType, &contentVec, &contextVec,
		&c.Salience, &c.ReplayCount, &c.Status, &c.CreatedAt, &c.ExpiresAt, &c.PromotedCommitID)
	if err != nil {
		return nil, err
	}
	c.ContentEmbedding = decodeVec(contentVec)
	c.ContextEmbedding = decodeVec(contextVec)
	return &c, nil
}

// GetCandidate returns a candidate by id.
func (db *DB) GetCandidate(ctx context.Context, id string) (*store.CandidateMemory, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+candidateColumns+" FROM candidates WHERE id = ?", id)
	c, err := scanCandidate(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("candidate %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	return c, nil
}

// ListCandidates returns candidates filtered by status and branch; empty
// filters match everything. Oldest first, so consolidation drains fairly.
func (db *DB) ListCandidates(ctx context.Context, status, branch string, limit int) ([]store.CandidateMemory, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+candidateColumns+` FROM candidates
		WHERE (? = '' OR status = ?) AND (? = '' OR branch = ?)
		ORDER BY created_at, id LIMIT ?
	`, status, status, branch, branch, limit)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var out []store.CandidateMemory
	for rows.Next() {
		c, err := scanCandidate(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CountCandidates counts candidates in a status; empty counts all.
func (db *DB) CountCandidates(ctx context.Context, status string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM candidates WHERE (? = '' OR status = ?)", status, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count candidates: %w", err)
	}
	return n, nil
}

// RecordReplay logs one replay comparison, fired or near-miss.
func (db *DB) RecordReplay(ctx context.Context, ev *store.ReplayEvent) error {
	if ev.CreatedAt == 0 {
		ev.CreatedAt = time.Now().UnixMilli()
	}
	fired := 0
	if ev.Fired {
		fired = 1
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO replay_events (candidate_id, session_id, similarity, threshold, fired, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.CandidateID, ev.SessionID, ev.Similarity, ev.Threshold, fired, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("record replay: %w", err)
	}
	ev.ID, _ = res.LastInsertId()
	return nil
}

// BumpReplay folds a fired replay into the candidate: one more replay,
// salience nudged up to at most 1.0. Single statement, safe under
// concurrent replay checks.
func (db *DB) BumpReplay(ctx context.Context, id string, salienceBump float64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE candidates
		SET replay_count = replay_count + 1, salience = MIN(1.0, salience + ?)
		WHERE id = ? AND status IN ('active', 'cooling')
	`, salienceBump, id)
	if err != nil {
		return fmt.Errorf("bump replay: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("candidate %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// SetCandidateStatus transitions a candidate between lifecycle states,
// guarded by the expected current state.
func (db *DB) SetCandidateStatus(ctx context.Context, id, from, to string) error {
	res, err := db.ExecContext(ctx,
		"UPDATE candidates SET status = ? WHERE id = ? AND status = ?", to, id, from)
	if err != nil {
		return fmt.Errorf("set candidate status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("candidate %s in %s: %w", id, from, store.ErrNotFound)
	}
	return nil
}

// ExpireCandidates flips unpromoted candidates past their TTL to expired
// and returns how many.
func (db *DB) ExpireCandidates(ctx context.Context, cutoff int64) (int, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE candidates SET status = 'expired'
		WHERE status IN ('active', 'cooling') AND expires_at <= ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire candidates: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CoolCandidates moves long-idle active candidates to cooling.
func (db *DB) CoolCandidates(ctx context.Context, idleCutoff int64) (int, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE candidates SET status = 'cooling'
		WHERE status = 'active' AND created_at <= ?
	`, idleCutoff)
	if err != nil {
		return 0, fmt.Errorf("cool candidates: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
