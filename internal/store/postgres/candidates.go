package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mnemon-ai/mnemon/internal/store"
)

const candidateColumns = `id, branch, payload, content_type,
	COALESCE(content_vec::text, ''), COALESCE(context_vec::text, ''),
	salience, replay_count, status, created_at, expires_at, promoted_commit`

// InsertCandidate stages a new candidate memory.
func (db *DB) InsertCandidate(ctx context.Context, c *store.CandidateMemory) error {
	if c.Status == "" {
		c.Status = store.CandidateActive
	}
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().UnixMilli()
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO candidates (id, branch, payload, content_type, content_vec, context_vec,
			salience, replay_count, status, created_at, expires_at, promoted_commit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, '')
	`, c.ID, c.Branch, c.Payload, c.ContentType, vecParam(c.ContentEmbedding), vecParam(c.ContextEmbedding),
		c.Salience, c.ReplayCount, c.Status, c.CreatedAt, c.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert candidate: %w", err)
	}
	return nil
}

func scanCandidate(scan func(dest ...any) error) (*store.CandidateMemory, error) {
	var c store.CandidateMemory
	var contentVec, contextVec string
	err := scan(&c.ID, &c.Branch, &c.Payload, &c.ContentType, &contentVec, &contextVec,
		&c.Salience, &c.ReplayCount, &c.Status, &c.CreatedAt, &c.ExpiresAt, &c.PromotedCommitID)
	if err != nil {
		return nil, err
	}
	c.ContentEmbedding = vecSlice(contentVec)
	c.ContextEmbedding = vecSlice(contextVec)
	return &c, nil
}

// GetCandidate returns a candidate by id.
func (db *DB) GetCandidate(ctx context.Context, id string) (*store.CandidateMemory, error) {
	row := db.Pool.QueryRow(ctx,
		"SELECT "+candidateColumns+" FROM candidates WHERE id = $1", id)
	c, err := scanCandidate(row.Scan)
	if err == pgx.ErrNoRows {
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
	rows, err := db.Pool.Query(ctx, `
		SELECT `+candidateColumns+` FROM candidates
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR branch = $2)
		ORDER BY created_at, id LIMIT $3
	`, status, branch, limit)
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
	err := db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM candidates WHERE ($1 = '' OR status = $1)", status).Scan(&n)
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
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO replay_events (candidate_id, session_id, similarity, threshold, fired, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, ev.CandidateID, ev.SessionID, ev.Similarity, ev.Threshold, ev.Fired, ev.CreatedAt).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("record replay: %w", err)
	}
	return nil
}

// BumpReplay folds a fired replay into the candidate: one more replay,
// salience nudged up to at most 1.0.
func (db *DB) BumpReplay(ctx context.Context, id string, salienceBump float64) error {
	ct, err := db.Pool.Exec(ctx, `
		UPDATE candidates
		SET replay_count = replay_count + 1, salience = LEAST(1.0, salience + $1)
		WHERE id = $2 AND status IN ('active', 'cooling')
	`, salienceBump, id)
	if err != nil {
		return fmt.Errorf("bump replay: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("candidate %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// SetCandidateStatus transitions a candidate between lifecycle states,
// guarded by the expected current state.
func (db *DB) SetCandidateStatus(ctx context.Context, id, from, to string) error {
	ct, err := db.Pool.Exec(ctx,
		"UPDATE candidates SET status = $1 WHERE id = $2 AND status = $3", to, id, from)
	if err != nil {
		return fmt.Errorf("set candidate status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("candidate %s in %s: %w", id, from, store.ErrNotFound)
	}
	return nil
}

// ExpireCandidates flips unpromoted candidates past their TTL to expired
// and returns how many.
func (db *DB) ExpireCandidates(ctx context.Context, cutoff int64) (int, error) {
	ct, err := db.Pool.Exec(ctx, `
		UPDATE candidates SET status = 'expired'
		WHERE status IN ('active', 'cooling') AND expires_at <= $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire candidates: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

// CoolCandidates moves long-idle active candidates to cooling.
func (db *DB) CoolCandidates(ctx context.Context, idleCutoff int64) (int, error) {
	ct, err := db.Pool.Exec(ctx, `
		UPDATE candidates SET status = 'cooling'
		WHERE status = 'active' AND created_at <= $1
	`, idleCutoff)
	if err != nil {
		return 0, fmt.Errorf("cool candidates: %w", err)
	}
	return int(ct.RowsAffected()), nil
}
