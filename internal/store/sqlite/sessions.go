package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mnemon-ai/mnemon/internal/store"
)

// SaveSession creates or updates a session checkpoint. The context embedding
// and checkpoint text are replaced wholesale; started_at survives updates.
func (db *DB) SaveSession(ctx context.Context, s *store.Session) error {
	now := time.Now().UnixMilli()
	if s.StartedAt == 0 {
		s.StartedAt = now
	}
	s.UpdatedAt = now
	_, err := db.ExecContext(ctx, `
		INSERT INTO agent_sessions (id, agent, branch, checkpoint, context_vec, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			agent = ?, branch = ?, checkpoint = ?, context_vec = ?, updated_at = ?
	`, s.ID, s.Agent, s.Branch, s.Checkpoint, encodeVec(s.ContextEmbedding), s.StartedAt, now,
		s.Agent, s.Branch, s.Checkpoint, encodeVec(s.ContextEmbedding), now)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// GetSession returns a session by id.
func (db *DB) GetSession(ctx context.Context, id string) (*store.Session, error) {
	var s store.Session
	var vec []byte
	var resumed sql.NullInt64
	err := db.QueryRowContext(ctx, `
		SELECT id, agent, branch, checkpoint, context_vec, started_at, updated_at, resumed_at
		FROM agent_sessions WHERE id = ?
	`, id).Scan(&s.ID, &s.Agent, &s.Branch, &s.Checkpoint, &vec, &s.StartedAt, &s.UpdatedAt, &resumed)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.ContextEmbedding = decodeVec(vec)
	if resumed.Valid {
		s.ResumedAt = resumed.Int64
	}
	return &s, nil
}

// MarkResumed stamps the session's resume time.
func (db *DB) MarkResumed(ctx context.Context, id string, now int64) error {
	res, err := db.ExecContext(ctx,
		"UPDATE agent_sessions SET resumed_at = ? WHERE id = ?", now, id)
	if err != nil {
		return fmt.Errorf("mark resumed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	return nil
}
