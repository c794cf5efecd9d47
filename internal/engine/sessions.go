package engine

import (
	"context"

	"github.com/mnemon-ai/mnemon/internal/store"
)

// CheckpointInput captures an agent session's state for later resume.
type CheckpointInput struct {
	ID               string    `json:"id,omitempty"`
	Agent            string    `json:"agent"`
	Branch           string    `json:"branch"`
	Checkpoint       string    `json:"checkpoint"`
	ContextEmbedding []float32 `json:"context_embedding,omitempty"`
}

// Checkpoint saves or updates a session checkpoint. The checkpoint text is
// embedded when no context embedding is supplied; that embedding is what
// replay checks compare against on resume.
func (e *Engine) Checkpoint(ctx context.Context, in CheckpointInput) (*store.Session, error) {
	if in.Checkpoint == "" {
		return nil, store.Invalid("checkpoint", "must not be empty")
	}

	id := in.ID
	if id == "" {
		id = newID()
	}
	embedding := in.ContextEmbedding
	if embedding == nil {
		embedding = e.embed(ctx, in.Checkpoint)
	}

	s := &store.Session{
		ID:               id,
		Agent:            in.Agent,
		Branch:           in.Branch,
		Checkpoint:       in.Checkpoint,
		ContextEmbedding: embedding,
	}
	if err := e.Store.SaveSession(ctx, s); err != nil {
		return nil, err
	}
	e.log.Debug().Str("session", id).Str("branch", in.Branch).Msg("session checkpointed")
	return s, nil
}

// ResumeResult hands back the checkpoint plus any candidates whose context
// resonates with it.
type ResumeResult struct {
	Session *store.Session `json:"session"`
	Replays []ReplayMatch  `json:"replays,omitempty"`
}

// Resume marks a session resumed and runs a replay check against its stored
// context, surfacing staged memories from where the agent left off.
func (e *Engine) Resume(ctx context.Context, id string) (*ResumeResult, error) {
	s, err := e.Store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	now := nowMillis()
	if err := e.Store.MarkResumed(ctx, id, now); err != nil {
		return nil, err
	}
	s.ResumedAt = now

	res := &ResumeResult{Session: s}
	if len(s.ContextEmbedding) > 0 {
		matches, err := e.ReplayCheck(ctx, s.ContextEmbedding, id)
		if err != nil {
			e.log.Warn().Err(err).Str("session", id).Msg("replay check on resume failed")
		} else {
			res.Replays = matches
		}
	}
	return res, nil
}
