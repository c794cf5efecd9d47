package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/mnemon-ai/mnemon/internal/metrics"
	"github.com/mnemon-ai/mnemon/internal/store"
)

// replaySalienceBump is added to a candidate's salience each time a replay
// fires, capped at 1.0 in the store.
const replaySalienceBump = 0.05

// StageInput is a request to stage a candidate memory.
type StageInput struct {
	Branch           string    `json:"branch"`
	Payload          []byte    `json:"payload"`
	ContentType      string    `json:"content_type"`
	ContentEmbedding []float32 `json:"content_embedding,omitempty"`
	ContextEmbedding []float32 `json:"context_embedding,omitempty"`
	Salience         float64   `json:"salience"`
	TTLHours         int       `json:"ttl_hours,omitempty"`
}

// Stage adds a candidate to the working-memory buffer. The buffer is
// bounded: once staging.max_active candidates are active, staging returns
// ErrCapacityExceeded until consolidation or expiry drains it.
func (e *Engine) Stage(ctx context.Context, in StageInput) (*store.CandidateMemory, error) {
	if in.Branch == "" {
		return nil, store.Invalid("branch", "must not be empty")
	}
	if len(in.Payload) == 0 {
		return nil, store.Invalid("payload", "must not be empty")
	}
	if in.Salience < 0 || in.Salience > 1 {
		return nil, store.Invalid("salience", "must be in [0,1]")
	}

	active, err := e.Store.CountCandidates(ctx, store.CandidateActive)
	if err != nil {
		return nil, err
	}
	if active >= e.cfg.Staging.MaxActive {
		return nil, fmt.Errorf("%d active candidates: %w", active, store.ErrCapacityExceeded)
	}

	if err := e.Store.EnsureBranch(ctx, in.Branch); err != nil {
		return nil, err
	}

	embedding := in.ContentEmbedding
	if embedding == nil {
		embedding = e.embed(ctx, string(in.Payload))
	}

	ttl := in.TTLHours
	if ttl <= 0 {
		ttl = e.cfg.Staging.TTLHours
	}

	now := nowMillis()
	c := &store.CandidateMemory{
		ID:               newID(),
		Branch:           in.Branch,
		Payload:          in.Payload,
		ContentType:      in.ContentType,
		ContentEmbedding: embedding,
		ContextEmbedding: in.ContextEmbedding,
		Salience:         in.Salience,
		Status:           store.CandidateActive,
		CreatedAt:        now,
		ExpiresAt:        now + int64(ttl)*3600*1000,
	}
	if err := e.Store.InsertCandidate(ctx, c); err != nil {
		return nil, err
	}

	metrics.CandidatesStaged.Inc()
	metrics.ActiveCandidates.Set(float64(active + 1))
	e.log.Debug().Str("candidate", c.ID).Str("branch", c.Branch).Float64("salience", c.Salience).Msg("candidate staged")
	return c, nil
}

// ReplayMatch is one candidate whose stored context resonated with the
// incoming session context.
type ReplayMatch struct {
	CandidateID string  `json:"candidate_id"`
	Branch      string  `json:"branch"`
	Similarity  float64 `json:"similarity"`
	Salience    float64 `json:"salience"`
}

// ReplayCheck compares a session context against every active and cooling
// candidate. Similarity at or above the fire threshold counts as a replay:
// the event is logged fired, the replay count bumps, and salience rises.
// Similarity between the log and fire thresholds records a near-miss for
// threshold tuning. Fired matches are returned, best first.
func (e *Engine) ReplayCheck(ctx context.Context, contextEmbedding []float32, sessionID string) ([]ReplayMatch, error) {
	if len(contextEmbedding) == 0 {
		return nil, store.Invalid("context_embedding", "must not be empty")
	}

	candidates, err := e.stagedCandidates(ctx)
	if err != nil {
		return nil, err
	}

	fire := e.cfg.Staging.ReplayFire
	logAt := e.cfg.Staging.ReplayLog
	now := nowMillis()

	var matches []ReplayMatch
	for _, c := range candidates {
		ref := c.ContextEmbedding
		if len(ref) == 0 {
			ref = c.ContentEmbedding
		}
		if len(ref) == 0 {
			continue
		}

		sim := CosineSimilarity(contextEmbedding, ref)
		if sim < logAt {
			continue
		}

		fired := sim >= fire
		ev := &store.ReplayEvent{
			CandidateID: c.ID,
			SessionID:   sessionID,
			Similarity:  sim,
			Threshold:   fire,
			Fired:       fired,
			CreatedAt:   now,
		}
		if err := e.Store.RecordReplay(ctx, ev); err != nil {
			return nil, err
		}
		if !fired {
			continue
		}
		if err := e.Store.BumpReplay(ctx, c.ID, replaySalienceBump); err != nil {
			return nil, err
		}
		matches = append(matches, ReplayMatch{
			CandidateID: c.ID,
			Branch:      c.Branch,
			Similarity:  sim,
			Salience:    c.Salience + replaySalienceBump,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].CandidateID < matches[j].CandidateID
	})
	return matches, nil
}

// stagedCandidates returns every active and cooling candidate.
func (e *Engine) stagedCandidates(ctx context.Context) ([]store.CandidateMemory, error) {
	active, err := e.Store.ListCandidates(ctx, store.CandidateActive, "", 0)
	if err != nil {
		return nil, err
	}
	cooling, err := e.Store.ListCandidates(ctx, store.CandidateCooling, "", 0)
	if err != nil {
		return nil, err
	}
	return append(active, cooling...), nil
}

// Sweep expires unpromoted candidates past their TTL and cools long-idle
// active ones.
func (e *Engine) Sweep(ctx context.Context) (expired, cooled int, err error) {
	now := nowMillis()

	expired, err = e.Store.ExpireCandidates(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("expire candidates: %w", err)
	}

	idleCutoff := now - int64(e.cfg.Staging.CoolingAfterHours)*3600*1000
	cooled, err = e.Store.CoolCandidates(ctx, idleCutoff)
	if err != nil {
		return expired, 0, fmt.Errorf("cool candidates: %w", err)
	}

	if expired > 0 {
		metrics.CandidatesExpired.Add(float64(expired))
	}
	e.refreshActiveGauge(ctx)

	if expired > 0 || cooled > 0 {
		e.log.Info().Int("expired", expired).Int("cooled", cooled).Msg("staging buffer swept")
	}
	return expired, cooled, nil
}

func (e *Engine) refreshActiveGauge(ctx context.Context) {
	if n, err := e.Store.CountCandidates(ctx, store.CandidateActive); err == nil {
		metrics.ActiveCandidates.Set(float64(n))
	}
}
