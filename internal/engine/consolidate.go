package engine

import (
	"context"
	"strings"
	"time"

	"github.com/mnemon-ai/mnemon/internal/metrics"
	"github.com/mnemon-ai/mnemon/internal/store"
)

// Consolidate runs one consolidation cycle: expire candidates past their
// TTL, cool long-idle actives, then score the survivors and promote those
// above the threshold into their branch's commit graph. Per-candidate
// failures are recorded on the run, not raised, and candidates are processed
// independently so cancellation mid-cycle leaves no half-promoted state.
// Re-running after a crash promotes pending candidates exactly once.
func (e *Engine) Consolidate(ctx context.Context) (*store.ConsolidationRun, error) {
	start := time.Now()
	now := nowMillis()
	run := &store.ConsolidationRun{
		RunID:     newID(),
		StartedAt: now,
		Threshold: e.cfg.Consolidation.Threshold,
	}
	var firstErr error

	expired, err := e.Store.ExpireCandidates(ctx, now)
	if err != nil {
		return nil, err
	}
	run.Expired = expired
	if expired > 0 {
		metrics.CandidatesExpired.Add(float64(expired))
	}

	cooled, err := e.Store.CoolCandidates(ctx, now-int64(e.cfg.Staging.CoolingAfterHours)*3600*1000)
	if err != nil {
		return nil, err
	}
	run.Cooled = cooled

	candidates, err := e.stagedCandidates(ctx)
	if err != nil {
		return nil, err
	}
	run.Evaluated = len(candidates)

	for i := range candidates {
		if ctx.Err() != nil {
			firstErr = ctx.Err()
			break
		}
		c := &candidates[i]
		score := e.consolidationScore(c, now)
		if score < run.Threshold {
			continue
		}

		commit, err := e.promote(ctx, c)
		if err != nil {
			e.log.Warn().Err(err).Str("candidate", c.ID).Msg("promotion failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		run.Promoted++
		run.CommitIDs = append(run.CommitIDs, commit.ID)
		metrics.CandidatesPromoted.Inc()
		e.log.Info().Str("candidate", c.ID).Str("commit", commit.ID).
			Float64("score", score).Msg("candidate promoted")
	}

	if firstErr != nil {
		run.Error = firstErr.Error()
	}
	run.DurationMS = time.Since(start).Milliseconds()

	if err := e.Store.RecordRun(ctx, run); err != nil {
		return nil, err
	}
	e.refreshActiveGauge(ctx)

	e.log.Info().Str("run", run.RunID).Int("evaluated", run.Evaluated).
		Int("promoted", run.Promoted).Int("expired", run.Expired).
		Int("cooled", run.Cooled).Msg("consolidation cycle complete")
	return run, nil
}

// consolidationScore mixes salience, replay evidence, and recency. Recency
// uses the retrieval curve on candidate age with a fixed stability, so fresh
// candidates score high and stale unreplayed ones sink.
func (e *Engine) consolidationScore(c *store.CandidateMemory, now int64) float64 {
	cc := e.cfg.Consolidation

	ageHours := float64(now-c.CreatedAt) / float64(3600*1000)
	recency := RetrievalStrength(ageHours, cc.CandidateStabilityHours)

	replay := float64(c.ReplayCount) / cc.ReplayNorm
	if replay > 1 {
		replay = 1
	}

	return cc.WeightSalience*c.Salience + cc.WeightReplay*replay + cc.WeightRecency*recency
}

// promote writes the candidate's payload as a content unit and commits it on
// the candidate's branch. The promoted status flip rides the commit
// transaction, which is what makes promotion atomic with the history write.
func (e *Engine) promote(ctx context.Context, c *store.CandidateMemory) (*store.Commit, error) {
	// The unit may already exist from a run that crashed after PutBlob;
	// content writes are idempotent.
	unit := &store.ContentUnit{
		Payload:     c.Payload,
		ContentType: c.ContentType,
		Embedding:   c.ContentEmbedding,
	}
	if err := e.Store.PutBlob(ctx, unit); err != nil {
		return nil, err
	}

	if err := e.Store.EnsureBranch(ctx, c.Branch); err != nil {
		return nil, err
	}

	in := CommitInput{
		Branch:  c.Branch,
		Author:  "consolidation",
		Message: "consolidate: " + excerptLine(c.Payload, 72),
		Entries: []CommitEntry{{
			Name:        "candidate-" + shortID(c.ID),
			ContentType: c.ContentType,
			Fingerprint: unit.Fingerprint,
		}},
	}
	commit, err := e.createWithRetry(ctx, in, []string{unit.Fingerprint}, &store.PromoteMark{CandidateID: c.ID})
	if err != nil {
		return nil, err
	}

	if len(c.ContentEmbedding) > 0 {
		if err := e.updateCentroid(ctx, c.Branch, c.ContentEmbedding); err != nil {
			e.log.Warn().Err(err).Str("branch", c.Branch).Msg("centroid update failed")
		}
	}
	metrics.CommitCount.WithLabelValues(c.Branch).Inc()
	return commit, nil
}

// excerptLine returns the first line of a payload, truncated to max bytes.
func excerptLine(payload []byte, max int) string {
	s := string(payload)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if len(s) > max {
		s = s[:max]
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
