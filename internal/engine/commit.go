package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/mnemon-ai/mnemon/internal/metrics"
	"github.com/mnemon-ai/mnemon/internal/store"
)

// commitRetries bounds how often a commit is retried after losing the branch
// head race before ErrBranchConflict surfaces to the caller.
const commitRetries = 5

// CommitEntry is one named payload in a commit request. Payload carries new
// content; Fingerprint references an already stored unit instead.
type CommitEntry struct {
	Name        string    `json:"name"`
	Payload     []byte    `json:"payload"`
	ContentType string    `json:"content_type"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
}

// Lineage carries optional multi-agent attribution for a commit.
type Lineage struct {
	AgentID     string `json:"agent_id,omitempty"`
	ParentAgent string `json:"parent_agent,omitempty"`
	Depth       int    `json:"depth,omitempty"`
	RunID       string `json:"run_id,omitempty"`
}

// CommitInput is a request to write one commit.
type CommitInput struct {
	Branch  string        `json:"branch"`
	Author  string        `json:"author"`
	Message string        `json:"message"`
	Tags    []string      `json:"tags,omitempty"`
	Entries []CommitEntry `json:"entries"`
	Lineage Lineage       `json:"lineage"`
}

// CommitResult is a written commit plus the non-blocking routing check that
// ran alongside it.
type CommitResult struct {
	Commit  *store.Commit  `json:"commit"`
	Routing *RouteDecision `json:"routing,omitempty"`
}

// Commit stores the entries as content units, snapshots them, and chains a
// new commit onto the branch head. Losing the head race retries with a fresh
// parent up to commitRetries before surfacing ErrBranchConflict. The routing
// check warns but never blocks.
func (e *Engine) Commit(ctx context.Context, in CommitInput) (*CommitResult, error) {
	if in.Branch == "" {
		return nil, store.Invalid("branch", "must not be empty")
	}
	if in.Message == "" {
		return nil, store.Invalid("message", "must not be empty")
	}
	if len(in.Entries) == 0 {
		return nil, store.Invalid("entries", "at least one entry required")
	}

	fingerprints, centroid, err := e.putEntries(ctx, in.Entries)
	if err != nil {
		return nil, err
	}

	if err := e.Store.EnsureBranch(ctx, in.Branch); err != nil {
		return nil, err
	}

	// Non-blocking: a misrouted commit still lands, the caller just hears
	// about it.
	var routing *RouteDecision
	if centroid != nil {
		routing, err = e.ValidateRouting(ctx, "", centroid, in.Branch)
		if err != nil {
			e.log.Warn().Err(err).Msg("routing check failed")
			routing = nil
		}
	}

	c, err := e.createWithRetry(ctx, in, fingerprints, nil)
	if err != nil {
		return nil, err
	}

	for _, tag := range in.Tags {
		if tag == "" {
			continue
		}
		if err := e.Store.TagCommit(ctx, tag, c.ID, in.Branch); err != nil {
			e.log.Warn().Err(err).Str("tag", tag).Msg("tag commit failed")
		}
	}

	if centroid != nil {
		if err := e.updateCentroid(ctx, in.Branch, centroid); err != nil {
			e.log.Warn().Err(err).Str("branch", in.Branch).Msg("centroid update failed")
		}
	}

	metrics.CommitCount.WithLabelValues(in.Branch).Inc()
	e.log.Info().Str("branch", in.Branch).Str("commit", c.ID).Int("entries", len(in.Entries)).Msg("commit created")

	return &CommitResult{Commit: c, Routing: routing}, nil
}

// putEntries writes every entry's content unit and returns the resolved
// fingerprints plus the mean embedding across entries that have one.
func (e *Engine) putEntries(ctx context.Context, entries []CommitEntry) ([]string, []float32, error) {
	fingerprints := make([]string, len(entries))
	var vecs [][]float32

	for i, entry := range entries {
		if entry.Fingerprint != "" {
			unit, err := e.Store.GetBlobAny(ctx, entry.Fingerprint)
			if err != nil {
				return nil, nil, fmt.Errorf("entry %d: %w", i, err)
			}
			fingerprints[i] = unit.Fingerprint
			if len(unit.Embedding) > 0 {
				vecs = append(vecs, unit.Embedding)
			}
			continue
		}
		if len(entry.Payload) == 0 {
			return nil, nil, store.Invalid("entries", fmt.Sprintf("entry %d needs a payload or a fingerprint", i))
		}

		embedding := entry.Embedding
		if embedding == nil {
			embedding = e.embed(ctx, string(entry.Payload))
		}
		unit := &store.ContentUnit{
			Payload:     entry.Payload,
			ContentType: entry.ContentType,
			Embedding:   embedding,
		}
		if err := e.Store.PutBlob(ctx, unit); err != nil {
			return nil, nil, fmt.Errorf("entry %d: %w", i, err)
		}
		fingerprints[i] = unit.Fingerprint
		if len(embedding) > 0 {
			vecs = append(vecs, embedding)
		}
	}

	return fingerprints, meanVector(vecs), nil
}

// createWithRetry runs the CAS commit loop: read head, derive ids, attempt
// the transactional write, and start over on a head conflict.
func (e *Engine) createWithRetry(ctx context.Context, in CommitInput, fingerprints []string, promote *store.PromoteMark) (*store.Commit, error) {
	var lastErr error
	for attempt := 0; attempt < commitRetries; attempt++ {
		b, err := e.Store.GetBranch(ctx, in.Branch)
		if err != nil {
			return nil, err
		}

		now := nowMillis()
		entries := make([]store.TreeEntry, len(in.Entries))
		for i, entry := range in.Entries {
			mode := entry.ContentType
			if mode == "" {
				mode = "memory"
			}
			entries[i] = store.TreeEntry{
				Position:    i,
				Name:        entry.Name,
				Fingerprint: fingerprints[i],
				Mode:        mode,
			}
		}

		treeID := store.TreeID(in.Branch, entries, now)
		c := &store.Commit{
			ID:          store.CommitID(treeID, b.Head, in.Message, in.Author, now),
			TreeID:      treeID,
			ParentID:    b.Head,
			Branch:      in.Branch,
			Author:      in.Author,
			Message:     in.Message,
			CreatedAt:   now,
			AgentID:     in.Lineage.AgentID,
			ParentAgent: in.Lineage.ParentAgent,
			Depth:       in.Lineage.Depth,
			RunID:       in.Lineage.RunID,
		}

		err = e.Store.CreateCommit(ctx, c, entries, promote)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, store.ErrBranchConflict) {
			return nil, err
		}

		metrics.CommitConflicts.Inc()
		e.log.Debug().Str("branch", in.Branch).Int("attempt", attempt+1).Msg("head moved, retrying commit")
		lastErr = err
	}
	return nil, fmt.Errorf("commit after %d attempts: %w", commitRetries, lastErr)
}

// meanVector averages same-length vectors; mismatched lengths are skipped.
func meanVector(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	dims := len(vecs[0])
	sum := make([]float64, dims)
	count := 0
	for _, v := range vecs {
		if len(v) != dims {
			continue
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		count++
	}
	if count == 0 {
		return nil
	}
	out := make([]float32, dims)
	for i, s := range sum {
		out[i] = float32(s / float64(count))
	}
	return out
}
