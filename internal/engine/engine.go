// Package engine orchestrates the mnemon memory graph over a store.Store:
// the commit pipeline with branch routing, the candidate staging buffer and
// its consolidation cycle, trail reinforcement with dual-strength decay, and
// hybrid lexical+vector retrieval.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/mnemon-ai/mnemon/internal/config"
	"github.com/mnemon-ai/mnemon/internal/store"
)

// Engine wires the memory mechanics together. All state lives in the store;
// the engine holds only configuration, the embedder, and the maintenance
// scheduler.
type Engine struct {
	Store    store.Store
	Embedder Embedder

	cfg     config.Config
	log     zerolog.Logger
	cron    *cron.Cron
	maintMu sync.Mutex
}

// New creates an Engine over the given store.
func New(st store.Store, cfg config.Config, logger zerolog.Logger) *Engine {
	return &Engine{
		Store:    st,
		Embedder: NewEmbedder(cfg.Embedding),
		cfg:      cfg,
		log:      logger.With().Str("component", "engine").Logger(),
	}
}

// SetEmbedder replaces the embedding provider.
func (e *Engine) SetEmbedder(emb Embedder) {
	e.Embedder = emb
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// newID returns a uuid with dashes stripped, used for candidate, session,
// and run identifiers.
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// embed produces an embedding for text, or nil when no provider is wired or
// the provider fails. Callers treat a missing embedding as degraded, never
// fatal.
func (e *Engine) embed(ctx context.Context, text string) []float32 {
	if e.Embedder == nil || text == "" {
		return nil
	}
	vec, err := e.Embedder.Embed(ctx, text)
	if err != nil {
		e.log.Warn().Err(err).Msg("embed failed, continuing without vector")
		return nil
	}
	return vec
}

// Head returns the newest commit on a branch, ErrEmptyBranch when the branch
// exists but has no commits yet.
func (e *Engine) Head(ctx context.Context, branch string) (*store.Commit, error) {
	b, err := e.Store.GetBranch(ctx, branch)
	if err != nil {
		return nil, err
	}
	if b.Head == "" {
		return nil, fmt.Errorf("branch %s: %w", branch, store.ErrEmptyBranch)
	}
	return e.Store.GetCommit(ctx, b.Head)
}

// Checkout ensures the branch exists, creating an empty one if needed. The
// current branch is client state; the engine only guarantees the row.
func (e *Engine) Checkout(ctx context.Context, branch string) error {
	if branch == "" {
		return store.Invalid("branch", "must not be empty")
	}
	return e.Store.EnsureBranch(ctx, branch)
}

// History returns the commit log for a branch, newest first.
func (e *Engine) History(ctx context.Context, branch string, limit int) ([]store.Commit, error) {
	return e.Store.Log(ctx, branch, limit)
}

// BranchInfo is a branch with its centroid metadata.
type BranchInfo struct {
	store.Branch
	CommitCount int64   `json:"commit_count"`
	Health      float64 `json:"health"`
	HasCentroid bool    `json:"has_centroid"`
}

// Branches lists all branches joined with their fingerprint metadata.
func (e *Engine) Branches(ctx context.Context) ([]BranchInfo, error) {
	branches, err := e.Store.ListBranches(ctx)
	if err != nil {
		return nil, err
	}
	fps, err := e.Store.ListBranchFingerprints(ctx)
	if err != nil {
		return nil, err
	}
	byBranch := make(map[string]store.BranchFingerprint, len(fps))
	for _, fp := range fps {
		byBranch[fp.Branch] = fp
	}

	infos := make([]BranchInfo, 0, len(branches))
	for _, b := range branches {
		info := BranchInfo{Branch: b}
		if fp, ok := byBranch[b.Name]; ok {
			info.CommitCount = fp.CommitCount
			info.Health = fp.Health
			info.HasCentroid = len(fp.Centroid) > 0
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// SetQuarantine flips the quarantine flag on a content unit. Inbound surface
// for the external review collaborator; the engine itself only ever reads
// the flag.
func (e *Engine) SetQuarantine(ctx context.Context, fingerprint string, quarantined bool) error {
	if err := e.Store.SetQuarantine(ctx, fingerprint, quarantined); err != nil {
		return err
	}
	e.log.Info().Str("fingerprint", fingerprint).Bool("quarantined", quarantined).Msg("quarantine flag set")
	return nil
}

// Tags lists commit tags, optionally scoped to a branch.
func (e *Engine) Tags(ctx context.Context, branch string) ([]store.CommitTag, error) {
	return e.Store.ListTags(ctx, branch)
}

// Candidates lists staged candidates filtered by status and branch.
func (e *Engine) Candidates(ctx context.Context, status, branch string, limit int) ([]store.CandidateMemory, error) {
	return e.Store.ListCandidates(ctx, status, branch, limit)
}

// ConsolidationLog returns recent consolidation runs, newest first.
func (e *Engine) ConsolidationLog(ctx context.Context, limit int) ([]store.ConsolidationRun, error) {
	return e.Store.ListRuns(ctx, limit)
}

// Stats reports store-level counts.
func (e *Engine) Stats(ctx context.Context) (*store.Stats, error) {
	return e.Store.Stats(ctx)
}
