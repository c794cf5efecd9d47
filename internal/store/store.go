// Package store defines the domain model and storage contract for the
// mnemon memory graph: content-addressed blobs, a per-branch linear commit
// history, branch centroids, the candidate staging buffer, trail edges, and
// typed links. Backends live in the sqlite and postgres subpackages; the
// engine and all handlers talk only to the Store interface.
package store

import "context"

// Store is the full storage contract. Both backends implement every method;
// tests run against the in-memory sqlite backend.
type Store interface {
	// Content units. PutBlob is idempotent on fingerprint. GetBlob skips
	// quarantined units; GetBlobAny does not.
	PutBlob(ctx context.Context, b *ContentUnit) error
	GetBlob(ctx context.Context, fingerprint string) (*ContentUnit, error)
	GetBlobAny(ctx context.Context, fingerprint string) (*ContentUnit, error)
	SetQuarantine(ctx context.Context, fingerprint string, quarantined bool) error

	// Commit graph. CreateCommit inserts the snapshot, its entries, and the
	// commit row, then advances the branch head with a compare-and-swap on
	// c.ParentID, all in one transaction. Zero rows swapped rolls everything
	// back and returns ErrBranchConflict. A non-nil promote mark flips the
	// named candidate to promoted in the same transaction.
	CreateCommit(ctx context.Context, c *Commit, entries []TreeEntry, promote *PromoteMark) error
	GetCommit(ctx context.Context, commitID string) (*Commit, error)
	TreeEntries(ctx context.Context, treeID string) ([]TreeEntry, error)
	Log(ctx context.Context, branch string, limit int) ([]Commit, error)
	RecentCommits(ctx context.Context, limit int) ([]Commit, error)

	// Branches.
	EnsureBranch(ctx context.Context, name string) error
	GetBranch(ctx context.Context, name string) (*Branch, error)
	ListBranches(ctx context.Context) ([]Branch, error)

	// Branch centroids. SaveBranchFingerprint is guarded by expectedCount the
	// way heads are guarded by the expected parent; a stale count returns
	// ErrBranchConflict for the caller to retry.
	GetBranchFingerprint(ctx context.Context, branch string) (*BranchFingerprint, error)
	ListBranchFingerprints(ctx context.Context) ([]BranchFingerprint, error)
	SaveBranchFingerprint(ctx context.Context, fp *BranchFingerprint, expectedCount int64) error

	// Candidate stage.
	InsertCandidate(ctx context.Context, c *CandidateMemory) error
	GetCandidate(ctx context.Context, id string) (*CandidateMemory, error)
	ListCandidates(ctx context.Context, status, branch string, limit int) ([]CandidateMemory, error)
	CountCandidates(ctx context.Context, status string) (int, error)
	RecordReplay(ctx context.Context, ev *ReplayEvent) error
	BumpReplay(ctx context.Context, id string, salienceBump float64) error
	SetCandidateStatus(ctx context.Context, id, from, to string) error
	ExpireCandidates(ctx context.Context, cutoff int64) (int, error)
	CoolCandidates(ctx context.Context, idleCutoff int64) (int, error)

	// Trails. ReinforceTrail folds one traversal into an edge with a single
	// upsert so concurrent reinforcements never lose updates. Ordering
	// operations sort by elapsed/stability, which ranks identically to
	// retrieval strength without computing it in SQL.
	ReinforceTrail(ctx context.Context, source, target string, p TrailParams, now int64) (*TrailEdge, error)
	GetTrail(ctx context.Context, source, target string) (*TrailEdge, error)
	HotTrails(ctx context.Context, now int64, limit int) ([]TrailEdge, error)
	TrailsFrom(ctx context.Context, fingerprint string) ([]TrailEdge, error)
	TrailsTo(ctx context.Context, fingerprint string) ([]TrailEdge, error)
	TrailsTouching(ctx context.Context, fingerprints []string) ([]TrailEdge, error)
	AllTrails(ctx context.Context, limit int) ([]TrailEdge, error)
	BuriedTrails(ctx context.Context, now int64, minRatio float64, limit int) ([]TrailEdge, error)
	ResurrectTrail(ctx context.Context, source, target string, capHours float64, now int64) (*TrailEdge, error)

	// Links.
	CreateLink(ctx context.Context, l *Link) error
	LinksFor(ctx context.Context, fingerprint string) ([]Link, error)
	RecentLinks(ctx context.Context, limit int) ([]Link, error)
	LinkDegrees(ctx context.Context, min int) ([]LinkDegree, error)

	// Tags.
	TagCommit(ctx context.Context, tag, commitID, branch string) error
	ListTags(ctx context.Context, branch string) ([]CommitTag, error)

	// Consolidation bookkeeping.
	RecordRun(ctx context.Context, run *ConsolidationRun) error
	ListRuns(ctx context.Context, limit int) ([]ConsolidationRun, error)

	// Sessions.
	SaveSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	MarkResumed(ctx context.Context, id string, now int64) error

	// Retrieval primitives. Both exclude quarantined content and scope to a
	// branch when one is given.
	LexicalSearch(ctx context.Context, query, branch string, limit int) ([]SearchHit, error)
	VectorSearch(ctx context.Context, embedding []float32, branch string, limit int) ([]SearchHit, error)

	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
