package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mnemon-ai/mnemon/internal/store"
)

func stageCandidate(t *testing.T, db *DB, id, branch string, salience float64, expiresAt int64) *store.CandidateMemory {
	t.Helper()
	c := &store.CandidateMemory{
		ID:               id,
		Branch:           branch,
		Payload:          []byte("candidate " + id),
		ContentType:      "text/plain",
		ContentEmbedding: []float32{0.1, 0.2, 0.3},
		ContextEmbedding: []float32{0.4, 0.5, 0.6},
		Salience:         salience,
		ExpiresAt:        expiresAt,
	}
	if err := db.InsertCandidate(context.Background(), c); err != nil {
		t.Fatalf("InsertCandidate %s: %v", id, err)
	}
	return c
}

func TestCandidateRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	future := time.Now().UnixMilli() + 60000
	stageCandidate(t, db, "c1", "main", 0.7, future)

	got, err := db.GetCandidate(ctx, "c1")
	if err != nil {
		t.Fatalf("GetCandidate: %v", err)
	}
	if got.Status != store.CandidateActive {
		t.Errorf("status = %q, want %q", got.Status, store.CandidateActive)
	}
	if got.Salience != 0.7 {
		t.Errorf("salience = %v, want 0.7", got.Salience)
	}
	if got.ExpiresAt != future {
		t.Errorf("expires_at = %d, want %d", got.ExpiresAt, future)
	}
	if len(got.ContentEmbedding) != 3 || got.ContentEmbedding[1] != 0.2 {
		t.Errorf("content embedding = %v, want [0.1 0.2 0.3]", got.ContentEmbedding)
	}
	if len(got.ContextEmbedding) != 3 || got.ContextEmbedding[2] != 0.6 {
		t.Errorf("context embedding = %v, want [0.4 0.5 0.6]", got.ContextEmbedding)
	}
	if got.CreatedAt == 0 {
		t.Error("created_at not stamped")
	}

	if _, err := db.GetCandidate(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing candidate error = %v, want ErrNotFound", err)
	}
}

func TestListCandidatesFilters(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	future := time.Now().UnixMilli() + 60000
	stageCandidate(t, db, "a", "main", 0.5, future)
	stageCandidate(t, db, "b", "main", 0.5, future)
	stageCandidate(t, db, "c", "research", 0.5, future)
	if err := db.SetCandidateStatus(ctx, "b", store.CandidateActive, store.CandidateCooling); err != nil {
		t.Fatalf("SetCandidateStatus: %v", err)
	}

	all, err := db.ListCandidates(ctx, "", "", 0)
	if err != nil {
		t.Fatalf("ListCandidates all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all candidates = %d, want 3", len(all))
	}

	active, err := db.ListCandidates(ctx, store.CandidateActive, "", 0)
	if err != nil {
		t.Fatalf("ListCandidates active: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("active candidates = %d, want 2", len(active))
	}

	mainActive, err := db.ListCandidates(ctx, store.CandidateActive, "main", 0)
	if err != nil {
		t.Fatalf("ListCandidates main active: %v", err)
	}
	if len(mainActive) != 1 || mainActive[0].ID != "a" {
		t.Errorf("main active = %+v, want just a", mainActive)
	}

	n, err := db.CountCandidates(ctx, store.CandidateCooling)
	if err != nil {
		t.Fatalf("CountCandidates: %v", err)
	}
	if n != 1 {
		t.Errorf("cooling count = %d, want 1", n)
	}
}

func TestBumpReplayCapsSalience(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	future := time.Now().UnixMilli() + 60000
	stageCandidate(t, db, "c1", "main", 0.97, future)

	if err := db.BumpReplay(ctx, "c1", 0.05); err != nil {
		t.Fatalf("first BumpReplay: %v", err)
	}
	if err := db.BumpReplay(ctx, "c1", 0.05); err != nil {
		t.Fatalf("second BumpReplay: %v", err)
	}

	got, err := db.GetCandidate(ctx, "c1")
	if err != nil {
		t.Fatalf("GetCandidate: %v", err)
	}
	if got.ReplayCount != 2 {
		t.Errorf("replay count = %d, want 2", got.ReplayCount)
	}
	if got.Salience != 1.0 {
		t.Errorf("salience = %v, want capped at 1.0", got.Salience)
	}
}

func TestBumpReplayIgnoresTerminal(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	stageCandidate(t, db, "c1", "main", 0.5, time.Now().UnixMilli()+60000)
	if err := db.SetCandidateStatus(ctx, "c1", store.CandidateActive, store.CandidateExpired); err != nil {
		t.Fatalf("SetCandidateStatus: %v", err)
	}

	if err := db.BumpReplay(ctx, "c1", 0.05); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("bump on expired = %v, want ErrNotFound", err)
	}
}

func TestRecordReplay(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	stageCandidate(t, db, "c1", "main", 0.5, time.Now().UnixMilli()+60000)

	fired := &store.ReplayEvent{CandidateID: "c1", SessionID: "s1", Similarity: 0.91, Threshold: 0.85, Fired: true}
	if err := db.RecordReplay(ctx, fired); err != nil {
		t.Fatalf("RecordReplay fired: %v", err)
	}
	nearMiss := &store.ReplayEvent{CandidateID: "c1", SessionID: "s1", Similarity: 0.78, Threshold: 0.85}
	if err := db.RecordReplay(ctx, nearMiss); err != nil {
		t.Fatalf("RecordReplay near miss: %v", err)
	}
	if fired.ID == 0 || nearMiss.ID == 0 || fired.ID == nearMiss.ID {
		t.Errorf("event ids = %d, %d, want distinct nonzero", fired.ID, nearMiss.ID)
	}

	var total, firedCount int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*), SUM(fired) FROM replay_events WHERE candidate_id = 'c1'").Scan(&total, &firedCount); err != nil {
		t.Fatalf("count replay events: %v", err)
	}
	if total != 2 || firedCount != 1 {
		t.Errorf("replay events = %d fired %d, want 2 and 1", total, firedCount)
	}
}

func TestStatusGuard(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	stageCandidate(t, db, "c1", "main", 0.5, time.Now().UnixMilli()+60000)

	err := db.SetCandidateStatus(ctx, "c1", store.CandidateCooling, store.CandidatePromoted)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("guard mismatch error = %v, want ErrNotFound", err)
	}

	got, err := db.GetCandidate(ctx, "c1")
	if err != nil {
		t.Fatalf("GetCandidate: %v", err)
	}
	if got.Status != store.CandidateActive {
		t.Errorf("status changed to %q despite failed guard", got.Status)
	}
}

func TestExpireCandidates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	now := time.Now().UnixMilli()
	stageCandidate(t, db, "old", "main", 0.5, now-1000)
	stageCandidate(t, db, "fresh", "main", 0.5, now+60000)

	n, err := db.ExpireCandidates(ctx, now)
	if err != nil {
		t.Fatalf("ExpireCandidates: %v", err)
	}
	if n != 1 {
		t.Errorf("expired = %d, want 1", n)
	}

	old, _ := db.GetCandidate(ctx, "old")
	if old.Status != store.CandidateExpired {
		t.Errorf("old status = %q, want expired", old.Status)
	}
	fresh, _ := db.GetCandidate(ctx, "fresh")
	if fresh.Status != store.CandidateActive {
		t.Errorf("fresh status = %q, want active", fresh.Status)
	}
}

func TestCoolCandidates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	now := time.Now().UnixMilli()
	idle := &store.CandidateMemory{
		ID: "idle", Branch: "main", Payload: []byte("x"),
		CreatedAt: now - 3600_000, ExpiresAt: now + 60000,
	}
	if err := db.InsertCandidate(ctx, idle); err != nil {
		t.Fatalf("InsertCandidate: %v", err)
	}
	stageCandidate(t, db, "busy", "main", 0.5, now+60000)

	n, err := db.CoolCandidates(ctx, now-1800_000)
	if err != nil {
		t.Fatalf("CoolCandidates: %v", err)
	}
	if n != 1 {
		t.Errorf("cooled = %d, want 1", n)
	}

	got, _ := db.GetCandidate(ctx, "idle")
	if got.Status != store.CandidateCooling {
		t.Errorf("idle status = %q, want cooling", got.Status)
	}
}

func TestPromoteExactlyOnce(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	stageCandidate(t, db, "c1", "main", 0.9, time.Now().UnixMilli()+60000)

	first, err := tryCommit(db, "main", "promote c1", "insight one", &store.PromoteMark{CandidateID: "c1"})
	if err != nil {
		t.Fatalf("promoting commit: %v", err)
	}

	got, err := db.GetCandidate(ctx, "c1")
	if err != nil {
		t.Fatalf("GetCandidate: %v", err)
	}
	if got.Status != store.CandidatePromoted {
		t.Errorf("status = %q, want promoted", got.Status)
	}
	if got.PromotedCommitID != first.ID {
		t.Errorf("promoted commit = %q, want %q", got.PromotedCommitID, first.ID)
	}

	_, err = tryCommit(db, "main", "promote c1 again", "insight two", &store.PromoteMark{CandidateID: "c1"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second promotion error = %v, want ErrNotFound", err)
	}

	// The failed promotion rolls back its commit and leaves the head alone.
	b, err := db.GetBranch(ctx, "main")
	if err != nil {
		t.Fatalf("GetBranch: %v", err)
	}
	if b.Head != first.ID {
		t.Errorf("head = %q, want %q after rollback", b.Head, first.ID)
	}
	log, err := db.Log(ctx, "main", 0)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(log) != 1 {
		t.Errorf("log length = %d, want 1", len(log))
	}
}

func TestConsolidationRunLog(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	runs := []store.ConsolidationRun{
		{RunID: "r1", StartedAt: 1000, DurationMS: 40, Evaluated: 5, Promoted: 2, Expired: 1, Threshold: 0.5, CommitIDs: []string{"abc", "def"}},
		{RunID: "r2", StartedAt: 2000, DurationMS: 12, Evaluated: 1, Threshold: 0.5, CommitIDs: []string{}, Error: "store unavailable"},
	}
	for i := range runs {
		if err := db.RecordRun(ctx, &runs[i]); err != nil {
			t.Fatalf("RecordRun %s: %v", runs[i].RunID, err)
		}
	}

	got, err := db.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("runs = %d, want 2", len(got))
	}
	if got[0].RunID != "r2" || got[1].RunID != "r1" {
		t.Errorf("run order = %s, %s, want r2 then r1", got[0].RunID, got[1].RunID)
	}
	if got[0].Error != "store unavailable" {
		t.Errorf("run error = %q, want recorded failure", got[0].Error)
	}
	if len(got[1].CommitIDs) != 2 || got[1].CommitIDs[0] != "abc" {
		t.Errorf("commit ids = %v, want [abc def]", got[1].CommitIDs)
	}
}
