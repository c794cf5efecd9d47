package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/mnemon-ai/mnemon/internal/store"
)

func TestConsolidatePromotesHighSalience(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	c, err := eng.Stage(ctx, StageInput{
		Branch:   "main",
		Payload:  []byte("decision: use CAS retries for head updates\nrationale follows"),
		Salience: 0.9,
	})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}

	run, err := eng.Consolidate(ctx)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if run.Evaluated != 1 || run.Promoted != 1 {
		t.Fatalf("run = %d evaluated, %d promoted; want 1, 1", run.Evaluated, run.Promoted)
	}
	if len(run.CommitIDs) != 1 {
		t.Fatalf("commit ids = %v, want one", run.CommitIDs)
	}

	promoted, err := eng.Store.GetCandidate(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCandidate: %v", err)
	}
	if promoted.Status != store.CandidatePromoted {
		t.Errorf("status = %q, want promoted", promoted.Status)
	}
	if promoted.PromotedCommitID != run.CommitIDs[0] {
		t.Errorf("promoted commit = %q, want %q", promoted.PromotedCommitID, run.CommitIDs[0])
	}

	log, err := eng.History(ctx, "main", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(log) != 1 {
		t.Fatalf("log length = %d, want 1", len(log))
	}
	if log[0].Author != "consolidation" {
		t.Errorf("author = %q, want consolidation", log[0].Author)
	}
	if !strings.HasPrefix(log[0].Message, "consolidate: decision: use CAS") {
		t.Errorf("message = %q, want consolidate excerpt", log[0].Message)
	}

	runs, err := eng.ConsolidationLog(ctx, 10)
	if err != nil {
		t.Fatalf("ConsolidationLog: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != run.RunID {
		t.Errorf("recorded runs = %+v, want the one just executed", runs)
	}
}

func TestConsolidateLeavesLowSalience(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	c, err := eng.Stage(ctx, StageInput{
		Branch:   "main",
		Payload:  []byte("minor observation"),
		Salience: 0.1,
	})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	// Fresh + unreplayed + salience 0.1: 0.5*0.1 + 0.3*0 + 0.2*~1 = ~0.25,
	// under the 0.5 threshold.
	run, err := eng.Consolidate(ctx)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if run.Promoted != 0 {
		t.Errorf("promoted = %d, want 0", run.Promoted)
	}

	got, err := eng.Store.GetCandidate(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCandidate: %v", err)
	}
	if got.Status != store.CandidateActive {
		t.Errorf("status = %q, want still active", got.Status)
	}
	if _, err := eng.Head(ctx, "main"); !errors.Is(err, store.ErrEmptyBranch) {
		t.Errorf("Head = %v, want ErrEmptyBranch (nothing committed)", err)
	}
}

func TestConsolidateExpiresBeforeScoring(t *testing.T) {
	eng, db := testEngine(t)
	ctx := context.Background()
	now := nowMillis()

	// High salience but already past TTL: must expire, never promote.
	dead := &store.CandidateMemory{
		ID: "cand-dead", Branch: "main", Payload: []byte("too late"),
		Salience: 0.95, Status: store.CandidateActive,
		CreatedAt: now - 300*3_600_000, ExpiresAt: now - 3_600_000,
	}
	if err := db.InsertCandidate(ctx, dead); err != nil {
		t.Fatalf("InsertCandidate: %v", err)
	}
	if err := db.EnsureBranch(ctx, "main"); err != nil {
		t.Fatalf("EnsureBranch: %v", err)
	}

	run, err := eng.Consolidate(ctx)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if run.Expired != 1 || run.Promoted != 0 || run.Evaluated != 0 {
		t.Errorf("run = %+v, want 1 expired, 0 evaluated, 0 promoted", run)
	}

	got, err := db.GetCandidate(ctx, "cand-dead")
	if err != nil {
		t.Fatalf("GetCandidate: %v", err)
	}
	if got.Status != store.CandidateExpired {
		t.Errorf("status = %q, want expired", got.Status)
	}
	if _, err := eng.Head(ctx, "main"); !errors.Is(err, store.ErrEmptyBranch) {
		t.Errorf("Head = %v, want ErrEmptyBranch", err)
	}
}

func TestConsolidatePromotesExactlyOnce(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	if _, err := eng.Stage(ctx, StageInput{
		Branch:   "main",
		Payload:  []byte("promote me once"),
		Salience: 0.9,
	}); err != nil {
		t.Fatalf("Stage: %v", err)
	}

	first, err := eng.Consolidate(ctx)
	if err != nil {
		t.Fatalf("first Consolidate: %v", err)
	}
	if first.Promoted != 1 {
		t.Fatalf("first promoted = %d, want 1", first.Promoted)
	}

	second, err := eng.Consolidate(ctx)
	if err != nil {
		t.Fatalf("second Consolidate: %v", err)
	}
	if second.Evaluated != 0 || second.Promoted != 0 {
		t.Errorf("second run = %d evaluated, %d promoted; want 0, 0", second.Evaluated, second.Promoted)
	}

	log, err := eng.History(ctx, "main", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(log) != 1 {
		t.Errorf("log length = %d, want 1 (no double promotion)", len(log))
	}
}

func TestConsolidationScore(t *testing.T) {
	eng, _ := testEngine(t)
	now := nowMillis()

	// Fresh candidate, no replays: score = Ws*salience + Wt*1.0.
	fresh := &store.CandidateMemory{Salience: 0.8, CreatedAt: now}
	cc := eng.cfg.Consolidation
	want := cc.WeightSalience*0.8 + cc.WeightRecency*1.0
	if got := eng.consolidationScore(fresh, now); math.Abs(got-want) > 1e-9 {
		t.Errorf("fresh score = %v, want %v", got, want)
	}

	// Replays saturate at the norm.
	saturated := &store.CandidateMemory{Salience: 0, ReplayCount: 50, CreatedAt: now}
	capped := &store.CandidateMemory{Salience: 0, ReplayCount: int(cc.ReplayNorm), CreatedAt: now}
	if a, b := eng.consolidationScore(saturated, now), eng.consolidationScore(capped, now); a != b {
		t.Errorf("replay signal not capped: %v vs %v", a, b)
	}

	// Older candidates score lower than fresh ones, all else equal.
	old := &store.CandidateMemory{Salience: 0.8, CreatedAt: now - 100*3_600_000}
	if eng.consolidationScore(old, now) >= eng.consolidationScore(fresh, now) {
		t.Error("aged candidate did not score below fresh one")
	}
}
