package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/mnemon-ai/mnemon/internal/store"
)

// commitDoc commits one text document and returns its content fingerprint.
func commitDoc(t *testing.T, eng *Engine, branch, name, text string) string {
	t.Helper()
	res, err := eng.Commit(context.Background(), textEntry(branch, name, text, nil))
	if err != nil {
		t.Fatalf("commit %s: %v", name, err)
	}
	entries, err := eng.Store.TreeEntries(context.Background(), res.Commit.TreeID)
	if err != nil {
		t.Fatalf("TreeEntries: %v", err)
	}
	return entries[0].Fingerprint
}

func TestSearchHybrid(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	fpA := commitDoc(t, eng, "main", "pooling", "postgres connection pooling guide")
	commitDoc(t, eng, "main", "tuning", "postgres index tuning checklist")
	commitDoc(t, eng, "main", "hiking", "alpine hiking gear list")

	results, err := eng.Search(ctx, "postgres pooling guide", "", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) < 2 {
		t.Fatalf("results = %d, want at least the two postgres docs", len(results))
	}
	if results[0].Fingerprint != fpA {
		t.Errorf("top hit = %s (%q), want the pooling doc", results[0].Fingerprint, results[0].Excerpt)
	}
	if results[0].LexRank != 1 || results[0].VecRank != 1 {
		t.Errorf("top hit ranks = lex %d vec %d, want 1 and 1", results[0].LexRank, results[0].VecRank)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %v then %v", results[0].Score, results[1].Score)
	}
	if results[0].Branch != "main" || results[0].CommitID == "" {
		t.Errorf("top hit provenance = %q/%q, want branch and commit filled", results[0].Branch, results[0].CommitID)
	}
}

func TestSearchBranchScope(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	commitDoc(t, eng, "infra", "deploy", "deployment rollout checklist")
	commitDoc(t, eng, "research", "notes", "deployment experiment notes")

	results, err := eng.Search(ctx, "deployment", "infra", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.Branch != "infra" {
			t.Errorf("hit on branch %q leaked into infra-scoped search", r.Branch)
		}
	}
	if len(results) != 1 {
		t.Errorf("results = %d, want 1", len(results))
	}
}

func TestSearchLexicalOnly(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	fp := commitDoc(t, eng, "main", "doc", "kubernetes operator patterns")
	eng.Embedder = nil // vector leg unavailable

	results, err := eng.Search(ctx, "kubernetes", "", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Fingerprint != fp {
		t.Fatalf("results = %+v, want the kubernetes doc from lexical alone", results)
	}
	if results[0].VecRank != 0 {
		t.Errorf("vec rank = %d, want 0 when the vector leg is off", results[0].VecRank)
	}
}

func TestSearchVectorOnly(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	commitDoc(t, eng, "main", "doc", "service mesh sidecar latency")

	// No lexical overlap; the vector leg still ranks what exists.
	results, err := eng.Search(ctx, "proxy overhead", "", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1 from the vector leg", len(results))
	}
	if results[0].LexRank != 0 || results[0].VecRank != 1 {
		t.Errorf("ranks = lex %d vec %d, want 0 and 1", results[0].LexRank, results[0].VecRank)
	}
}

func TestSearchValidation(t *testing.T) {
	eng, _ := testEngine(t)
	if _, err := eng.Search(context.Background(), "", "", 10); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestSearchEmptyStore(t *testing.T) {
	eng, _ := testEngine(t)
	results, err := eng.Search(context.Background(), "anything", "", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
}

func TestSearchReinforcesCoRetrieved(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	fpA := commitDoc(t, eng, "main", "a", "caching strategy writeup")
	fpB := commitDoc(t, eng, "main", "b", "caching invalidation notes")

	results, err := eng.Search(ctx, "caching", "", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}

	edge, err := eng.Store.GetTrail(ctx, results[0].Fingerprint, results[1].Fingerprint)
	if err != nil {
		t.Fatalf("no trail between co-retrieved results: %v", err)
	}
	if edge.TraversalCount != 1 {
		t.Errorf("traversals = %d, want 1", edge.TraversalCount)
	}
	got := map[string]bool{edge.Source: true, edge.Target: true}
	if !got[fpA] || !got[fpB] {
		t.Errorf("trail endpoints = %s -> %s, want the two docs", edge.Source, edge.Target)
	}
}

func TestSearchTrailStrengthFilled(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	fpA := commitDoc(t, eng, "main", "a", "tracing span attributes")
	fpB := commitDoc(t, eng, "main", "b", "tracing sampling policy")
	if _, err := eng.ReinforceTrail(ctx, fpA, fpB); err != nil {
		t.Fatalf("ReinforceTrail: %v", err)
	}

	results, err := eng.Search(ctx, "tracing", "", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.TrailStrength < 0.9 {
			t.Errorf("trail strength on %s = %v, want near 1.0 for a fresh trail", r.Fingerprint, r.TrailStrength)
		}
	}
}

func TestRecallBlob(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	fpA := commitDoc(t, eng, "main", "a", "retry budget policy")
	fpB := commitDoc(t, eng, "main", "b", "circuit breaker settings")
	if _, err := eng.Link(ctx, LinkInput{Source: fpA, Target: fpB, LinkType: "elaboration"}); err != nil {
		t.Fatalf("Link: %v", err)
	}

	res, err := eng.Recall(ctx, fpA)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if res.Unit == nil || res.Unit.Fingerprint != fpA {
		t.Fatalf("unit = %+v, want the recalled blob", res.Unit)
	}
	if string(res.Unit.Payload) != "retry budget policy" {
		t.Errorf("payload = %q", res.Unit.Payload)
	}
	if len(res.Links) != 1 {
		t.Errorf("links = %d, want 1", len(res.Links))
	}
	if len(res.Trails) == 0 {
		t.Error("trails missing; linking should have laid one")
	}
}

func TestRecallCommit(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	res, err := eng.Commit(ctx, CommitInput{
		Branch:  "main",
		Author:  "test",
		Message: "two entries",
		Entries: []CommitEntry{
			{Name: "first", Payload: []byte("first entry payload")},
			{Name: "second", Payload: []byte("second entry payload")},
		},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rec, err := eng.Recall(ctx, res.Commit.ID)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if rec.Commit == nil || rec.Commit.ID != res.Commit.ID {
		t.Fatalf("commit = %+v, want the recalled one", rec.Commit)
	}
	if len(rec.Entries) != 2 || len(rec.Units) != 2 {
		t.Fatalf("entries = %d, units = %d, want 2 and 2", len(rec.Entries), len(rec.Units))
	}
	if rec.Entries[0].Name != "first" || rec.Entries[1].Name != "second" {
		t.Errorf("entry order = %q, %q", rec.Entries[0].Name, rec.Entries[1].Name)
	}

	// Walking the commit lays trail between adjacent entries.
	edge, err := eng.Store.GetTrail(ctx, rec.Entries[0].Fingerprint, rec.Entries[1].Fingerprint)
	if err != nil {
		t.Fatalf("GetTrail: %v", err)
	}
	if edge.TraversalCount != 1 {
		t.Errorf("traversals = %d, want 1", edge.TraversalCount)
	}
}

func TestRecallUnknownID(t *testing.T) {
	eng, _ := testEngine(t)
	if _, err := eng.Recall(context.Background(), "deadbeef"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}
