package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/mnemon-ai/mnemon/internal/store"
)

func TestStage(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	c, err := eng.Stage(ctx, StageInput{
		Branch:   "main",
		Payload:  []byte("observed: build flake in integration suite"),
		Salience: 0.6,
	})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if c.Status != store.CandidateActive {
		t.Errorf("status = %q, want active", c.Status)
	}
	if c.ExpiresAt <= c.CreatedAt {
		t.Errorf("expires %d not after created %d", c.ExpiresAt, c.CreatedAt)
	}
	if len(c.ContentEmbedding) == 0 {
		t.Error("staging did not embed the payload")
	}

	got, err := eng.Candidates(ctx, store.CandidateActive, "", 0)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(got) != 1 || got[0].ID != c.ID {
		t.Errorf("candidates = %+v, want the staged one", got)
	}
}

func TestStageValidation(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   StageInput
	}{
		{"no branch", StageInput{Payload: []byte("x"), Salience: 0.5}},
		{"no payload", StageInput{Branch: "main", Salience: 0.5}},
		{"salience below", StageInput{Branch: "main", Payload: []byte("x"), Salience: -0.1}},
		{"salience above", StageInput{Branch: "main", Payload: []byte("x"), Salience: 1.1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.Stage(ctx, tc.in)
			var verr *store.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("error = %v, want validation error", err)
			}
		})
	}
}

func TestStageCapacity(t *testing.T) {
	eng, _ := testEngine(t)
	eng.cfg.Staging.MaxActive = 2
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := eng.Stage(ctx, StageInput{Branch: "main", Payload: []byte("note"), Salience: 0.3}); err != nil {
			t.Fatalf("Stage %d: %v", i, err)
		}
	}
	_, err := eng.Stage(ctx, StageInput{Branch: "main", Payload: []byte("overflow"), Salience: 0.3})
	if !errors.Is(err, store.ErrCapacityExceeded) {
		t.Fatalf("error = %v, want ErrCapacityExceeded", err)
	}
}

func TestReplayCheckFiresAndBumps(t *testing.T) {
	eng, db := testEngine(t)
	ctx := context.Background()

	hot, err := eng.Stage(ctx, StageInput{
		Branch:           "main",
		Payload:          []byte("matching context"),
		ContentEmbedding: []float32{1, 0},
		Salience:         0.5,
	})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	cold, err := eng.Stage(ctx, StageInput{
		Branch:           "main",
		Payload:          []byte("unrelated context"),
		ContentEmbedding: []float32{0, 1},
		Salience:         0.5,
	})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}

	matches, err := eng.ReplayCheck(ctx, []float32{1, 0}, "sess-1")
	if err != nil {
		t.Fatalf("ReplayCheck: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	if matches[0].CandidateID != hot.ID {
		t.Errorf("matched %s, want %s", matches[0].CandidateID, hot.ID)
	}
	if matches[0].Salience <= 0.5 {
		t.Errorf("salience = %v, want bumped above 0.5", matches[0].Salience)
	}

	after, err := eng.Candidates(ctx, store.CandidateActive, "", 0)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	for _, c := range after {
		switch c.ID {
		case hot.ID:
			if c.ReplayCount != 1 {
				t.Errorf("hot replay count = %d, want 1", c.ReplayCount)
			}
			if c.Salience <= 0.5 {
				t.Errorf("hot salience = %v, want bumped", c.Salience)
			}
		case cold.ID:
			if c.ReplayCount != 0 {
				t.Errorf("cold replay count = %d, want 0", c.ReplayCount)
			}
		}
	}

	var events int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM replay_events WHERE fired = 1`).Scan(&events); err != nil {
		t.Fatalf("count replay events: %v", err)
	}
	if events != 1 {
		t.Errorf("fired events = %d, want 1", events)
	}
}

func TestReplayCheckRecordsNearMiss(t *testing.T) {
	eng, db := testEngine(t)
	eng.cfg.Staging.ReplayFire = 0.95
	eng.cfg.Staging.ReplayLog = 0.5
	ctx := context.Background()

	// cos([1,0],[0.8,0.6]) = 0.8: above the log floor, below fire.
	if _, err := eng.Stage(ctx, StageInput{
		Branch:           "main",
		Payload:          []byte("close but not firing"),
		ContentEmbedding: []float32{0.8, 0.6},
		Salience:         0.5,
	}); err != nil {
		t.Fatalf("Stage: %v", err)
	}

	matches, err := eng.ReplayCheck(ctx, []float32{1, 0}, "sess-2")
	if err != nil {
		t.Fatalf("ReplayCheck: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("matches = %d, want 0 (near-miss must not fire)", len(matches))
	}

	var fired int
	var similarity float64
	err = db.QueryRowContext(ctx,
		`SELECT fired, similarity FROM replay_events WHERE session_id = 'sess-2'`).Scan(&fired, &similarity)
	if err != nil {
		t.Fatalf("query replay event: %v", err)
	}
	if fired != 0 {
		t.Errorf("fired = %d, want 0", fired)
	}
	if similarity < 0.79 || similarity > 0.81 {
		t.Errorf("similarity = %v, want ~0.8", similarity)
	}
}

func TestReplayCheckEmptyContext(t *testing.T) {
	eng, _ := testEngine(t)
	if _, err := eng.ReplayCheck(context.Background(), nil, "s"); err == nil {
		t.Fatal("expected error for empty context embedding")
	}
}

func TestSweep(t *testing.T) {
	eng, db := testEngine(t)
	ctx := context.Background()
	now := nowMillis()

	// One already expired, one old enough to cool, one fresh.
	expired := &store.CandidateMemory{
		ID: "cand-expired", Branch: "main", Payload: []byte("expired"),
		Salience: 0.4, Status: store.CandidateActive,
		CreatedAt: now - 200*3_600_000, ExpiresAt: now - 3_600_000,
	}
	stale := &store.CandidateMemory{
		ID: "cand-stale", Branch: "main", Payload: []byte("stale"),
		Salience: 0.4, Status: store.CandidateActive,
		CreatedAt: now - 48*3_600_000, ExpiresAt: now + 48*3_600_000,
	}
	fresh := &store.CandidateMemory{
		ID: "cand-fresh", Branch: "main", Payload: []byte("fresh"),
		Salience: 0.4, Status: store.CandidateActive,
		CreatedAt: now, ExpiresAt: now + 168*3_600_000,
	}
	for _, c := range []*store.CandidateMemory{expired, stale, fresh} {
		if err := db.InsertCandidate(ctx, c); err != nil {
			t.Fatalf("InsertCandidate %s: %v", c.ID, err)
		}
	}

	gotExpired, gotCooled, err := eng.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if gotExpired != 1 || gotCooled != 1 {
		t.Errorf("sweep = (%d expired, %d cooled), want (1, 1)", gotExpired, gotCooled)
	}

	want := map[string]string{
		"cand-expired": store.CandidateExpired,
		"cand-stale":   store.CandidateCooling,
		"cand-fresh":   store.CandidateActive,
	}
	for id, status := range want {
		var got string
		if err := db.QueryRowContext(ctx, `SELECT status FROM candidates WHERE id = ?`, id).Scan(&got); err != nil {
			t.Fatalf("query %s: %v", id, err)
		}
		if got != status {
			t.Errorf("%s status = %q, want %q", id, got, status)
		}
	}
}
