package engine

import (
	"math"
	"testing"

	"github.com/mnemon-ai/mnemon/internal/store"
)

func TestRetrievalStrengthCurve(t *testing.T) {
	cases := []struct {
		name      string
		elapsed   float64
		stability float64
		want      float64
	}{
		{"just traversed", 0, 24, 1.0},
		{"one stability period", 24, 24, 0.9},
		{"nine stability periods", 9 * 24, 24, 0.5},
		{"negative elapsed clamps", -5, 24, 1.0},
		{"zero stability", 100, 0, 0.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RetrievalStrength(tc.elapsed, tc.stability)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("RetrievalStrength(%v, %v) = %v, want %v", tc.elapsed, tc.stability, got, tc.want)
			}
		})
	}
}

func TestRetrievalStrengthMonotoneDecay(t *testing.T) {
	prev := 1.1
	for elapsed := 0.0; elapsed <= 1000; elapsed += 50 {
		r := RetrievalStrength(elapsed, 24)
		if r >= prev {
			t.Fatalf("retrieval at %vh = %v, not below previous %v", elapsed, r, prev)
		}
		if r <= 0 {
			t.Fatalf("retrieval at %vh = %v, must stay positive", elapsed, r)
		}
		prev = r
	}
}

func TestStorageStrengthMonotone(t *testing.T) {
	if got := StorageStrength(0, 1.0); got != 0 {
		t.Errorf("StorageStrength(0) = %v, want 0", got)
	}
	prev := -1.0
	for n := int64(1); n <= 100; n *= 2 {
		s := StorageStrength(n, 1.0)
		if s <= prev {
			t.Fatalf("StorageStrength(%d) = %v, not above %v", n, s, prev)
		}
		prev = s
	}
	// Heavier access weight means faster growth.
	if StorageStrength(10, 2.0) <= StorageStrength(10, 1.0) {
		t.Error("access weight 2.0 did not outgrow 1.0")
	}
}

func TestNextStability(t *testing.T) {
	// Reinforcing a fully fresh memory adds nothing.
	if got := NextStability(24, 12, 8760, 1.0); got != 24 {
		t.Errorf("fresh reinforcement = %v, want 24", got)
	}
	// Rescuing a fully decayed memory adds the full gain.
	if got := NextStability(24, 12, 8760, 0.0); got != 36 {
		t.Errorf("decayed reinforcement = %v, want 36", got)
	}
	// Cap holds.
	if got := NextStability(8755, 12, 8760, 0.0); got != 8760 {
		t.Errorf("capped = %v, want 8760", got)
	}
}

func TestTrailStateBands(t *testing.T) {
	cases := []struct {
		retrieval float64
		want      string
	}{
		{0.9, store.TrailActive},
		{0.5, store.TrailActive},
		{0.49, store.TrailFading},
		{0.2, store.TrailFading},
		{0.19, store.TrailDormant},
		{0.05, store.TrailDormant},
		{0.04, store.TrailArchived},
		{0.0, store.TrailArchived},
	}
	for _, tc := range cases {
		if got := TrailState(tc.retrieval); got != tc.want {
			t.Errorf("TrailState(%v) = %q, want %q", tc.retrieval, got, tc.want)
		}
	}
}

func TestMaterializeTrail(t *testing.T) {
	now := int64(1_700_000_000_000)
	edge := &store.TrailEdge{
		Source:         "aa",
		Target:         "bb",
		TraversalCount: 5,
		Stability:      24,
		LastTraversed:  now - 24*3_600_000, // one stability period ago
	}
	materializeTrail(edge, now, 1.0)

	if math.Abs(edge.RetrievalStrength-0.9) > 1e-9 {
		t.Errorf("retrieval = %v, want 0.9", edge.RetrievalStrength)
	}
	want := math.Log(6)
	if math.Abs(edge.StorageStrength-want) > 1e-9 {
		t.Errorf("storage = %v, want %v", edge.StorageStrength, want)
	}
	if edge.State != store.TrailActive {
		t.Errorf("state = %q, want active", edge.State)
	}
}
