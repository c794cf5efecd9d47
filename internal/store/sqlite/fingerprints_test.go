package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/mnemon-ai/mnemon/internal/store"
)

func TestBranchFingerprintFirstWrite(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	fp := &store.BranchFingerprint{
		Branch:      "main",
		Centroid:    []float32{0.5, 0.25, 0.25},
		CommitCount: 1,
		Health:      1.0,
	}
	if err := db.SaveBranchFingerprint(ctx, fp, 0); err != nil {
		t.Fatalf("first save: %v", err)
	}

	got, err := db.GetBranchFingerprint(ctx, "main")
	if err != nil {
		t.Fatalf("GetBranchFingerprint: %v", err)
	}
	if got.CommitCount != 1 || got.Health != 1.0 {
		t.Errorf("profile = count %d health %v, want 1 and 1.0", got.CommitCount, got.Health)
	}
	if len(got.Centroid) != 3 || got.Centroid[0] != 0.5 {
		t.Errorf("centroid = %v, want [0.5 0.25 0.25]", got.Centroid)
	}
	if got.UpdatedAt == 0 {
		t.Error("updated_at not stamped")
	}

	// A second first-write lost the race.
	again := &store.BranchFingerprint{Branch: "main", Centroid: []float32{1, 0, 0}, CommitCount: 1}
	if err := db.SaveBranchFingerprint(ctx, again, 0); !errors.Is(err, store.ErrBranchConflict) {
		t.Errorf("duplicate first write error = %v, want ErrBranchConflict", err)
	}
}

func TestBranchFingerprintCAS(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	seed := &store.BranchFingerprint{Branch: "main", Centroid: []float32{1, 0}, CommitCount: 1, Health: 1.0}
	if err := db.SaveBranchFingerprint(ctx, seed, 0); err != nil {
		t.Fatalf("seed save: %v", err)
	}

	next := &store.BranchFingerprint{Branch: "main", Centroid: []float32{0.5, 0.5}, CommitCount: 2, Health: 0.9}
	if err := db.SaveBranchFingerprint(ctx, next, 1); err != nil {
		t.Fatalf("guarded update: %v", err)
	}

	stale := &store.BranchFingerprint{Branch: "main", Centroid: []float32{0, 1}, CommitCount: 2, Health: 0.1}
	if err := db.SaveBranchFingerprint(ctx, stale, 1); !errors.Is(err, store.ErrBranchConflict) {
		t.Errorf("stale update error = %v, want ErrBranchConflict", err)
	}

	got, err := db.GetBranchFingerprint(ctx, "main")
	if err != nil {
		t.Fatalf("GetBranchFingerprint: %v", err)
	}
	if got.CommitCount != 2 || got.Health != 0.9 {
		t.Errorf("profile = count %d health %v, want the guarded update to stand", got.CommitCount, got.Health)
	}
	if got.Centroid[0] != 0.5 {
		t.Errorf("centroid = %v, want [0.5 0.5]", got.Centroid)
	}
}

func TestListBranchFingerprints(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, branch := range []string{"research", "main"} {
		fp := &store.BranchFingerprint{Branch: branch, Centroid: []float32{1}, CommitCount: 1, Health: 1.0}
		if err := db.SaveBranchFingerprint(ctx, fp, 0); err != nil {
			t.Fatalf("save %s: %v", branch, err)
		}
	}

	fps, err := db.ListBranchFingerprints(ctx)
	if err != nil {
		t.Fatalf("ListBranchFingerprints: %v", err)
	}
	if len(fps) != 2 || fps[0].Branch != "main" || fps[1].Branch != "research" {
		t.Errorf("profiles = %+v, want main then research", fps)
	}

	if _, err := db.GetBranchFingerprint(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing profile error = %v, want ErrNotFound", err)
	}
}
