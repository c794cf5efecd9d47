package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/mnemon-ai/mnemon/internal/store"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// putBlob stores a payload and returns its fingerprint.
func putBlob(t *testing.T, db *DB, payload string, embedding []float32) string {
	t.Helper()
	b := &store.ContentUnit{Payload: []byte(payload), ContentType: "text/plain", Embedding: embedding}
	if err := db.PutBlob(context.Background(), b); err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	return b.Fingerprint
}

// commitOn appends one commit with a single entry to a branch, creating the
// branch if needed.
func commitOn(t *testing.T, db *DB, branch, message, payload string) *store.Commit {
	t.Helper()
	c, err := tryCommit(db, branch, message, payload, nil)
	if err != nil {
		t.Fatalf("commit %q on %s: %v", message, branch, err)
	}
	return c
}

func tryCommit(db *DB, branch, message, payload string, promote *store.PromoteMark) (*store.Commit, error) {
	ctx := context.Background()
	if err := db.EnsureBranch(ctx, branch); err != nil {
		return nil, err
	}
	b, err := db.GetBranch(ctx, branch)
	if err != nil {
		return nil, err
	}

	blob := &store.ContentUnit{Payload: []byte(payload), ContentType: "text/plain"}
	if err := db.PutBlob(ctx, blob); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	entries := []store.TreeEntry{{Position: 0, Name: message, Fingerprint: blob.Fingerprint, Mode: "text/plain"}}
	treeID := store.TreeID(branch, entries, now)
	c := &store.Commit{
		ID:        store.CommitID(treeID, b.Head, message, "test", now),
		TreeID:    treeID,
		ParentID:  b.Head,
		Branch:    branch,
		Author:    "test",
		Message:   message,
		CreatedAt: now,
	}
	if err := db.CreateCommit(ctx, c, entries, promote); err != nil {
		return nil, err
	}
	return c, nil
}

func TestSchemaVersion(t *testing.T) {
	db := testDB(t)

	version, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if want := migrations[len(migrations)-1].Version; version != want {
		t.Errorf("schema version = %d, want %d", version, want)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestStats(t *testing.T) {
	db := testDB(t)

	commitOn(t, db, "main", "first", "hello world")
	if err := db.InsertCandidate(context.Background(), &store.CandidateMemory{
		ID: "cand1", Branch: "main", Payload: []byte("x"), ExpiresAt: time.Now().UnixMilli() + 10000,
	}); err != nil {
		t.Fatalf("InsertCandidate: %v", err)
	}

	s, err := db.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.Blobs != 1 {
		t.Errorf("blobs = %d, want 1", s.Blobs)
	}
	if s.Commits != 1 {
		t.Errorf("commits = %d, want 1", s.Commits)
	}
	if s.Branches != 1 {
		t.Errorf("branches = %d, want 1", s.Branches)
	}
	if s.ActiveCandidates != 1 {
		t.Errorf("active candidates = %d, want 1", s.ActiveCandidates)
	}
}
