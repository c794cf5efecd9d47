package store

import (
	"strings"
	"testing"
)

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint([]byte("the same bytes"))
	b := Fingerprint([]byte("the same bytes"))
	if a != b {
		t.Errorf("same payload hashed differently: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64", len(a))
	}
	if c := Fingerprint([]byte("different bytes")); c == a {
		t.Errorf("different payloads collided on %s", c)
	}
}

func TestCommitIDFields(t *testing.T) {
	base := CommitID("tree1", "parent1", "msg", "author", 1000)

	variants := map[string]string{
		"tree":    CommitID("tree2", "parent1", "msg", "author", 1000),
		"parent":  CommitID("tree1", "parent2", "msg", "author", 1000),
		"message": CommitID("tree1", "parent1", "other", "author", 1000),
		"author":  CommitID("tree1", "parent1", "msg", "other", 1000),
		"time":    CommitID("tree1", "parent1", "msg", "author", 1001),
	}
	for field, id := range variants {
		if id == base {
			t.Errorf("changing %s did not change the commit id", field)
		}
	}

	if again := CommitID("tree1", "parent1", "msg", "author", 1000); again != base {
		t.Errorf("commit id not deterministic: %s vs %s", again, base)
	}
}

func TestTreeIDIncludesEntryOrder(t *testing.T) {
	e1 := TreeEntry{Name: "a", Fingerprint: strings.Repeat("1", 64)}
	e2 := TreeEntry{Name: "b", Fingerprint: strings.Repeat("2", 64)}

	ab := TreeID("main", []TreeEntry{e1, e2}, 42)
	ba := TreeID("main", []TreeEntry{e2, e1}, 42)
	if ab == ba {
		t.Error("entry order should change the tree id")
	}
	if other := TreeID("other", []TreeEntry{e1, e2}, 42); other == ab {
		t.Error("branch should change the tree id")
	}
}
