package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/mnemon-ai/mnemon/internal/store"
)

func mkLink(t *testing.T, db *DB, source, target, linkType string, createdAt int64) {
	t.Helper()
	l := &store.Link{Source: source, Target: target, LinkType: linkType, Weight: 0.8, Reasoning: "test", CreatedAt: createdAt}
	if err := db.CreateLink(context.Background(), l); err != nil {
		t.Fatalf("CreateLink %s->%s: %v", source, target, err)
	}
	if l.ID == 0 {
		t.Fatalf("link %s->%s: id not assigned", source, target)
	}
}

func TestCreateLinkValidatesType(t *testing.T) {
	db := testDB(t)

	err := db.CreateLink(context.Background(), &store.Link{Source: "a", Target: "b", LinkType: "friendship"})
	var verr *store.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("unknown type error = %v, want ValidationError", err)
	}
	if verr.Field != "link_type" {
		t.Errorf("field = %q, want link_type", verr.Field)
	}

	for lt := range store.LinkTypes {
		if err := db.CreateLink(context.Background(), &store.Link{Source: "a", Target: "b", LinkType: lt}); err != nil {
			t.Errorf("type %q rejected: %v", lt, err)
		}
	}
}

func TestLinksFor(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	mkLink(t, db, "a", "b", "resonance", 1000)
	mkLink(t, db, "b", "c", "causal", 2000)
	mkLink(t, db, "c", "d", "elaboration", 3000)

	links, err := db.LinksFor(ctx, "b")
	if err != nil {
		t.Fatalf("LinksFor: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("links for b = %d, want 2", len(links))
	}
	if links[0].LinkType != "causal" || links[1].LinkType != "resonance" {
		t.Errorf("order = %s, %s, want newest first", links[0].LinkType, links[1].LinkType)
	}
	if links[0].Weight != 0.8 || links[0].Reasoning != "test" {
		t.Errorf("link fields = %+v, want weight and reasoning round trip", links[0])
	}
}

func TestRecentLinks(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	mkLink(t, db, "a", "b", "resonance", 1000)
	mkLink(t, db, "b", "c", "contradiction", 2000)
	mkLink(t, db, "c", "d", "application", 3000)

	links, err := db.RecentLinks(ctx, 2)
	if err != nil {
		t.Fatalf("RecentLinks: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("recent links = %d, want 2", len(links))
	}
	if links[0].Source != "c" || links[1].Source != "b" {
		t.Errorf("order = %s, %s, want c then b", links[0].Source, links[1].Source)
	}
}

func TestLinkDegrees(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	mkLink(t, db, "a", "b", "resonance", 1000)
	mkLink(t, db, "a", "c", "causal", 2000)
	mkLink(t, db, "a", "d", "elaboration", 3000)
	mkLink(t, db, "b", "c", "resonance", 4000)

	degrees, err := db.LinkDegrees(ctx, 2)
	if err != nil {
		t.Fatalf("LinkDegrees: %v", err)
	}
	if len(degrees) != 3 {
		t.Fatalf("degrees = %+v, want 3 fingerprints at or above 2", degrees)
	}
	if degrees[0].Fingerprint != "a" || degrees[0].Degree != 3 {
		t.Errorf("top = %+v, want a with degree 3", degrees[0])
	}
	if degrees[1].Fingerprint != "b" || degrees[2].Fingerprint != "c" {
		t.Errorf("ties = %s, %s, want b then c", degrees[1].Fingerprint, degrees[2].Fingerprint)
	}
}
