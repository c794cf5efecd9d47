package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/mnemon-ai/mnemon/internal/store"
)

func TestLink(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	fpA := commitDoc(t, eng, "main", "a", "observed latency spike at rollout")
	fpB := commitDoc(t, eng, "main", "b", "rollout used a cold connection pool")

	l, err := eng.Link(ctx, LinkInput{
		Source:    fpB,
		Target:    fpA,
		LinkType:  "causal",
		Reasoning: "cold pool caused the spike",
	})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if l.Weight != 0.5 {
		t.Errorf("default weight = %v, want 0.5", l.Weight)
	}

	links, err := eng.LinksFor(ctx, fpA)
	if err != nil {
		t.Fatalf("LinksFor: %v", err)
	}
	if len(links) != 1 || links[0].LinkType != "causal" {
		t.Fatalf("links = %+v, want the causal one", links)
	}

	// Linking lays trail too.
	if _, err := eng.Store.GetTrail(ctx, fpB, fpA); err != nil {
		t.Errorf("no trail after linking: %v", err)
	}
}

func TestLinkValidation(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()
	fpA := commitDoc(t, eng, "main", "a", "some content")
	fpB := commitDoc(t, eng, "main", "b", "other content")

	if _, err := eng.Link(ctx, LinkInput{Source: fpA, Target: fpA, LinkType: "resonance"}); err == nil {
		t.Error("self-link accepted")
	}
	if _, err := eng.Link(ctx, LinkInput{Source: fpA, Target: "0000missing", LinkType: "resonance"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing target error = %v, want ErrNotFound", err)
	}
	var verr *store.ValidationError
	if _, err := eng.Link(ctx, LinkInput{Source: fpA, Target: fpB, LinkType: "bogus"}); !errors.As(err, &verr) {
		t.Errorf("unknown type error = %v, want validation error", err)
	}
}

func TestGraph(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	fpA := commitDoc(t, eng, "main", "first", "first memory")
	fpB := commitDoc(t, eng, "main", "second", "second memory")
	if _, err := eng.Link(ctx, LinkInput{Source: fpA, Target: fpB, LinkType: "elaboration", Weight: 0.8}); err != nil {
		t.Fatalf("Link: %v", err)
	}

	g, err := eng.Graph(ctx, 0)
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if len(g.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(g.Nodes))
	}

	var parents, linkEdges int
	for _, edge := range g.Edges {
		switch edge.Kind {
		case "parent":
			parents++
		case "elaboration":
			linkEdges++
			if edge.Weight != 0.8 {
				t.Errorf("link edge weight = %v, want 0.8", edge.Weight)
			}
		default:
			t.Errorf("unexpected edge kind %q", edge.Kind)
		}
	}
	if parents != 1 || linkEdges != 1 {
		t.Errorf("edges = %d parent, %d link; want 1 and 1", parents, linkEdges)
	}

	if len(g.Branches) != 1 || g.Branches[0].Name != "main" {
		t.Errorf("branches = %+v, want main", g.Branches)
	}
	if g.Stats == nil || g.Stats.Commits != 2 {
		t.Errorf("stats = %+v, want 2 commits", g.Stats)
	}
}

func TestGraphParentOutsideWindow(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		commitDoc(t, eng, "main", "msg", "payload number "+string(rune('a'+i)))
	}

	// Window of one: the head's parent is outside it, so no dangling edge.
	g, err := eng.Graph(ctx, 1)
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if len(g.Nodes) != 1 {
		t.Fatalf("nodes = %d, want 1", len(g.Nodes))
	}
	for _, edge := range g.Edges {
		if edge.Kind == "parent" {
			t.Errorf("parent edge %s->%s points outside the window", edge.Source, edge.Target)
		}
	}
}

func TestReflect(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	hub := commitDoc(t, eng, "main", "hub", "the load balancer design note")
	s1 := commitDoc(t, eng, "main", "s1", "client retry behavior")
	s2 := commitDoc(t, eng, "main", "s2", "health check intervals")
	lone := commitDoc(t, eng, "main", "lone", "unrelated scratch note")

	for _, other := range []string{s1, s2} {
		if _, err := eng.Link(ctx, LinkInput{Source: other, Target: hub, LinkType: "elaboration"}); err != nil {
			t.Fatalf("Link: %v", err)
		}
	}

	reflections, err := eng.Reflect(ctx, 2, 10)
	if err != nil {
		t.Fatalf("Reflect: %v", err)
	}
	if len(reflections) != 1 {
		t.Fatalf("reflections = %+v, want only the hub", reflections)
	}
	r := reflections[0]
	if r.Fingerprint != hub || r.Degree != 2 {
		t.Errorf("reflection = %s degree %d, want hub with degree 2", r.Fingerprint, r.Degree)
	}
	if r.Excerpt == "" || len(r.Links) != 2 {
		t.Errorf("excerpt = %q, links = %d; want filled excerpt and 2 links", r.Excerpt, len(r.Links))
	}
	_ = lone
}
