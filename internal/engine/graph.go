package engine

import (
	"context"
	"fmt"

	"github.com/mnemon-ai/mnemon/internal/store"
)

// LinkInput is a request to annotate two units with a typed association.
type LinkInput struct {
	Source    string  `json:"source"`
	Target    string  `json:"target"`
	LinkType  string  `json:"link_type"`
	Weight    float64 `json:"weight,omitempty"`
	Reasoning string  `json:"reasoning,omitempty"`
}

// Link creates an explicit typed association between two existing units.
// Laying a link also reinforces the trail between them.
func (e *Engine) Link(ctx context.Context, in LinkInput) (*store.Link, error) {
	if in.Source == "" || in.Target == "" {
		return nil, store.Invalid("link", "source and target required")
	}
	if in.Source == in.Target {
		return nil, store.Invalid("link", "source and target must differ")
	}
	if _, err := e.Store.GetBlobAny(ctx, in.Source); err != nil {
		return nil, fmt.Errorf("link source: %w", err)
	}
	if _, err := e.Store.GetBlobAny(ctx, in.Target); err != nil {
		return nil, fmt.Errorf("link target: %w", err)
	}

	weight := in.Weight
	if weight == 0 {
		weight = 0.5
	}
	l := &store.Link{
		Source:    in.Source,
		Target:    in.Target,
		LinkType:  in.LinkType,
		Weight:    weight,
		Reasoning: in.Reasoning,
		CreatedAt: nowMillis(),
	}
	if err := e.Store.CreateLink(ctx, l); err != nil {
		return nil, err
	}

	if _, err := e.ReinforceTrail(ctx, in.Source, in.Target); err != nil {
		e.log.Warn().Err(err).Msg("link reinforcement failed")
	}
	return l, nil
}

// LinksFor lists every link touching a fingerprint.
func (e *Engine) LinksFor(ctx context.Context, fingerprint string) ([]store.Link, error) {
	return e.Store.LinksFor(ctx, fingerprint)
}

// GraphNode is one commit in the graph view.
type GraphNode struct {
	CommitID  string `json:"commit_id"`
	Branch    string `json:"branch"`
	Message   string `json:"message"`
	Author    string `json:"author"`
	CreatedAt int64  `json:"created_at"`
}

// GraphEdge connects two nodes: "parent" edges follow history, "link" edges
// carry the link type.
type GraphEdge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Kind   string  `json:"kind"`
	Weight float64 `json:"weight,omitempty"`
}

// Graph is the combined history and association view.
type Graph struct {
	Nodes    []GraphNode  `json:"nodes"`
	Edges    []GraphEdge  `json:"edges"`
	Branches []BranchInfo `json:"branches"`
	Stats    *store.Stats `json:"stats"`
}

// Graph assembles recent commits, their parent edges, and recent links into
// one view.
func (e *Engine) Graph(ctx context.Context, limit int) (*Graph, error) {
	if limit <= 0 {
		limit = 50
	}
	commits, err := e.Store.RecentCommits(ctx, limit)
	if err != nil {
		return nil, err
	}
	branches, err := e.Branches(ctx)
	if err != nil {
		return nil, err
	}
	links, err := e.Store.RecentLinks(ctx, limit)
	if err != nil {
		return nil, err
	}
	stats, err := e.Store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	g := &Graph{Branches: branches, Stats: stats}
	known := make(map[string]bool, len(commits))
	for _, c := range commits {
		known[c.ID] = true
		g.Nodes = append(g.Nodes, GraphNode{
			CommitID:  c.ID,
			Branch:    c.Branch,
			Message:   c.Message,
			Author:    c.Author,
			CreatedAt: c.CreatedAt,
		})
	}
	for _, c := range commits {
		if c.ParentID == "" || !known[c.ParentID] {
			continue
		}
		g.Edges = append(g.Edges, GraphEdge{Source: c.ParentID, Target: c.ID, Kind: "parent"})
	}
	for _, l := range links {
		g.Edges = append(g.Edges, GraphEdge{Source: l.Source, Target: l.Target, Kind: l.LinkType, Weight: l.Weight})
	}
	return g, nil
}

// Reflection is one highly connected unit surfaced for review.
type Reflection struct {
	Fingerprint string       `json:"fingerprint"`
	Degree      int          `json:"degree"`
	ContentType string       `json:"content_type,omitempty"`
	Excerpt     string       `json:"excerpt,omitempty"`
	Links       []store.Link `json:"links"`
}

// Reflect surfaces the most connected units: content that keeps getting
// linked from different directions tends to be worth another look.
func (e *Engine) Reflect(ctx context.Context, minLinks, limit int) ([]Reflection, error) {
	if minLinks <= 0 {
		minLinks = 2
	}
	if limit <= 0 {
		limit = 10
	}

	degrees, err := e.Store.LinkDegrees(ctx, minLinks)
	if err != nil {
		return nil, err
	}
	if len(degrees) > limit {
		degrees = degrees[:limit]
	}

	reflections := make([]Reflection, 0, len(degrees))
	for _, d := range degrees {
		r := Reflection{Fingerprint: d.Fingerprint, Degree: d.Degree}
		if unit, err := e.Store.GetBlob(ctx, d.Fingerprint); err == nil {
			r.ContentType = unit.ContentType
			r.Excerpt = excerptLine(unit.Payload, 160)
		}
		if links, err := e.Store.LinksFor(ctx, d.Fingerprint); err == nil {
			r.Links = links
		}
		reflections = append(reflections, r)
	}
	return reflections, nil
}
