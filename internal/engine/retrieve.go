package engine

import (
	"context"
	"errors"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mnemon-ai/mnemon/internal/metrics"
	"github.com/mnemon-ai/mnemon/internal/store"
)

// SearchResult is one fused retrieval hit. Score is the RRF fusion value;
// ranks are 1-based positions in the source lists, zero when the item was
// absent from that list.
type SearchResult struct {
	Fingerprint   string  `json:"fingerprint"`
	Score         float64 `json:"score"`
	LexRank       int     `json:"lex_rank,omitempty"`
	VecRank       int     `json:"vec_rank,omitempty"`
	TrailStrength float64 `json:"trail_strength"`
	Branch        string  `json:"branch,omitempty"`
	CommitID      string  `json:"commit_id,omitempty"`
	ContentType   string  `json:"content_type,omitempty"`
	Excerpt       string  `json:"excerpt,omitempty"`
}

// Search runs the hybrid retriever: a lexical rank list and a vector rank
// list fused by reciprocal rank fusion, ties broken by current trail
// strength and then fingerprint. Either list may be unavailable; the other
// still serves. Co-retrieved neighbors get their trail reinforced.
func (e *Engine) Search(ctx context.Context, query, branch string, limit int) ([]SearchResult, error) {
	if query == "" {
		return nil, store.Invalid("query", "must not be empty")
	}
	if limit <= 0 {
		limit = e.cfg.Retrieval.DefaultLimit
	}

	metrics.SearchCount.Inc()
	timer := prometheus.NewTimer(metrics.SearchDuration)
	defer timer.ObserveDuration()

	// Overfetch both lists so fusion has something to reorder.
	fetch := limit * 3

	lex, lexErr := e.Store.LexicalSearch(ctx, query, branch, fetch)
	if lexErr != nil {
		e.log.Warn().Err(lexErr).Msg("lexical search unavailable")
	}

	var vec []store.SearchHit
	var vecErr error
	if qv := e.embed(ctx, query); qv != nil {
		vec, vecErr = e.Store.VectorSearch(ctx, qv, branch, fetch)
		if vecErr != nil {
			e.log.Warn().Err(vecErr).Msg("vector search unavailable")
		}
	}

	if len(lex) == 0 && len(vec) == 0 {
		if lexErr != nil && vecErr != nil {
			return nil, lexErr
		}
		return nil, nil
	}

	results := e.fuse(lex, vec)
	e.rankByTrails(ctx, results)

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].TrailStrength != results[j].TrailStrength {
			return results[i].TrailStrength > results[j].TrailStrength
		}
		return results[i].Fingerprint < results[j].Fingerprint
	})
	if len(results) > limit {
		results = results[:limit]
	}

	e.reinforceNeighbors(ctx, results)
	return results, nil
}

// fuse merges the two rank lists with RRF: each list contributes
// 1/(k + rank) per item, ranks 1-based.
func (e *Engine) fuse(lex, vec []store.SearchHit) []SearchResult {
	k := float64(e.cfg.Retrieval.RRFK)
	byFP := make(map[string]*SearchResult, len(lex)+len(vec))

	add := func(hit store.SearchHit) *SearchResult {
		r, ok := byFP[hit.Fingerprint]
		if !ok {
			r = &SearchResult{Fingerprint: hit.Fingerprint}
			byFP[hit.Fingerprint] = r
		}
		if r.Branch == "" {
			r.Branch = hit.Branch
		}
		if r.CommitID == "" {
			r.CommitID = hit.CommitID
		}
		if r.ContentType == "" {
			r.ContentType = hit.ContentType
		}
		if r.Excerpt == "" {
			r.Excerpt = hit.Excerpt
		}
		return r
	}

	for i, hit := range lex {
		r := add(hit)
		r.LexRank = i + 1
		r.Score += 1.0 / (k + float64(i+1))
	}
	for i, hit := range vec {
		r := add(hit)
		r.VecRank = i + 1
		r.Score += 1.0 / (k + float64(i+1))
	}

	out := make([]SearchResult, 0, len(byFP))
	for _, r := range byFP {
		out = append(out, *r)
	}
	return out
}

// rankByTrails fills each result's trail strength: the strongest current
// retrieval strength over its incident edges. Best-effort; a trail failure
// only flattens the tie-break.
func (e *Engine) rankByTrails(ctx context.Context, results []SearchResult) {
	if len(results) == 0 {
		return
	}
	fps := make([]string, len(results))
	for i := range results {
		fps[i] = results[i].Fingerprint
	}

	edges, err := e.Store.TrailsTouching(ctx, fps)
	if err != nil {
		e.log.Warn().Err(err).Msg("trail lookup failed")
		return
	}

	now := nowMillis()
	strength := make(map[string]float64)
	for i := range edges {
		materializeTrail(&edges[i], now, e.cfg.Decay.AccessWeight)
		for _, fp := range []string{edges[i].Source, edges[i].Target} {
			if edges[i].RetrievalStrength > strength[fp] {
				strength[fp] = edges[i].RetrievalStrength
			}
		}
	}
	for i := range results {
		results[i].TrailStrength = strength[results[i].Fingerprint]
	}
}

// reinforceNeighbors lays trail between consecutive co-retrieved results,
// so things surfaced together grow associated.
func (e *Engine) reinforceNeighbors(ctx context.Context, results []SearchResult) {
	now := nowMillis()
	params := e.trailParams()
	for i := 0; i+1 < len(results); i++ {
		src, dst := results[i].Fingerprint, results[i+1].Fingerprint
		if src == dst {
			continue
		}
		if _, err := e.Store.ReinforceTrail(ctx, src, dst, params, now); err != nil {
			e.log.Warn().Err(err).Msg("co-retrieval reinforcement failed")
			continue
		}
		metrics.TrailReinforcements.Inc()
	}
}

// RecallResult resolves an identifier into content. A fingerprint recall
// carries the unit plus its links and trails; a commit recall carries the
// commit, its snapshot entries, and their units.
type RecallResult struct {
	Unit    *store.ContentUnit  `json:"unit,omitempty"`
	Commit  *store.Commit       `json:"commit,omitempty"`
	Entries []store.TreeEntry   `json:"entries,omitempty"`
	Units   []store.ContentUnit `json:"units,omitempty"`
	Links   []store.Link        `json:"links,omitempty"`
	Trails  []store.TrailEdge   `json:"trails,omitempty"`
}

// Recall resolves an id as a content fingerprint first, then as a commit
// id. Quarantined units stay hidden. Walking a commit's entries reinforces
// the trail between adjacent entries.
func (e *Engine) Recall(ctx context.Context, id string) (*RecallResult, error) {
	if id == "" {
		return nil, store.Invalid("id", "must not be empty")
	}

	unit, err := e.Store.GetBlob(ctx, id)
	if err == nil {
		res := &RecallResult{Unit: unit}
		if links, err := e.Store.LinksFor(ctx, id); err == nil {
			res.Links = links
		}
		if trails, err := e.Store.TrailsTouching(ctx, []string{id}); err == nil {
			materializeTrails(trails, nowMillis(), e.cfg.Decay.AccessWeight)
			res.Trails = trails
		}
		return res, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	commit, err := e.Store.GetCommit(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := e.Store.TreeEntries(ctx, commit.TreeID)
	if err != nil {
		return nil, err
	}

	res := &RecallResult{Commit: commit, Entries: entries}
	for _, entry := range entries {
		u, err := e.Store.GetBlob(ctx, entry.Fingerprint)
		if err != nil {
			continue // quarantined or missing
		}
		res.Units = append(res.Units, *u)
	}

	now := nowMillis()
	params := e.trailParams()
	for i := 0; i+1 < len(entries); i++ {
		if entries[i].Fingerprint == entries[i+1].Fingerprint {
			continue
		}
		if _, err := e.Store.ReinforceTrail(ctx, entries[i].Fingerprint, entries[i+1].Fingerprint, params, now); err == nil {
			metrics.TrailReinforcements.Inc()
		}
	}
	return res, nil
}
