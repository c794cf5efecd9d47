package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mnemon-ai/mnemon/internal/store"
)

// centroidRetries bounds the CAS loop when folding an embedding into a
// branch centroid.
const centroidRetries = 5

// healthAlpha is the EWMA weight for branch health: each commit's cosine to
// the prior centroid moves health by a tenth.
const healthAlpha = 0.1

// minSuggestSimilarity keeps the router from suggesting a branch it barely
// matches either.
const minSuggestSimilarity = 0.4

// BranchScore is one branch's similarity to the routed content.
type BranchScore struct {
	Branch     string  `json:"branch"`
	Similarity float64 `json:"similarity"`
}

// RouteDecision is the outcome of a routing check. Suggest and warn are
// advisory; nothing in the engine blocks on them.
type RouteDecision struct {
	Decision   string        `json:"decision"` // accept, suggest, warn
	Declared   string        `json:"declared"`
	Suggested  string        `json:"suggested,omitempty"`
	Similarity float64       `json:"similarity"` // declared branch's score
	Gap        float64       `json:"gap"`        // best score minus declared score
	Health     float64       `json:"health"`     // declared branch's health
	Scores     []BranchScore `json:"scores,omitempty"`
	Message    string        `json:"message,omitempty"`
}

// ValidateRouting scores content against every branch centroid. Accept when
// the declared branch is within suggest_gap of the best fit; suggest when
// another branch is materially better; warn when the declared branch's
// health has drifted below the floor. Text is embedded when no embedding is
// given.
func (e *Engine) ValidateRouting(ctx context.Context, text string, embedding []float32, declared string) (*RouteDecision, error) {
	if declared == "" {
		return nil, store.Invalid("branch", "must not be empty")
	}
	if embedding == nil {
		embedding = e.embed(ctx, text)
	}
	if embedding == nil {
		return &RouteDecision{
			Decision: "accept",
			Declared: declared,
			Message:  "no embedding available, routing unchecked",
		}, nil
	}

	fps, err := e.Store.ListBranchFingerprints(ctx)
	if err != nil {
		return nil, err
	}

	decision := &RouteDecision{Decision: "accept", Declared: declared}
	declaredFound := false
	for _, fp := range fps {
		if len(fp.Centroid) == 0 {
			continue
		}
		score := BranchScore{Branch: fp.Branch, Similarity: CosineSimilarity(embedding, fp.Centroid)}
		decision.Scores = append(decision.Scores, score)
		if fp.Branch == declared {
			declaredFound = true
			decision.Similarity = score.Similarity
			decision.Health = fp.Health
		}
	}
	if len(decision.Scores) == 0 {
		decision.Message = "no branch centroids yet"
		return decision, nil
	}

	sort.Slice(decision.Scores, func(i, j int) bool {
		if decision.Scores[i].Similarity != decision.Scores[j].Similarity {
			return decision.Scores[i].Similarity > decision.Scores[j].Similarity
		}
		return decision.Scores[i].Branch < decision.Scores[j].Branch
	})

	best := decision.Scores[0]
	decision.Gap = best.Similarity - decision.Similarity

	switch {
	case best.Branch != declared &&
		decision.Gap > e.cfg.Router.SuggestGap &&
		best.Similarity >= minSuggestSimilarity:
		decision.Decision = "suggest"
		decision.Suggested = best.Branch
		decision.Message = fmt.Sprintf("content fits %s better (%.2f vs %.2f)",
			best.Branch, best.Similarity, decision.Similarity)
	case declaredFound && decision.Health < e.cfg.Router.DriftFloor:
		decision.Decision = "warn"
		decision.Message = fmt.Sprintf("branch %s health %.2f is below the drift floor %.2f",
			declared, decision.Health, e.cfg.Router.DriftFloor)
	}
	return decision, nil
}

// updateCentroid folds one embedding into the branch's running centroid and
// refreshes its health, guarded by the commit count so concurrent folds
// never lose an update.
func (e *Engine) updateCentroid(ctx context.Context, branch string, embedding []float32) error {
	var lastErr error
	for attempt := 0; attempt < centroidRetries; attempt++ {
		fp, err := e.Store.GetBranchFingerprint(ctx, branch)
		if errors.Is(err, store.ErrNotFound) {
			seed := make([]float32, len(embedding))
			copy(seed, embedding)
			fresh := &store.BranchFingerprint{
				Branch:      branch,
				Centroid:    seed,
				CommitCount: 1,
				Health:      1.0,
			}
			err = e.Store.SaveBranchFingerprint(ctx, fresh, 0)
			if err == nil {
				return nil
			}
			if errors.Is(err, store.ErrBranchConflict) {
				lastErr = err
				continue
			}
			return err
		}
		if err != nil {
			return err
		}

		if len(fp.Centroid) != len(embedding) {
			e.log.Warn().Str("branch", branch).
				Int("centroid_dims", len(fp.Centroid)).Int("embedding_dims", len(embedding)).
				Msg("embedding dimension mismatch, centroid not folded")
			return nil
		}

		sim := CosineSimilarity(embedding, fp.Centroid)
		n := float64(fp.CommitCount)
		next := make([]float32, len(fp.Centroid))
		for i := range fp.Centroid {
			next[i] = float32((float64(fp.Centroid[i])*n + float64(embedding[i])) / (n + 1))
		}

		health := (1-healthAlpha)*fp.Health + healthAlpha*clamp01(sim)
		updated := &store.BranchFingerprint{
			Branch:      branch,
			Centroid:    next,
			CommitCount: fp.CommitCount + 1,
			Health:      health,
		}
		err = e.Store.SaveBranchFingerprint(ctx, updated, fp.CommitCount)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrBranchConflict) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("centroid update after %d attempts: %w", centroidRetries, lastErr)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
