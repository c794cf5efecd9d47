package engine

import (
	"math"

	"github.com/mnemon-ai/mnemon/internal/store"
)

// The dual-strength forgetting model. Storage strength only grows with use;
// retrieval strength decays hyperbolically between accesses and is always
// recomputed from stability and elapsed time, never stored.

// RetrievalStrength returns current accessibility for an edge last traversed
// elapsed hours ago with the given stability (hours). 1.0 at the moment of
// traversal, 0.9 after one stability period, falling toward zero but never
// reaching it.
func RetrievalStrength(elapsedHours, stabilityHours float64) float64 {
	if stabilityHours <= 0 {
		return 0
	}
	if elapsedHours < 0 {
		elapsedHours = 0
	}
	return 1.0 / (1.0 + elapsedHours/(9.0*stabilityHours))
}

// StorageStrength returns the monotone consolidation strength after n
// traversals: ln(1 + w*n). Never recomputed downward.
func StorageStrength(traversals int64, accessWeight float64) float64 {
	if traversals < 0 {
		traversals = 0
	}
	return math.Log(1.0 + accessWeight*float64(traversals))
}

// NextStability folds one reinforcement into stability: the gain is scaled
// by how far the memory had decayed, so refreshing a fresh memory adds
// little and rescuing a faded one adds a lot. Clamped to cap.
func NextStability(current, gain, cap, retrievalOld float64) float64 {
	next := current + gain*(1.0-retrievalOld)
	if next > cap {
		next = cap
	}
	return next
}

// Trail state bands by retrieval strength.
const (
	trailActiveMin  = 0.5
	trailFadingMin  = 0.2
	trailDormantMin = 0.05
)

// TrailState maps a retrieval strength to its state band.
func TrailState(retrieval float64) string {
	switch {
	case retrieval >= trailActiveMin:
		return store.TrailActive
	case retrieval >= trailFadingMin:
		return store.TrailFading
	case retrieval >= trailDormantMin:
		return store.TrailDormant
	default:
		return store.TrailArchived
	}
}

// materializeTrail fills the derived fields of an edge as of now.
func materializeTrail(e *store.TrailEdge, now int64, accessWeight float64) {
	elapsed := float64(now-e.LastTraversed) / float64(3600*1000)
	e.RetrievalStrength = RetrievalStrength(elapsed, e.Stability)
	e.StorageStrength = StorageStrength(e.TraversalCount, accessWeight)
	e.State = TrailState(e.RetrievalStrength)
}

// materializeTrails fills derived fields on a whole slice in place.
func materializeTrails(edges []store.TrailEdge, now int64, accessWeight float64) {
	for i := range edges {
		materializeTrail(&edges[i], now, accessWeight)
	}
}
