package engine

import (
	"context"
	"sort"

	"github.com/mnemon-ai/mnemon/internal/metrics"
	"github.com/mnemon-ai/mnemon/internal/store"
)

// buriedMinRatio is elapsed/stability at the dormant boundary: retrieval
// strength 1/(1+36/9) = 0.2. Edges past it have decayed out of easy reach.
const buriedMinRatio = 36.0

// buriedMinTraversals keeps one-off edges out of the buried list; buried
// means well-worn but faded, not merely old.
const buriedMinTraversals = 3

func (e *Engine) trailParams() store.TrailParams {
	return store.TrailParams{
		BaseStability: e.cfg.Decay.StabilityBaseHours,
		Gain:          e.cfg.Decay.StabilityGainHours,
		Cap:           e.cfg.Decay.StabilityCapHours,
	}
}

// ReinforceTrail folds one traversal into the edge between two units,
// creating it at base stability on first use. Returns the edge with derived
// strengths as of now.
func (e *Engine) ReinforceTrail(ctx context.Context, source, target string) (*store.TrailEdge, error) {
	if source == "" || target == "" {
		return nil, store.Invalid("trail", "source and target required")
	}
	if source == target {
		return nil, store.Invalid("trail", "source and target must differ")
	}

	now := nowMillis()
	edge, err := e.Store.ReinforceTrail(ctx, source, target, e.trailParams(), now)
	if err != nil {
		return nil, err
	}
	materializeTrail(edge, now, e.cfg.Decay.AccessWeight)
	metrics.TrailReinforcements.Inc()
	return edge, nil
}

// HotTrails returns the edges with the highest current retrieval strength.
func (e *Engine) HotTrails(ctx context.Context, limit int) ([]store.TrailEdge, error) {
	now := nowMillis()
	edges, err := e.Store.HotTrails(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	materializeTrails(edges, now, e.cfg.Decay.AccessWeight)
	return edges, nil
}

// TrailsFrom returns outgoing edges of a unit, strongest first.
func (e *Engine) TrailsFrom(ctx context.Context, fingerprint string) ([]store.TrailEdge, error) {
	edges, err := e.Store.TrailsFrom(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	materializeTrails(edges, nowMillis(), e.cfg.Decay.AccessWeight)
	return edges, nil
}

// TrailsTo returns incoming edges of a unit, strongest first.
func (e *Engine) TrailsTo(ctx context.Context, fingerprint string) ([]store.TrailEdge, error) {
	edges, err := e.Store.TrailsTo(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	materializeTrails(edges, nowMillis(), e.cfg.Decay.AccessWeight)
	return edges, nil
}

// BuriedTrails returns well-worn edges whose retrieval strength has decayed
// into dormancy: high storage strength, little current accessibility.
func (e *Engine) BuriedTrails(ctx context.Context, limit int) ([]store.TrailEdge, error) {
	if limit <= 0 {
		limit = 20
	}
	now := nowMillis()
	edges, err := e.Store.BuriedTrails(ctx, now, buriedMinRatio, limit*2)
	if err != nil {
		return nil, err
	}

	var out []store.TrailEdge
	for _, edge := range edges {
		if edge.TraversalCount < buriedMinTraversals {
			continue
		}
		out = append(out, edge)
		if len(out) == limit {
			break
		}
	}
	materializeTrails(out, now, e.cfg.Decay.AccessWeight)
	return out, nil
}

// ResurrectTrail deliberately revives a buried edge: stability doubles
// within the cap and the edge counts as traversed now, putting it back in
// the active band.
func (e *Engine) ResurrectTrail(ctx context.Context, source, target string) (*store.TrailEdge, error) {
	now := nowMillis()
	edge, err := e.Store.ResurrectTrail(ctx, source, target, e.cfg.Decay.StabilityCapHours, now)
	if err != nil {
		return nil, err
	}
	materializeTrail(edge, now, e.cfg.Decay.AccessWeight)
	e.log.Info().Str("source", source).Str("target", target).
		Float64("stability", edge.Stability).Msg("trail resurrected")
	return edge, nil
}

// TrailHealth counts edges per state band.
func (e *Engine) TrailHealth(ctx context.Context) (map[string]int, error) {
	edges, err := e.Store.AllTrails(ctx, 0)
	if err != nil {
		return nil, err
	}
	now := nowMillis()
	counts := map[string]int{
		store.TrailActive:   0,
		store.TrailFading:   0,
		store.TrailDormant:  0,
		store.TrailArchived: 0,
	}
	for i := range edges {
		materializeTrail(&edges[i], now, e.cfg.Decay.AccessWeight)
		counts[edges[i].State]++
	}
	return counts, nil
}

// TrailForecast projects one edge's retrieval strength into the future.
type TrailForecast struct {
	Source         string  `json:"source"`
	Target         string  `json:"target"`
	TraversalCount int64   `json:"traversal_count"`
	Stability      float64 `json:"stability"`
	Current        float64 `json:"current"`
	Projected      float64 `json:"projected"`
	State          string  `json:"state"`
	ProjectedState string  `json:"projected_state"`
}

// ForecastDecay projects every edge afterHours into the future, most
// at-risk first, so callers can see what is about to slip away.
func (e *Engine) ForecastDecay(ctx context.Context, afterHours float64, limit int) ([]TrailForecast, error) {
	if afterHours <= 0 {
		afterHours = 24
	}
	edges, err := e.Store.AllTrails(ctx, 0)
	if err != nil {
		return nil, err
	}

	now := nowMillis()
	forecasts := make([]TrailForecast, 0, len(edges))
	for _, edge := range edges {
		elapsed := float64(now-edge.LastTraversed) / float64(3600*1000)
		current := RetrievalStrength(elapsed, edge.Stability)
		projected := RetrievalStrength(elapsed+afterHours, edge.Stability)
		forecasts = append(forecasts, TrailForecast{
			Source:         edge.Source,
			Target:         edge.Target,
			TraversalCount: edge.TraversalCount,
			Stability:      edge.Stability,
			Current:        current,
			Projected:      projected,
			State:          TrailState(current),
			ProjectedState: TrailState(projected),
		})
	}

	sort.Slice(forecasts, func(i, j int) bool {
		if forecasts[i].Projected != forecasts[j].Projected {
			return forecasts[i].Projected < forecasts[j].Projected
		}
		if forecasts[i].Source != forecasts[j].Source {
			return forecasts[i].Source < forecasts[j].Source
		}
		return forecasts[i].Target < forecasts[j].Target
	})

	if limit > 0 && len(forecasts) > limit {
		forecasts = forecasts[:limit]
	}
	return forecasts, nil
}
