package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mnemon-ai/mnemon/internal/metrics"
	"github.com/mnemon-ai/mnemon/internal/store"
)

// maintenanceTimeout bounds one full cycle.
const maintenanceTimeout = 5 * time.Minute

// healthSampleCommits is how many recent commits the nightly refresh scores
// against each branch centroid.
const healthSampleCommits = 10

// MaintenanceResult summarizes one full maintenance cycle.
type MaintenanceResult struct {
	RunID             string                  `json:"run_id"`
	StartedAt         int64                   `json:"started_at"`
	DurationMS        int64                   `json:"duration_ms"`
	Consolidation     *store.ConsolidationRun `json:"consolidation"`
	TrailHealth       map[string]int          `json:"trail_health,omitempty"`
	BranchesRefreshed int                     `json:"branches_refreshed"`
}

// RunMaintenance runs the nightly cycle now: candidate sweep and
// consolidation, a branch health re-measure, and a trail health report.
// The scheduled run and the manual trigger share one mutex, so overlapping
// invocations serialize instead of racing.
func (e *Engine) RunMaintenance(ctx context.Context) (*MaintenanceResult, error) {
	e.maintMu.Lock()
	defer e.maintMu.Unlock()

	start := time.Now()
	res := &MaintenanceResult{StartedAt: nowMillis()}

	run, err := e.Consolidate(ctx)
	if err != nil {
		return nil, fmt.Errorf("consolidation: %w", err)
	}
	res.RunID = run.RunID
	res.Consolidation = run

	refreshed, err := e.refreshBranchHealth(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("branch health refresh failed")
	}
	res.BranchesRefreshed = refreshed

	health, err := e.TrailHealth(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("trail health report failed")
	} else {
		res.TrailHealth = health
	}

	res.DurationMS = time.Since(start).Milliseconds()
	metrics.MaintenanceRuns.Inc()
	e.log.Info().Str("run", res.RunID).Int64("duration_ms", res.DurationMS).
		Int("branches_refreshed", refreshed).Msg("maintenance cycle complete")
	return res, nil
}

// refreshBranchHealth re-measures each branch's health from its recent
// commits' embeddings against the centroid, replacing the per-commit EWMA
// drift with a fresh reading. A branch whose centroid moved mid-refresh is
// skipped; the racing commit's fold is newer anyway.
func (e *Engine) refreshBranchHealth(ctx context.Context) (int, error) {
	fps, err := e.Store.ListBranchFingerprints(ctx)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, fp := range fps {
		if len(fp.Centroid) == 0 {
			continue
		}
		measured, ok := e.measureBranchFit(ctx, &fp)
		if !ok {
			continue
		}

		updated := fp
		updated.Health = measured
		err := e.Store.SaveBranchFingerprint(ctx, &updated, fp.CommitCount)
		if errors.Is(err, store.ErrBranchConflict) {
			continue
		}
		if err != nil {
			return refreshed, err
		}
		refreshed++
	}
	return refreshed, nil
}

// measureBranchFit averages the cosine similarity of a branch's recent
// commit embeddings to its centroid. Returns false when nothing on the
// branch carries an embedding.
func (e *Engine) measureBranchFit(ctx context.Context, fp *store.BranchFingerprint) (float64, bool) {
	commits, err := e.Store.Log(ctx, fp.Branch, healthSampleCommits)
	if err != nil {
		if !errors.Is(err, store.ErrEmptyBranch) && !errors.Is(err, store.ErrNotFound) {
			e.log.Warn().Err(err).Str("branch", fp.Branch).Msg("health sample failed")
		}
		return 0, false
	}

	var sum float64
	var n int
	for _, c := range commits {
		entries, err := e.Store.TreeEntries(ctx, c.TreeID)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			unit, err := e.Store.GetBlobAny(ctx, entry.Fingerprint)
			if err != nil || len(unit.Embedding) == 0 {
				continue
			}
			sum += clamp01(CosineSimilarity(unit.Embedding, fp.Centroid))
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// StartMaintenance schedules the nightly cycle per config. No-op when
// maintenance is disabled.
func (e *Engine) StartMaintenance() error {
	if !e.cfg.Maintenance.Enabled {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(e.cfg.Maintenance.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
		defer cancel()
		if _, err := e.RunMaintenance(ctx); err != nil {
			e.log.Error().Err(err).Msg("scheduled maintenance failed")
		}
	})
	if err != nil {
		return fmt.Errorf("maintenance schedule %q: %w", e.cfg.Maintenance.Schedule, err)
	}
	c.Start()
	e.cron = c
	e.log.Info().Str("schedule", e.cfg.Maintenance.Schedule).Msg("maintenance scheduled")
	return nil
}

// Stop halts the maintenance scheduler.
func (e *Engine) Stop() {
	if e.cron != nil {
		e.cron.Stop()
	}
}
