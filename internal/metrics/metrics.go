// Package metrics exposes mnemon's prometheus collectors. Registration is
// package-level via promauto; the server mounts promhttp on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommitCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mnemon_commits_total",
			Help: "Total number of commits, by branch",
		},
		[]string{"branch"},
	)

	CommitConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mnemon_commit_conflicts_total",
			Help: "Total number of branch head conflicts, including retried ones",
		},
	)

	SearchCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mnemon_searches_total",
			Help: "Total number of hybrid searches",
		},
	)

	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "mnemon_search_duration_seconds",
			Help: "Hybrid search duration in seconds",
		},
	)

	CandidatesStaged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mnemon_candidates_staged_total",
			Help: "Total number of candidates staged",
		},
	)

	CandidatesPromoted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mnemon_candidates_promoted_total",
			Help: "Total number of candidates promoted into the commit graph",
		},
	)

	CandidatesExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mnemon_candidates_expired_total",
			Help: "Total number of candidates expired without promotion",
		},
	)

	TrailReinforcements = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mnemon_trail_reinforcements_total",
			Help: "Total number of trail edge reinforcements",
		},
	)

	MaintenanceRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mnemon_maintenance_runs_total",
			Help: "Total number of maintenance cycles, scheduled or manual",
		},
	)

	ActiveCandidates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mnemon_active_candidates",
			Help: "Current number of active candidates in the staging buffer",
		},
	)
)
