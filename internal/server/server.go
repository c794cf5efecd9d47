package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mnemon-ai/mnemon/internal/engine"
	"github.com/mnemon-ai/mnemon/internal/store"
)

// Server is the mnemon HTTP API server. It owns no state of its own; every
// handler delegates to the engine and translates errors to status codes.
type Server struct {
	engine  *engine.Engine
	router  chi.Router
	log     zerolog.Logger
	version string
	started time.Time
}

// New creates a new Server around an engine.
func New(eng *engine.Engine, version string, log zerolog.Logger) *Server {
	s := &Server{
		engine:  eng,
		version: version,
		log:     log.With().Str("component", "server").Logger(),
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Commit graph
		r.Post("/commits", s.handleCommit)
		r.Get("/branches", s.handleBranches)
		r.Get("/branches/{branch}/head", s.handleHead)
		r.Get("/branches/{branch}/log", s.handleLog)
		r.Post("/branches/{branch}/checkout", s.handleCheckout)
		r.Get("/tags", s.handleTags)

		// Retrieval + associations
		r.Get("/search", s.handleSearch)
		r.Get("/recall/{id}", s.handleRecall)
		r.Post("/links", s.handleLink)
		r.Get("/graph", s.handleGraph)
		r.Get("/reflect", s.handleReflect)

		// Working memory
		r.Post("/candidates", s.handleStage)
		r.Get("/candidates", s.handleCandidates)
		r.Post("/replay-check", s.handleReplayCheck)
		r.Post("/maintenance/run", s.handleMaintenanceRun)
		r.Get("/consolidation/log", s.handleConsolidationLog)

		// Trails + decay
		r.Post("/trails/reinforce", s.handleReinforceTrail)
		r.Get("/trails/hot", s.handleHotTrails)
		r.Get("/trails/health", s.handleTrailHealth)
		r.Get("/trails/buried", s.handleBuriedTrails)
		r.Post("/trails/resurrect", s.handleResurrectTrail)
		r.Get("/trails/{fingerprint}", s.handleTrailsFor)
		r.Get("/decay/forecast", s.handleForecastDecay)

		// Routing
		r.Post("/route/validate", s.handleValidateRouting)

		// Sessions
		r.Post("/sessions/checkpoint", s.handleCheckpoint)
		r.Post("/sessions/{sessionID}/resume", s.handleResume)

		// Review collaborator surface: quarantine hides a unit from recall
		// and retrieval without deleting it.
		r.Put("/quarantine/{fingerprint}", s.handleQuarantine(true))
		r.Delete("/quarantine/{fingerprint}", s.handleQuarantine(false))
	})

	r.Handle("/metrics", promhttp.Handler())

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	s.respond(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"stats":   stats,
	})
}

func (s *Server) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	s.respond(w, status, map[string]string{"error": err.Error(), "code": code})
}

// errorStatus maps store sentinels to HTTP statuses. ErrEmptyBranch shares
// 404 with ErrNotFound but keeps its own code so clients can tell a branch
// with no commits from a branch that does not exist.
func errorStatus(err error) (int, string) {
	var verr *store.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, store.ErrEmptyBranch):
		return http.StatusNotFound, "empty_branch"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrBranchConflict):
		return http.StatusConflict, "branch_conflict"
	case errors.Is(err, store.ErrCapacityExceeded):
		return http.StatusTooManyRequests, "capacity_exceeded"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// queryInt parses an integer query parameter, falling back when absent or
// malformed.
func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
