package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mnemon-ai/mnemon/internal/store"
)

func (s *Server) handleReinforceTrail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
		Target string `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, store.Invalid("body", "invalid json"))
		return
	}

	edge, err := s.engine.ReinforceTrail(r.Context(), req.Source, req.Target)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, edge)
}

func (s *Server) handleHotTrails(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)

	edges, err := s.engine.HotTrails(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"count":  len(edges),
		"trails": edges,
	})
}

func (s *Server) handleTrailHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.engine.TrailHealth(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, health)
}

func (s *Server) handleBuriedTrails(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)

	edges, err := s.engine.BuriedTrails(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"count":  len(edges),
		"trails": edges,
	})
}

func (s *Server) handleTrailsFor(w http.ResponseWriter, r *http.Request) {
	fingerprint := chi.URLParam(r, "fingerprint")
	direction := r.URL.Query().Get("direction")
	if direction == "" {
		direction = "from"
	}

	var edges []store.TrailEdge
	var err error
	switch direction {
	case "from":
		edges, err = s.engine.TrailsFrom(r.Context(), fingerprint)
	case "to":
		edges, err = s.engine.TrailsTo(r.Context(), fingerprint)
	default:
		s.fail(w, store.Invalid("direction", "must be from or to"))
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"fingerprint": fingerprint,
		"direction":   direction,
		"count":       len(edges),
		"trails":      edges,
	})
}

func (s *Server) handleResurrectTrail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
		Target string `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, store.Invalid("body", "invalid json"))
		return
	}

	edge, err := s.engine.ResurrectTrail(r.Context(), req.Source, req.Target)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, edge)
}

func (s *Server) handleForecastDecay(w http.ResponseWriter, r *http.Request) {
	hours := 24.0
	if v := r.URL.Query().Get("hours"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			hours = f
		}
	}
	limit := queryInt(r, "limit", 50)

	forecasts, err := s.engine.ForecastDecay(r.Context(), hours, limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"hours":     hours,
		"count":     len(forecasts),
		"forecasts": forecasts,
	})
}

func (s *Server) handleValidateRouting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text      string    `json:"text"`
		Embedding []float32 `json:"embedding"`
		Branch    string    `json:"branch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, store.Invalid("body", "invalid json"))
		return
	}

	decision, err := s.engine.ValidateRouting(r.Context(), req.Text, req.Embedding, req.Branch)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, decision)
}
