package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mnemon-ai/mnemon/internal/engine"
	"github.com/mnemon-ai/mnemon/internal/store"
)

func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Branch           string    `json:"branch"`
		Text             string    `json:"text"`
		Payload          []byte    `json:"payload"`
		ContentType      string    `json:"content_type"`
		ContentEmbedding []float32 `json:"content_embedding"`
		ContextEmbedding []float32 `json:"context_embedding"`
		Salience         float64   `json:"salience"`
		TTLHours         int       `json:"ttl_hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, store.Invalid("body", "invalid json"))
		return
	}

	in := engine.StageInput{
		Branch:           req.Branch,
		Payload:          req.Payload,
		ContentType:      req.ContentType,
		ContentEmbedding: req.ContentEmbedding,
		ContextEmbedding: req.ContextEmbedding,
		Salience:         req.Salience,
		TTLHours:         req.TTLHours,
	}
	if len(in.Payload) == 0 && req.Text != "" {
		in.Payload = []byte(req.Text)
		if in.ContentType == "" {
			in.ContentType = "text/plain"
		}
	}

	c, err := s.engine.Stage(r.Context(), in)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, c)
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	branch := r.URL.Query().Get("branch")
	limit := queryInt(r, "limit", 50)

	candidates, err := s.engine.Candidates(r.Context(), status, branch, limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"count":      len(candidates),
		"candidates": candidates,
	})
}

func (s *Server) handleReplayCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContextText      string    `json:"context_text"`
		ContextEmbedding []float32 `json:"context_embedding"`
		SessionID        string    `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, store.Invalid("body", "invalid json"))
		return
	}

	embedding := req.ContextEmbedding
	if len(embedding) == 0 && req.ContextText != "" && s.engine.Embedder != nil {
		vec, err := s.engine.Embedder.Embed(r.Context(), req.ContextText)
		if err != nil {
			s.fail(w, err)
			return
		}
		embedding = vec
	}

	matches, err := s.engine.ReplayCheck(r.Context(), embedding, req.SessionID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"count":   len(matches),
		"replays": matches,
	})
}

func (s *Server) handleMaintenanceRun(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.RunMaintenance(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, res)
}

func (s *Server) handleConsolidationLog(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)

	runs, err := s.engine.ConsolidationLog(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"count": len(runs),
		"runs":  runs,
	})
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req engine.CheckpointInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, store.Invalid("body", "invalid json"))
		return
	}

	sess, err := s.engine.Checkpoint(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, sess)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	res, err := s.engine.Resume(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, res)
}
