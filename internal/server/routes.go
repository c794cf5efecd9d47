package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mnemon-ai/mnemon/internal/engine"
	"github.com/mnemon-ai/mnemon/internal/store"
)

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Branch  string   `json:"branch"`
		Author  string   `json:"author"`
		Message string   `json:"message"`
		Tags    []string `json:"tags"`
		Entries []struct {
			Name        string    `json:"name"`
			Text        string    `json:"text"`
			Payload     []byte    `json:"payload"`
			ContentType string    `json:"content_type"`
			Embedding   []float32 `json:"embedding"`
			Fingerprint string    `json:"fingerprint"`
		} `json:"entries"`
		Lineage engine.Lineage `json:"lineage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, store.Invalid("body", "invalid json"))
		return
	}

	in := engine.CommitInput{
		Branch:  req.Branch,
		Author:  req.Author,
		Message: req.Message,
		Tags:    req.Tags,
		Lineage: req.Lineage,
	}
	for _, e := range req.Entries {
		entry := engine.CommitEntry{
			Name:        e.Name,
			Payload:     e.Payload,
			ContentType: e.ContentType,
			Embedding:   e.Embedding,
			Fingerprint: e.Fingerprint,
		}
		// "text" is the convenience form for agent clients that do not
		// want to base64 their payloads.
		if len(entry.Payload) == 0 && e.Text != "" {
			entry.Payload = []byte(e.Text)
			if entry.ContentType == "" {
				entry.ContentType = "text/plain"
			}
		}
		in.Entries = append(in.Entries, entry)
	}

	res, err := s.engine.Commit(r.Context(), in)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, res)
}

func (s *Server) handleBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := s.engine.Branches(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"count":    len(branches),
		"branches": branches,
	})
}

func (s *Server) handleHead(w http.ResponseWriter, r *http.Request) {
	branch := chi.URLParam(r, "branch")
	head, err := s.engine.Head(r.Context(), branch)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, head)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	branch := chi.URLParam(r, "branch")
	limit := queryInt(r, "limit", 20)

	commits, err := s.engine.History(r.Context(), branch, limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"branch":  branch,
		"count":   len(commits),
		"commits": commits,
	})
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	branch := chi.URLParam(r, "branch")
	if err := s.engine.Checkout(r.Context(), branch); err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"branch": branch, "status": "ok"})
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	branch := r.URL.Query().Get("branch")
	tags, err := s.engine.Tags(r.Context(), branch)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"count": len(tags),
		"tags":  tags,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.fail(w, store.Invalid("q", "parameter required"))
		return
	}
	branch := r.URL.Query().Get("branch")
	limit := queryInt(r, "limit", 10)

	results, err := s.engine.Search(r.Context(), query, branch, limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.engine.Recall(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, res)
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	var req engine.LinkInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, store.Invalid("body", "invalid json"))
		return
	}

	link, err := s.engine.Link(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, link)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	g, err := s.engine.Graph(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, g)
}

func (s *Server) handleReflect(w http.ResponseWriter, r *http.Request) {
	minLinks := queryInt(r, "min_links", 2)
	limit := queryInt(r, "limit", 10)

	reflections, err := s.engine.Reflect(r.Context(), minLinks, limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"count":       len(reflections),
		"reflections": reflections,
	})
}

func (s *Server) handleQuarantine(quarantined bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fingerprint := chi.URLParam(r, "fingerprint")
		if err := s.engine.SetQuarantine(r.Context(), fingerprint, quarantined); err != nil {
			s.fail(w, err)
			return
		}
		s.respond(w, http.StatusOK, map[string]any{
			"fingerprint": fingerprint,
			"quarantined": quarantined,
		})
	}
}
