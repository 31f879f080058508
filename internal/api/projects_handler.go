package api

import (
	"net/http"
	"strconv"

	chi "github.com/go-chi/chi/v5"

	"github.com/repopilot/repopilot/internal/common"
)

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.registry.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, projectsResponse{Projects: projects})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	repoID := chi.URLParam(r, "repoID")
	if _, err := s.registry.Project(r.Context(), repoID); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	runs, err := s.registry.History(r.Context(), repoID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{RepoID: repoID, History: runs})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": common.LogEntries()})
}
