package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/repopilot/repopilot/internal/common"
	"github.com/repopilot/repopilot/internal/ingest"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Repo) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("repo required"))
		return
	}
	logger.Info("api: ingest request", "repo", req.Repo, "branch", req.Branch, "force", req.Force)

	result, err := s.ingestor.Ingest(r.Context(), ingest.Request{
		RemoteURL: req.Repo,
		Branch:    req.Branch,
		Force:     req.Force,
	})
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{Project: result.Project, Reused: result.Reused})
}
