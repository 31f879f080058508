package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/repopilot/repopilot/internal/catalog"
	"github.com/repopilot/repopilot/internal/common"
	"github.com/repopilot/repopilot/internal/common/telemetry"
	"github.com/repopilot/repopilot/internal/pipeline"
	"github.com/repopilot/repopilot/internal/snapshot"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Repo) == "" && strings.TrimSpace(req.Namespace) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("repo or namespace required"))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("question required"))
		return
	}

	// An explicit namespace pins the question to one snapshot version;
	// otherwise the repo reference resolves to its current registration.
	namespace := strings.TrimSpace(req.Namespace)
	if namespace == "" {
		project, err := s.resolveProject(r.Context(), req.Repo)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		namespace = project.Namespace
	}
	logger.Info("api: chat request", "namespace", namespace)

	started := time.Now()
	state, err := s.asker.Ask(r.Context(), namespace, req.Question)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	telemetry.RecordChat(time.Since(started))
	writeJSON(w, http.StatusOK, chatResponse{
		RequestID: state.ID,
		Namespace: state.Namespace,
		Answer:    state.Answer,
		Sources:   pipeline.Sources(state.Hits),
		Provider:  s.provider.Name(),
	})
}

// resolveProject accepts either a registered repo_id or a remote reference
// and returns the catalog registration serving it.
func (s *Server) resolveProject(ctx context.Context, repo string) (catalog.Project, error) {
	repo = strings.TrimSpace(repo)
	if project, err := s.registry.Project(ctx, repo); err == nil {
		return project, nil
	}
	normalized, err := snapshot.NormalizeRemote(repo)
	if err != nil {
		return catalog.Project{}, err
	}
	return s.registry.Project(ctx, snapshot.RepoID(normalized))
}
