// Package api exposes the HTTP surface: ingestion, question answering, the
// project listing, and operational endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/repopilot/repopilot/internal/catalog"
	"github.com/repopilot/repopilot/internal/common"
	"github.com/repopilot/repopilot/internal/common/telemetry"
	"github.com/repopilot/repopilot/internal/ingest"
	"github.com/repopilot/repopilot/internal/llm"
	"github.com/repopilot/repopilot/internal/pipeline"
	"github.com/repopilot/repopilot/internal/snapshot"
)

// Ingestor runs the ingestion flow for one request.
type Ingestor interface {
	Ingest(ctx context.Context, req ingest.Request) (ingest.Result, error)
}

// Asker answers one question against a snapshot namespace.
type Asker interface {
	Ask(ctx context.Context, namespace, question string) (*pipeline.State, error)
}

// ProjectDirectory is the read side of the catalog.
type ProjectDirectory interface {
	Project(ctx context.Context, repoID string) (catalog.Project, error)
	ListProjects(ctx context.Context) ([]catalog.Project, error)
	History(ctx context.Context, repoID string, limit int) ([]catalog.Project, error)
}

type Server struct {
	router   chi.Router
	ingestor Ingestor
	asker    Asker
	registry ProjectDirectory
	provider llm.Provider
}

func NewServer(ingestor Ingestor, asker Asker, registry ProjectDirectory, provider llm.Provider) *Server {
	srv := &Server{
		router:   chi.NewRouter(),
		ingestor: ingestor,
		asker:    asker,
		registry: registry,
		provider: provider,
	}
	srv.routes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	logger := common.Logger()
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start), "remote", r.RemoteAddr)
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.router.Post("/v1/ingest", s.handleIngest)
	s.router.Post("/v1/chat", s.handleChat)
	s.router.Get("/v1/projects", s.handleProjects)
	s.router.Get("/v1/projects/{repoID}/history", s.handleHistory)
	s.router.Get("/v1/logs", s.handleLogs)
	s.router.Method(http.MethodGet, "/debug/vars", telemetry.Handler())
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	logger := common.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusForError maps domain failures onto HTTP statuses. Anything
// unrecognized is a server error.
func statusForError(err error) int {
	switch {
	case errors.Is(err, snapshot.ErrInvalidReference):
		return http.StatusBadRequest
	case errors.Is(err, snapshot.ErrSnapshotBusy):
		return http.StatusConflict
	case errors.Is(err, snapshot.ErrNoBranchFound):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrEmptyIndexable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, catalog.ErrProjectNotFound):
		return http.StatusNotFound
	case snapshot.IsAcquisitionFailed(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
