package api

import (
	"github.com/repopilot/repopilot/internal/catalog"
	"github.com/repopilot/repopilot/internal/pipeline"
)

type ingestRequest struct {
	Repo   string `json:"repo"`
	Branch string `json:"branch,omitempty"`
	Force  bool   `json:"force,omitempty"`
}

type ingestResponse struct {
	Project catalog.Project `json:"project"`
	Reused  bool            `json:"reused"`
}

type chatRequest struct {
	Repo      string `json:"repo,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	Question  string `json:"question"`
}

type chatResponse struct {
	RequestID string            `json:"request_id"`
	Namespace string            `json:"namespace"`
	Answer    string            `json:"answer"`
	Sources   []pipeline.Source `json:"sources"`
	Provider  string            `json:"provider"`
}

type projectsResponse struct {
	Projects []catalog.Project `json:"projects"`
}

type historyResponse struct {
	RepoID  string            `json:"repo_id"`
	History []catalog.Project `json:"history"`
}
