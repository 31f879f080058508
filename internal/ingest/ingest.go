// Package ingest turns a remote repository reference into an indexed,
// queryable snapshot: acquire the working tree, chunk its indexable files,
// embed the fragments, and register the result in the catalog.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/repopilot/repopilot/internal/catalog"
	"github.com/repopilot/repopilot/internal/common"
	"github.com/repopilot/repopilot/internal/common/telemetry"
	"github.com/repopilot/repopilot/internal/kb"
	"github.com/repopilot/repopilot/internal/snapshot"
	"github.com/repopilot/repopilot/internal/vector"
)

const (
	// embedBatchSize bounds one embedding request.
	embedBatchSize = 64
	// upsertBatchSize bounds one vector store write.
	upsertBatchSize = 100
)

// ErrEmptyIndexable marks a snapshot that produced zero fragments: nothing in
// the working tree was admissible for indexing.
var ErrEmptyIndexable = errors.New("snapshot contains no indexable content")

// Embedder is the embedding collaborator; the llm provider satisfies it.
type Embedder interface {
	Embed(ctx context.Context, input []string) ([][]float32, error)
}

// Request names what to ingest. Branch may be empty; Force re-indexes even
// when the snapshot version is already registered.
type Request struct {
	RemoteURL string
	Branch    string
	Force     bool
}

// Result reports an ingestion outcome. Reused is true when the snapshot
// version was already indexed and no re-embedding happened.
type Result struct {
	Project catalog.Project
	Reused  bool
}

// Service orchestrates the full ingestion flow.
type Service struct {
	snapshots *snapshot.Manager
	embedder  Embedder
	store     vector.Store
	registry  *catalog.Store
}

func NewService(snapshots *snapshot.Manager, embedder Embedder, store vector.Store, registry *catalog.Store) *Service {
	return &Service{snapshots: snapshots, embedder: embedder, store: store, registry: registry}
}

// Ingest acquires the snapshot and indexes it. Re-running against an
// unchanged remote tip is cheap: the version already registered in the
// catalog is reused unless Force is set.
func (s *Service) Ingest(ctx context.Context, req Request) (Result, error) {
	logger := common.Logger()
	started := time.Now()

	snap, err := s.snapshots.Acquire(ctx, req.RemoteURL, req.Branch)
	if err != nil {
		return Result{}, err
	}

	if !req.Force {
		if existing, err := s.registry.Project(ctx, snap.RepoID); err == nil &&
			existing.Namespace == snap.Namespace() && existing.FragmentCount > 0 {
			logger.Info("ingest: snapshot version already indexed",
				"repo_id", snap.RepoID, "namespace", existing.Namespace)
			return Result{Project: existing, Reused: true}, nil
		}
	}

	fragments, err := collectFragments(snap)
	if err != nil {
		return Result{}, err
	}
	if len(fragments) == 0 {
		return Result{}, fmt.Errorf("%w: %s at %s", ErrEmptyIndexable, snap.RepoID, snap.VersionID)
	}

	if err := s.indexFragments(ctx, snap.Namespace(), fragments); err != nil {
		return Result{}, err
	}

	project := catalog.Project{
		RepoID:        snap.RepoID,
		RemoteURL:     snap.RemoteURL,
		Branch:        snap.Branch,
		VersionID:     snap.VersionID,
		Namespace:     snap.Namespace(),
		FragmentCount: len(fragments),
		IngestedAt:    time.Now().UTC(),
	}
	if err := s.registry.RecordIngestion(ctx, project); err != nil {
		return Result{}, fmt.Errorf("register ingestion: %w", err)
	}

	telemetry.RecordIngest(len(fragments))
	logger.Info("ingest: complete",
		"repo_id", snap.RepoID, "namespace", snap.Namespace(),
		"fragments", len(fragments), "elapsed", time.Since(started).Round(time.Millisecond))
	return Result{Project: project}, nil
}

// collectFragments walks the snapshot tree and chunks every admissible file,
// stamping each fragment with the snapshot namespace.
func collectFragments(snap snapshot.Snapshot) ([]kb.Fragment, error) {
	namespace := snap.Namespace()
	var fragments []kb.Fragment
	err := kb.Walk(snap.RootPath, func(relPath, text string) bool {
		for _, frag := range kb.ChunkText(relPath, text) {
			frag.Namespace = namespace
			fragments = append(fragments, frag)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("walk snapshot: %w", err)
	}
	return fragments, nil
}

// indexFragments embeds and upserts fragments in bounded batches. Fragment
// IDs are deterministic, so a retried or repeated run overwrites in place
// rather than duplicating.
func (s *Service) indexFragments(ctx context.Context, namespace string, fragments []kb.Fragment) error {
	logger := common.Logger()
	records := make([]vector.Record, 0, len(fragments))

	for start := 0; start < len(fragments); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(fragments) {
			end = len(fragments)
		}
		batch := fragments[start:end]
		texts := make([]string, len(batch))
		for i, frag := range batch {
			texts[i] = frag.Text
		}
		vectors, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed fragments %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedder returned %d vectors for %d fragments", len(vectors), len(batch))
		}
		for i, frag := range batch {
			records = append(records, vector.Record{
				ID:      frag.ID(),
				Vector:  vectors[i],
				Payload: frag.Metadata(),
			})
		}
	}

	for start := 0; start < len(records); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := s.store.Upsert(ctx, namespace, records[start:end]); err != nil {
			return fmt.Errorf("upsert fragments %d-%d: %w", start, end, err)
		}
	}

	logger.Debug("ingest: fragments indexed", "namespace", namespace, "count", len(records))
	return nil
}
