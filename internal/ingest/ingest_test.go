package ingest

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/repopilot/repopilot/internal/catalog"
	"github.com/repopilot/repopilot/internal/llm/providers"
	"github.com/repopilot/repopilot/internal/retriever"
	"github.com/repopilot/repopilot/internal/snapshot"
	"github.com/repopilot/repopilot/internal/vector"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

func gitFixture(t *testing.T, dir string, args ...string) {
	t.Helper()
	full := append([]string{
		"-c", "user.email=test@example.com",
		"-c", "user.name=test",
		"-c", "commit.gpgsign=false",
	}, args...)
	cmd := exec.Command("git", full...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
}

func initOrigin(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "origin")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	gitFixture(t, dir, "init")
	gitFixture(t, dir, "symbolic-ref", "HEAD", "refs/heads/main")
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	gitFixture(t, dir, "add", ".")
	gitFixture(t, dir, "commit", "-m", "initial")
	return "file://" + dir
}

type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, input []string) ([][]float32, error) {
	c.calls++
	out := make([][]float32, len(input))
	for i := range input {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// memStore is an in-memory vector.Store keyed by namespace and record ID.
type memStore struct {
	upserts int
	data    map[string]map[string]vector.Record
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]map[string]vector.Record)}
}

func (m *memStore) Available() bool { return true }

func (m *memStore) Upsert(ctx context.Context, namespace string, records []vector.Record) error {
	m.upserts++
	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string]vector.Record)
		m.data[namespace] = ns
	}
	for _, rec := range records {
		ns[rec.ID] = rec
	}
	return nil
}

func (m *memStore) Query(ctx context.Context, namespace string, vec []float32, topK int) ([]vector.SearchResult, error) {
	var out []vector.SearchResult
	for _, rec := range m.data[namespace] {
		out = append(out, vector.SearchResult{ID: rec.ID, Score: 1, Payload: rec.Payload})
		if len(out) >= topK {
			break
		}
	}
	return out, nil
}

func newTestService(t *testing.T) (*Service, *memStore, *countingEmbedder, *catalog.Store) {
	t.Helper()
	mgr, err := snapshot.NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	registry, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { registry.Close() })
	store := newMemStore()
	embedder := &countingEmbedder{}
	return NewService(mgr, embedder, store, registry), store, embedder, registry
}

func TestIngestIndexesAndRegisters(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	remote := initOrigin(t, map[string]string{
		"README.md":   "# demo\n\nA sample project.\n",
		"src/main.py": "def main():\n    pass\n",
	})
	svc, store, _, registry := newTestService(t)

	result, err := svc.Ingest(ctx, Request{RemoteURL: remote})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if result.Reused {
		t.Fatal("first ingestion must not report reuse")
	}
	if result.Project.FragmentCount != 2 {
		t.Fatalf("fragment count = %d, want 2", result.Project.FragmentCount)
	}
	ns := result.Project.Namespace
	if !strings.Contains(ns, ":") {
		t.Fatalf("namespace missing version separator: %q", ns)
	}
	if got := len(store.data[ns]); got != 2 {
		t.Fatalf("vector store holds %d records in %s, want 2", got, ns)
	}
	for id, rec := range store.data[ns] {
		if !strings.HasPrefix(id, ns+":") {
			t.Errorf("record id %q not namespaced", id)
		}
		if rec.Payload["path"] == "" {
			t.Errorf("record %q payload missing path", id)
		}
	}

	project, err := registry.Project(ctx, result.Project.RepoID)
	if err != nil {
		t.Fatalf("project not registered: %v", err)
	}
	if project.Namespace != ns {
		t.Fatalf("catalog namespace %q != result namespace %q", project.Namespace, ns)
	}
}

func TestIngestUnchangedVersionIsReused(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	remote := initOrigin(t, map[string]string{"README.md": "# demo\n"})
	svc, _, embedder, _ := newTestService(t)

	first, err := svc.Ingest(ctx, Request{RemoteURL: remote})
	if err != nil {
		t.Fatal(err)
	}
	embedsAfterFirst := embedder.calls

	second, err := svc.Ingest(ctx, Request{RemoteURL: remote})
	if err != nil {
		t.Fatal(err)
	}
	if !second.Reused {
		t.Fatal("unchanged version should be reused")
	}
	if second.Project.Namespace != first.Project.Namespace {
		t.Fatalf("namespace changed without remote change: %q vs %q",
			first.Project.Namespace, second.Project.Namespace)
	}
	if embedder.calls != embedsAfterFirst {
		t.Fatalf("reused ingestion re-embedded: %d calls, had %d", embedder.calls, embedsAfterFirst)
	}
}

func TestIngestForceReindexes(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	remote := initOrigin(t, map[string]string{"README.md": "# demo\n"})
	svc, _, embedder, _ := newTestService(t)

	if _, err := svc.Ingest(ctx, Request{RemoteURL: remote}); err != nil {
		t.Fatal(err)
	}
	embedsAfterFirst := embedder.calls

	result, err := svc.Ingest(ctx, Request{RemoteURL: remote, Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if result.Reused {
		t.Fatal("forced ingestion must not report reuse")
	}
	if embedder.calls <= embedsAfterFirst {
		t.Fatal("forced ingestion should re-embed")
	}
}

func TestIngestEmptyRepository(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	// Only a binary file: admissible extensions never match, so the walk
	// yields nothing indexable.
	remote := initOrigin(t, map[string]string{"logo.png": "\x89PNG\r\n"})
	svc, _, _, _ := newTestService(t)

	if _, err := svc.Ingest(ctx, Request{RemoteURL: remote}); !errors.Is(err, ErrEmptyIndexable) {
		t.Fatalf("error = %v, want ErrEmptyIndexable", err)
	}
}

func TestIngestThenRetrieveRanksReadmeAboveSource(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	remote := initOrigin(t, map[string]string{
		"README.md":   "# demo\n\nA sample project for onboarding questions.\n",
		"src/main.py": "def main():\n    print('hello')\n",
	})

	mgr, err := snapshot.NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	registry, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { registry.Close() })
	store := newMemStore()
	provider := providers.NewLocalProvider()

	result, err := NewService(mgr, provider, store, registry).Ingest(ctx, Request{RemoteURL: remote})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	hits, err := retriever.New(provider, store).Retrieve(ctx, result.Project.Namespace, "what is this project")
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want both indexed fragments", len(hits))
	}
	if hits[0].Fragment.Path != "README.md" {
		t.Fatalf("README should rank above source, got %s first", hits[0].Fragment.Path)
	}
	if hits[1].Fragment.Path != "src/main.py" {
		t.Fatalf("source fragment missing from results: %+v", hits[1].Fragment)
	}
	if hits[0].Fragment.Text == "" || hits[0].Fragment.StartLine != 1 {
		t.Fatalf("fragment payload did not survive the round trip: %+v", hits[0].Fragment)
	}
}

func TestIngestInvalidReference(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.Ingest(context.Background(), Request{RemoteURL: "https://github.com/only-owner"})
	if !errors.Is(err, snapshot.ErrInvalidReference) {
		t.Fatalf("error = %v, want ErrInvalidReference", err)
	}
}
