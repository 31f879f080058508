package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleProject(version string) Project {
	return Project{
		RepoID:        "owner_repo",
		RemoteURL:     "https://github.com/owner/repo",
		Branch:        "main",
		VersionID:     version,
		Namespace:     "owner_repo:" + version,
		FragmentCount: 42,
	}
}

func TestRecordAndLoadProject(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.RecordIngestion(ctx, sampleProject("abc123def456")); err != nil {
		t.Fatalf("record ingestion: %v", err)
	}

	got, err := store.Project(ctx, "owner_repo")
	if err != nil {
		t.Fatalf("load project: %v", err)
	}
	if got.Namespace != "owner_repo:abc123def456" || got.FragmentCount != 42 {
		t.Fatalf("unexpected project: %+v", got)
	}
	if got.IngestedAt.IsZero() {
		t.Fatal("ingested_at not stamped")
	}
}

func TestReingestReplacesCurrentSnapshot(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := sampleProject("abc123def456")
	first.IngestedAt = time.Now().Add(-time.Hour).UTC()
	if err := store.RecordIngestion(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := sampleProject("fedcba654321")
	second.FragmentCount = 51
	if err := store.RecordIngestion(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := store.Project(ctx, "owner_repo")
	if err != nil {
		t.Fatal(err)
	}
	if got.VersionID != "fedcba654321" || got.FragmentCount != 51 {
		t.Fatalf("current snapshot not replaced: %+v", got)
	}

	projects, err := store.ListProjects(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 1 {
		t.Fatalf("reingestion must not add project rows, got %d", len(projects))
	}

	runs, err := store.History(ctx, "owner_repo", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("history should keep both runs, got %d", len(runs))
	}
	if runs[0].VersionID != "fedcba654321" {
		t.Fatalf("history not newest-first: %+v", runs[0])
	}
}

func TestListProjectsOrdersByRecency(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	older := sampleProject("aaa111bbb222")
	older.RepoID = "alpha_one"
	older.IngestedAt = time.Now().Add(-2 * time.Hour).UTC()
	newer := sampleProject("ccc333ddd444")
	newer.RepoID = "beta_two"
	newer.IngestedAt = time.Now().UTC()

	if err := store.RecordIngestion(ctx, older); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordIngestion(ctx, newer); err != nil {
		t.Fatal(err)
	}

	projects, err := store.ListProjects(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 2 {
		t.Fatalf("got %d projects, want 2", len(projects))
	}
	if projects[0].RepoID != "beta_two" {
		t.Fatalf("most recent project should list first, got %s", projects[0].RepoID)
	}
}

func TestProjectNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Project(context.Background(), "ghost_repo"); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestRecordIngestionRequiresRepoID(t *testing.T) {
	store := openTestStore(t)
	if err := store.RecordIngestion(context.Background(), Project{}); err == nil {
		t.Fatal("expected error for missing repo id")
	}
}
