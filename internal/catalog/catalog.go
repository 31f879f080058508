// Package catalog keeps the durable registry of ingested snapshots in an
// embedded SQLite database. One row per repository records the snapshot
// currently answering questions; an append-only history table records every
// ingestion run.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Project is the current snapshot registration for one repository.
type Project struct {
	RepoID        string    `db:"repo_id" json:"repo_id"`
	RemoteURL     string    `db:"remote_url" json:"remote_url"`
	Branch        string    `db:"branch" json:"branch"`
	VersionID     string    `db:"version_id" json:"version_id"`
	Namespace     string    `db:"namespace" json:"namespace"`
	FragmentCount int       `db:"fragment_count" json:"fragment_count"`
	IngestedAt    time.Time `db:"ingested_at" json:"ingested_at"`
}

// ErrProjectNotFound marks a lookup for a repository that was never ingested.
var ErrProjectNotFound = errors.New("project not found in catalog")

// Store wraps a pooled sqlx.DB connection to the SQLite catalog.
type Store struct {
	db *sqlx.DB
}

// Open constructs a Store backed by the SQLite database at the provided
// path, overriding the environment configuration. The schema is migrated on
// first use.
func Open(path string) (*Store, error) {
	cfg := LoadConfig()
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		cfg.Path = trimmed
	}
	return OpenWithConfig(cfg)
}

// OpenWithConfig constructs a Store using the provided configuration.
func OpenWithConfig(cfg Config) (*Store, error) {
	cfg.applyDefaults()
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog path: %w", err)
	}
	busy := int(cfg.BusyTimeout / time.Millisecond)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(wal)", abs, busy)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.BusyTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

var schemaStatements = []string{
	`PRAGMA journal_mode = WAL;`,
	`CREATE TABLE IF NOT EXISTS projects (
                repo_id TEXT PRIMARY KEY,
                remote_url TEXT NOT NULL,
                branch TEXT NOT NULL,
                version_id TEXT NOT NULL,
                namespace TEXT NOT NULL,
                fragment_count INTEGER NOT NULL DEFAULT 0,
                ingested_at TIMESTAMP NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS ingestions (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                repo_id TEXT NOT NULL,
                branch TEXT NOT NULL,
                version_id TEXT NOT NULL,
                namespace TEXT NOT NULL,
                fragment_count INTEGER NOT NULL DEFAULT 0,
                recorded_at TIMESTAMP NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS idx_ingestions_repo ON ingestions(repo_id, recorded_at);`,
}

// RecordIngestion registers or replaces the current snapshot for a
// repository and appends the run to the ingestion history, in one
// transaction. Re-ingesting the same version simply refreshes the row.
func (s *Store) RecordIngestion(ctx context.Context, project Project) error {
	if s == nil || s.db == nil {
		return errors.New("catalog store not initialised")
	}
	if strings.TrimSpace(project.RepoID) == "" {
		return errors.New("catalog: repo id required")
	}
	if project.IngestedAt.IsZero() {
		project.IngestedAt = time.Now().UTC()
	}
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		const upsert = `INSERT INTO projects(repo_id, remote_url, branch, version_id, namespace, fragment_count, ingested_at)
                        VALUES(?, ?, ?, ?, ?, ?, ?)
                        ON CONFLICT(repo_id) DO UPDATE SET
                                remote_url = excluded.remote_url,
                                branch = excluded.branch,
                                version_id = excluded.version_id,
                                namespace = excluded.namespace,
                                fragment_count = excluded.fragment_count,
                                ingested_at = excluded.ingested_at`
		if _, err := tx.ExecContext(ctx, upsert,
			project.RepoID, project.RemoteURL, project.Branch, project.VersionID,
			project.Namespace, project.FragmentCount, project.IngestedAt); err != nil {
			return fmt.Errorf("upsert project: %w", err)
		}
		const history = `INSERT INTO ingestions(repo_id, branch, version_id, namespace, fragment_count, recorded_at)
                        VALUES(?, ?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, history,
			project.RepoID, project.Branch, project.VersionID,
			project.Namespace, project.FragmentCount, project.IngestedAt); err != nil {
			return fmt.Errorf("record ingestion: %w", err)
		}
		return nil
	})
}

// Project returns the current registration for one repository.
func (s *Store) Project(ctx context.Context, repoID string) (Project, error) {
	if s == nil || s.db == nil {
		return Project{}, errors.New("catalog store not initialised")
	}
	var project Project
	err := s.db.GetContext(ctx, &project,
		`SELECT repo_id, remote_url, branch, version_id, namespace, fragment_count, ingested_at
                FROM projects WHERE repo_id = ?`, repoID)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrProjectNotFound
	}
	if err != nil {
		return Project{}, fmt.Errorf("load project: %w", err)
	}
	return project, nil
}

// ListProjects returns every registered repository, most recently ingested
// first.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("catalog store not initialised")
	}
	projects := []Project{}
	err := s.db.SelectContext(ctx, &projects,
		`SELECT repo_id, remote_url, branch, version_id, namespace, fragment_count, ingested_at
                FROM projects ORDER BY ingested_at DESC, repo_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// History returns the ingestion runs for one repository, newest first.
func (s *Store) History(ctx context.Context, repoID string, limit int) ([]Project, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("catalog store not initialised")
	}
	if limit <= 0 {
		limit = 20
	}
	runs := []Project{}
	err := s.db.SelectContext(ctx, &runs,
		`SELECT i.repo_id, p.remote_url, i.branch, i.version_id, i.namespace, i.fragment_count, i.recorded_at AS ingested_at
                FROM ingestions i
                JOIN projects p ON p.repo_id = i.repo_id
                WHERE i.repo_id = ?
                ORDER BY i.recorded_at DESC, i.id DESC
                LIMIT ?`, repoID, limit)
	if err != nil {
		return nil, fmt.Errorf("load ingestion history: %w", err)
	}
	return runs, nil
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
