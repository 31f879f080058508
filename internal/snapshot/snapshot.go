// Package snapshot acquires and updates local working copies of remote
// repositories. Each remote maps to one snapshot directory named by its
// deterministic repo_id; acquisition either advances the snapshot to the
// resolved remote tip or fails leaving the previous state queryable.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/repopilot/repopilot/internal/common"
)

// versionIDLength is the short commit hash length used as version_id.
const versionIDLength = 12

// Snapshot describes a materialized working tree at one commit.
type Snapshot struct {
	RepoID    string
	RootPath  string
	VersionID string
	Branch    string
	RemoteURL string
}

// Namespace returns the index isolation key for this snapshot.
func (s Snapshot) Namespace() string {
	return s.RepoID + ":" + s.VersionID
}

// Manager owns the snapshot directory tree. At most one acquisition per
// repo_id runs at a time; concurrent callers fail fast with ErrSnapshotBusy.
type Manager struct {
	reposDir string
	git      gitRunner
}

// NewManager creates the snapshot root directory if needed.
func NewManager(reposDir string) (*Manager, error) {
	if reposDir == "" {
		return nil, fmt.Errorf("repos directory required")
	}
	abs, err := filepath.Abs(reposDir)
	if err != nil {
		return nil, fmt.Errorf("resolve repos directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create repos directory: %w", err)
	}
	return &Manager{reposDir: abs, git: newGitRunner()}, nil
}

// Acquire clones or updates the snapshot for remoteURL and returns its root
// path and version id. requestedBranch may be empty, in which case the
// remote's default branch is preferred. The resulting working tree exactly
// matches the remote tip; local divergence is discarded.
func (m *Manager) Acquire(ctx context.Context, remoteURL, requestedBranch string) (Snapshot, error) {
	logger := common.Logger()

	normalized, err := NormalizeRemote(remoteURL)
	if err != nil {
		return Snapshot{}, err
	}
	repoID := RepoID(normalized)

	lock, err := tryLockRepo(m.reposDir, repoID)
	if err != nil {
		return Snapshot{}, err
	}
	defer lock.release()

	dest := filepath.Join(m.reposDir, repoID)
	logger.Info("snapshot: acquiring", "repo_id", repoID, "remote", normalized, "branch", requestedBranch)

	fresh, err := m.ensureClone(ctx, normalized, dest)
	if err != nil {
		return Snapshot{}, err
	}
	if !fresh {
		if err := m.refresh(ctx, normalized, dest); err != nil {
			return Snapshot{}, err
		}
	}

	info, err := m.git.remoteInfo(ctx, dest)
	if err != nil {
		return Snapshot{}, acquisitionFailed("list remote branches", err)
	}
	branch, err := ResolveBranch(requestedBranch, info)
	if err != nil {
		return Snapshot{}, err
	}
	if err := m.git.materialize(ctx, dest, branch); err != nil {
		return Snapshot{}, acquisitionFailed("materialize branch "+branch, err)
	}
	version, err := m.git.headVersion(ctx, dest)
	if err != nil {
		return Snapshot{}, acquisitionFailed("resolve head version", err)
	}

	snap := Snapshot{
		RepoID:    repoID,
		RootPath:  dest,
		VersionID: version,
		Branch:    branch,
		RemoteURL: normalized,
	}
	logger.Info("snapshot: ready", "repo_id", repoID, "branch", branch, "version", version)
	return snap, nil
}

// ensureClone makes dest a usable clone of remoteURL. A fresh clone lands in
// a staging directory first and is renamed into place only on success, so a
// failed clone never registers as a snapshot. Returns whether a fresh clone
// was performed.
func (m *Manager) ensureClone(ctx context.Context, remoteURL, dest string) (bool, error) {
	if m.git.isRepository(ctx, dest) {
		return false, nil
	}
	// A leftover non-repo directory is debris from an interrupted clone.
	if _, err := os.Stat(dest); err == nil {
		if err := os.RemoveAll(dest); err != nil {
			return false, acquisitionFailed("clear broken snapshot", err)
		}
	}
	staging := dest + ".cloning"
	if err := os.RemoveAll(staging); err != nil {
		return false, acquisitionFailed("clear stale staging clone", err)
	}
	if err := m.git.clone(ctx, remoteURL, staging); err != nil {
		_ = os.RemoveAll(staging)
		return false, acquisitionFailed("clone", err)
	}
	if err := os.Rename(staging, dest); err != nil {
		_ = os.RemoveAll(staging)
		return false, acquisitionFailed("promote clone", err)
	}
	return true, nil
}

// refresh repairs the remote link if it drifted, reclaims stale git locks,
// and fetches all refs with pruning.
func (m *Manager) refresh(ctx context.Context, remoteURL, dest string) error {
	logger := common.Logger()
	current, err := m.git.remoteURL(ctx, dest)
	if err != nil || current != remoteURL {
		if err != nil {
			logger.Warn("snapshot: origin missing, repointing", "dest", dest, "error", err)
		} else {
			logger.Info("snapshot: repointing origin", "from", current, "to", remoteURL)
		}
		if err := m.git.setRemoteURL(ctx, dest, remoteURL); err != nil {
			return acquisitionFailed("repoint remote", err)
		}
	}
	if err := clearStaleGitLock(dest); err != nil {
		return acquisitionFailed("reclaim git lock", err)
	}
	if err := m.git.fetch(ctx, dest); err != nil {
		return acquisitionFailed("fetch", err)
	}
	return nil
}
