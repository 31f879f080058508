package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/repopilot/repopilot/internal/common"
)

// staleGitLockAge is how old a leftover .git/index.lock must be before it is
// treated as debris from a crashed process rather than an active operation.
const staleGitLockAge = 10 * time.Minute

// repoLock is the exclusive, filesystem-visible lock scoped to one repo_id.
// flock semantics give crash safety for free: the kernel drops the lock with
// the holder's process, so a leftover lock file never wedges the repo.
type repoLock struct {
	fl *flock.Flock
}

// tryLockRepo attempts the exclusive lock without blocking. A held lock
// yields ErrSnapshotBusy immediately; callers are expected to retry later.
func tryLockRepo(reposDir, repoID string) (*repoLock, error) {
	path := filepath.Join(reposDir, repoID+".lock")
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire repo lock %s: %w", repoID, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotBusy, repoID)
	}
	return &repoLock{fl: fl}, nil
}

func (l *repoLock) release() {
	if l == nil || l.fl == nil {
		return
	}
	if err := l.fl.Unlock(); err != nil {
		common.Logger().Warn("snapshot: lock release failed", "path", l.fl.Path(), "error", err)
	}
}

// clearStaleGitLock removes a git-internal index.lock left behind by a
// crashed operation. We only reach this point while holding the repo's
// exclusive flock, so a fresh index.lock means something outside this process
// is mutating the working tree; that is a hard stop for the caller to
// resolve, not something to steal.
func clearStaleGitLock(repoDir string) error {
	lockPath := filepath.Join(repoDir, ".git", "index.lock")
	info, err := os.Stat(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if time.Since(info.ModTime()) < staleGitLockAge {
		return fmt.Errorf("active git lock at %s; refusing to reclaim", lockPath)
	}
	common.Logger().Warn("snapshot: removing stale git lock", "path", lockPath, "age", time.Since(info.ModTime()))
	return os.Remove(lockPath)
}
