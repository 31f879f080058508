package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// gitRunner shells out to the system git binary. Every mutating command runs
// under the caller's per-repo lock.
type gitRunner struct {
	binary string
}

func newGitRunner() gitRunner {
	return gitRunner{binary: "git"}
}

func (g gitRunner) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.binary, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), detail)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (g gitRunner) clone(ctx context.Context, remoteURL, dest string) error {
	_, err := g.run(ctx, "", "clone", "--", remoteURL, dest)
	return err
}

func (g gitRunner) remoteURL(ctx context.Context, dir string) (string, error) {
	return g.run(ctx, dir, "remote", "get-url", "origin")
}

func (g gitRunner) setRemoteURL(ctx context.Context, dir, remoteURL string) error {
	if _, err := g.run(ctx, dir, "remote", "set-url", "origin", remoteURL); err != nil {
		_, addErr := g.run(ctx, dir, "remote", "add", "origin", remoteURL)
		if addErr != nil {
			return err
		}
	}
	return nil
}

func (g gitRunner) fetch(ctx context.Context, dir string) error {
	_, err := g.run(ctx, dir, "fetch", "--prune", "origin")
	return err
}

// remoteInfo lists remote branches and the advertised default branch from the
// local refs populated by clone or fetch.
func (g gitRunner) remoteInfo(ctx context.Context, dir string) (RemoteInfo, error) {
	out, err := g.run(ctx, dir, "for-each-ref", "--format=%(refname:short)", "refs/remotes/origin")
	if err != nil {
		return RemoteInfo{}, err
	}
	info := RemoteInfo{}
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimPrefix(strings.TrimSpace(line), "origin/")
		if name == "" || name == "HEAD" || name == strings.TrimSpace(line) {
			continue
		}
		info.Branches = append(info.Branches, name)
	}
	if head, err := g.run(ctx, dir, "symbolic-ref", "refs/remotes/origin/HEAD"); err == nil {
		if idx := strings.LastIndex(head, "/"); idx >= 0 {
			info.DefaultBranch = head[idx+1:]
		}
	}
	return info, nil
}

// materialize forces the local branch to exactly match the remote tip,
// discarding any local divergence.
func (g gitRunner) materialize(ctx context.Context, dir, branch string) error {
	remoteRef := "origin/" + branch
	if _, err := g.run(ctx, dir, "checkout", "-B", branch, "--track", remoteRef); err != nil {
		return err
	}
	_, err := g.run(ctx, dir, "reset", "--hard", remoteRef)
	return err
}

func (g gitRunner) headVersion(ctx context.Context, dir string) (string, error) {
	return g.run(ctx, dir, "rev-parse", fmt.Sprintf("--short=%d", versionIDLength), "HEAD")
}

func (g gitRunner) isRepository(ctx context.Context, dir string) bool {
	out, err := g.run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}
