package snapshot

import (
	"sort"
	"strings"
)

// RemoteInfo captures what the remote advertises after a fetch: its default
// branch (possibly empty when unknown) and every remote branch name.
type RemoteInfo struct {
	DefaultBranch string
	Branches      []string
}

func (r RemoteInfo) hasBranch(name string) bool {
	for _, branch := range r.Branches {
		if branch == name {
			return true
		}
	}
	return false
}

// ResolveBranch picks the branch to materialize. The candidates are evaluated
// in a fixed order and a missing candidate is simply skipped, never an error:
// the explicit request, the remote's advertised default, main, master, then
// the lexicographically first remaining branch. Only a remote with zero
// branches fails, with ErrNoBranchFound.
func ResolveBranch(requested string, remote RemoteInfo) (string, error) {
	if len(remote.Branches) == 0 {
		return "", ErrNoBranchFound
	}
	candidates := []string{
		strings.TrimSpace(requested),
		strings.TrimSpace(remote.DefaultBranch),
		"main",
		"master",
	}
	for _, candidate := range candidates {
		if candidate != "" && remote.hasBranch(candidate) {
			return candidate, nil
		}
	}
	sorted := append([]string(nil), remote.Branches...)
	sort.Strings(sorted)
	return sorted[0], nil
}
