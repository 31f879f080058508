package snapshot

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// subpathMarkers are path segments a browser URL appends below the repository
// root. Everything from the marker onward is dropped during normalization.
var subpathMarkers = map[string]struct{}{
	"tree": {}, "blob": {}, "raw": {}, "blame": {}, "commit": {},
	"commits": {}, "releases": {}, "issues": {}, "pull": {}, "pulls": {},
	"wiki": {}, "actions": {}, "compare": {}, "tags": {}, "branches": {},
	"-": {}, "src": {},
}

var scpLikeRemote = regexp.MustCompile(`^(?:[\w.-]+@)?([\w.-]+):([\w.-]+)/([\w.-]+?)(?:\.git)?/?$`)

var repoIDSanitizer = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// NormalizeRemote canonicalizes a remote repository URL to
// scheme://host/owner/repo, stripping a trailing .git and any file or folder
// suffix beneath the repository root. It returns ErrInvalidReference when the
// input cannot be reduced to a bare repository root.
func NormalizeRemote(remote string) (string, error) {
	trimmed := strings.TrimSpace(remote)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidReference)
	}

	if m := scpLikeRemote.FindStringSubmatch(trimmed); m != nil && !strings.Contains(trimmed, "://") {
		return fmt.Sprintf("ssh://%s/%s/%s", m[1], m[2], m[3]), nil
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidReference, trimmed)
	}
	switch parsed.Scheme {
	case "file":
		// Local remotes (used by tests and air-gapped setups) are passed
		// through; the path itself is the repository root.
		cleaned := strings.TrimRight(parsed.Path, "/")
		if cleaned == "" {
			return "", fmt.Errorf("%w: empty file path", ErrInvalidReference)
		}
		return "file://" + cleaned, nil
	case "http", "https", "ssh", "git":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidReference, parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidReference)
	}

	segments := splitPath(parsed.Path)
	if len(segments) < 2 {
		return "", fmt.Errorf("%w: expected owner/repo in %s", ErrInvalidReference, trimmed)
	}
	if len(segments) > 2 {
		if _, known := subpathMarkers[strings.ToLower(segments[2])]; !known {
			return "", fmt.Errorf("%w: %s is not a repository root", ErrInvalidReference, trimmed)
		}
	}
	owner := segments[0]
	repo := strings.TrimSuffix(segments[1], ".git")
	if owner == "" || repo == "" {
		return "", fmt.Errorf("%w: expected owner/repo in %s", ErrInvalidReference, trimmed)
	}
	return fmt.Sprintf("%s://%s/%s/%s", parsed.Scheme, parsed.Host, owner, repo), nil
}

// RepoID derives the deterministic slug used for the snapshot directory, the
// lock file, and the index namespace prefix. The same normalized URL always
// maps to the same id.
func RepoID(normalizedURL string) string {
	segments := splitPath(normalizedURL)
	if n := len(segments); n >= 2 {
		owner := repoIDSanitizer.ReplaceAllString(segments[n-2], "_")
		repo := repoIDSanitizer.ReplaceAllString(segments[n-1], "_")
		return owner + "_" + repo
	}
	return strings.Trim(repoIDSanitizer.ReplaceAllString(normalizedURL, "_"), "_")
}

func splitPath(p string) []string {
	p = strings.Trim(strings.TrimPrefix(strings.TrimPrefix(p, "https://"), "ssh://"), "/")
	if idx := strings.Index(p, "://"); idx >= 0 {
		p = p[idx+3:]
	}
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
