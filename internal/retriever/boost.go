package retriever

import (
	"path"
	"strings"

	"github.com/repopilot/repopilot/internal/kb"
)

// Priority tiers, highest first. The tier dominates the similarity score
// during reranking; the score only breaks ties inside one tier. Tests sit at
// the lowest non-zero tier so onboarding answers are not swamped by fixtures
// while explicit questions can still reach them.
const (
	TierReadme        = 8
	TierContribDoc    = 7
	TierDocsTree      = 6
	TierPrimarySource = 5
	TierSource        = 4
	TierBuildMeta     = 3
	TierCITooling     = 2
	TierTest          = 1
	TierUnknown       = 0
)

var primarySourceRoots = map[string]struct{}{
	"src": {}, "lib": {}, "app": {}, "cmd": {}, "internal": {}, "pkg": {},
	"core": {}, "server": {}, "backend": {},
}

var buildMetaFiles = map[string]struct{}{
	"package.json": {}, "pyproject.toml": {}, "setup.py": {}, "setup.cfg": {},
	"go.mod": {}, "go.sum": {}, "cargo.toml": {}, "pom.xml": {},
	"build.gradle": {}, "makefile": {}, "dockerfile": {}, "requirements.txt": {},
	"gemfile": {}, "composer.json": {}, "package-lock.json": {},
}

var ciToolingRoots = []string{
	".github/", ".circleci/", ".gitlab/", ".devcontainer/", ".azure/",
}

// boostRule classifies a fragment path. Rules are evaluated in order and the
// first match wins, so the table is the single place ranking policy lives.
type boostRule struct {
	name    string
	tier    int
	matches func(lowerPath, base string, frag kb.Fragment) bool
}

var boostTable = []boostRule{
	{
		name: "readme",
		tier: TierReadme,
		matches: func(lowerPath, base string, frag kb.Fragment) bool {
			return frag.IsReadme || base == "readme" || strings.HasPrefix(base, "readme.")
		},
	},
	{
		name: "contrib-doc",
		tier: TierContribDoc,
		matches: func(lowerPath, base string, frag kb.Fragment) bool {
			for _, prefix := range []string{"contributing", "quickstart", "getting_started", "getting-started", "install", "installation"} {
				if strings.HasPrefix(base, prefix) {
					return true
				}
			}
			return false
		},
	},
	{
		name: "docs-tree",
		tier: TierDocsTree,
		matches: func(lowerPath, base string, frag kb.Fragment) bool {
			return strings.HasPrefix(lowerPath, "docs/") || strings.HasPrefix(lowerPath, "doc/") || frag.IsDoc
		},
	},
	{
		name: "ci-tooling",
		tier: TierCITooling,
		matches: func(lowerPath, base string, frag kb.Fragment) bool {
			for _, root := range ciToolingRoots {
				if strings.HasPrefix(lowerPath, root) {
					return true
				}
			}
			return base == ".travis.yml" || base == "azure-pipelines.yml" || base == "jenkinsfile"
		},
	},
	{
		name: "tests",
		tier: TierTest,
		matches: func(lowerPath, base string, frag kb.Fragment) bool {
			for _, segment := range strings.Split(lowerPath, "/") {
				if segment == "test" || segment == "tests" || segment == "testdata" || segment == "__tests__" || segment == "spec" {
					return true
				}
			}
			return strings.HasSuffix(base, "_test.go") || strings.HasPrefix(base, "test_") ||
				strings.Contains(base, ".spec.") || strings.Contains(base, ".test.")
		},
	},
	{
		name: "build-meta",
		tier: TierBuildMeta,
		matches: func(lowerPath, base string, frag kb.Fragment) bool {
			_, ok := buildMetaFiles[base]
			return ok
		},
	},
	{
		name: "primary-source",
		tier: TierPrimarySource,
		matches: func(lowerPath, base string, frag kb.Fragment) bool {
			root, _, found := strings.Cut(lowerPath, "/")
			if !found {
				return false
			}
			_, ok := primarySourceRoots[root]
			return ok
		},
	},
}

// BoostFor returns the priority tier for a fragment. A fragment with no path
// (malformed index metadata) falls to the bottom rather than failing.
func BoostFor(frag kb.Fragment) int {
	lowerPath := strings.ToLower(strings.TrimSpace(frag.Path))
	if lowerPath == "" {
		return TierUnknown
	}
	base := path.Base(lowerPath)
	for _, rule := range boostTable {
		if rule.matches(lowerPath, base, frag) {
			return rule.tier
		}
	}
	return TierSource
}
