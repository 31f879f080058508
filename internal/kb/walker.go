package kb

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/repopilot/repopilot/internal/common"
)

// maxIndexableBytes bounds a single file read; anything larger is treated as
// generated output and skipped.
const maxIndexableBytes = 2 << 20

// skipDirs prunes version-control metadata, dependency caches, build output
// and tooling caches before they are ever read.
var skipDirs = map[string]struct{}{
	".git":            {},
	".hg":             {},
	".svn":            {},
	"node_modules":    {},
	"vendor":          {},
	"dist":            {},
	"build":           {},
	"target":          {},
	"__pycache__":     {},
	".venv":           {},
	"venv":            {},
	".tox":            {},
	".mypy_cache":     {},
	".pytest_cache":   {},
	".idea":           {},
	".vscode":         {},
	".next":           {},
	".cache":          {},
	".terraform":      {},
	".repos":          {},
	"coverage":        {},
	".gradle":         {},
	".eggs":           {},
	"site-packages":   {},
	".ipynb_checkpoints": {},
}

var textExtensions = map[string]struct{}{
	".go": {}, ".py": {}, ".js": {}, ".jsx": {}, ".ts": {}, ".tsx": {},
	".java": {}, ".c": {}, ".cc": {}, ".cpp": {}, ".h": {}, ".hpp": {},
	".rs": {}, ".rb": {}, ".php": {}, ".cs": {}, ".swift": {}, ".kt": {},
	".scala": {}, ".ex": {}, ".exs": {}, ".erl": {}, ".hs": {}, ".lua": {},
	".sh": {}, ".bash": {}, ".zsh": {}, ".ps1": {}, ".bat": {},
	".md": {}, ".rst": {}, ".adoc": {}, ".txt": {},
	".toml": {}, ".yaml": {}, ".yml": {}, ".json": {}, ".xml": {},
	".ini": {}, ".cfg": {}, ".conf": {}, ".properties": {},
	".html": {}, ".css": {}, ".scss": {}, ".less": {},
	".sql": {}, ".proto": {}, ".graphql": {}, ".tf": {}, ".gradle": {},
	".cmake": {}, ".mk": {}, ".make": {}, ".dockerfile": {},
}

// WalkFunc receives one admissible file per call. Returning false abandons
// the walk; the walker never revisits emitted files.
type WalkFunc func(relPath, text string) bool

// Walk traverses root in a single pass and calls fn for every indexable text
// file. Paths are emitted relative to root with forward slashes regardless of
// the host separator. Unreadable or non-UTF-8 files are skipped, never fatal.
// A .gitignore at the repository root is honored when present.
func Walk(root string, fn WalkFunc) error {
	logger := common.Logger()
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "walk", Path: root, Err: fs.ErrInvalid}
	}

	var ignorer *ignore.GitIgnore
	if matcher, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
		ignorer = matcher
	}

	stopped := false
	walkErr := filepath.WalkDir(root, func(fullPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			logger.Debug("walker: entry error, skipping", "path", fullPath, "error", err)
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if stopped {
			return fs.SkipAll
		}
		if entry.IsDir() {
			if fullPath == root {
				return nil
			}
			if _, denied := skipDirs[strings.ToLower(entry.Name())]; denied {
				return fs.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, fullPath)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !admissible(entry.Name()) {
			return nil
		}
		if ignorer != nil && ignorer.MatchesPath(rel) {
			return nil
		}
		if fi, err := entry.Info(); err != nil || fi.Size() > maxIndexableBytes {
			return nil
		}
		data, err := os.ReadFile(fullPath)
		if err != nil {
			logger.Debug("walker: read failed, skipping", "path", rel, "error", err)
			return nil
		}
		if !utf8.Valid(data) {
			return nil
		}
		text := string(data)
		if strings.TrimSpace(text) == "" {
			return nil
		}
		if !fn(rel, text) {
			stopped = true
			return fs.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return walkErr
	}
	return nil
}

func admissible(basename string) bool {
	lower := strings.ToLower(basename)
	if lower == "dockerfile" {
		return true
	}
	ext := filepath.Ext(lower)
	if ext == "" {
		return false
	}
	_, ok := textExtensions[ext]
	return ok
}
