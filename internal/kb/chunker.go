package kb

import (
	"path"
	"strings"
)

const (
	// DefaultChunkLines is the fixed window length, in lines.
	DefaultChunkLines = 60
	// DefaultChunkOverlap is the number of lines shared between adjacent
	// windows so boundary context survives chunking.
	DefaultChunkOverlap = 10

	// maxFragmentRunes caps stored fragment text; embedding inputs and index
	// payloads stay bounded even for minified or generated files.
	maxFragmentRunes = 6000
)

// ChunkText splits a file's text into overlapping line windows and returns
// the fragments in emission order. Line numbers are 1-based and inclusive.
// The namespace is left empty; ingestion stamps it once the snapshot version
// is known. Identical input always yields an identical fragment list.
func ChunkText(relPath, text string) []Fragment {
	return ChunkTextSize(relPath, text, DefaultChunkLines, DefaultChunkOverlap)
}

// ChunkTextSize is ChunkText with explicit window geometry.
func ChunkTextSize(relPath, text string, windowLines, overlap int) []Fragment {
	if windowLines <= 0 {
		windowLines = DefaultChunkLines
	}
	if overlap < 0 {
		overlap = 0
	}
	stride := windowLines - overlap
	if stride < 1 {
		stride = 1
	}

	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")

	filename := path.Base(relPath)
	ext := strings.ToLower(path.Ext(filename))

	var out []Fragment
	chunkIndex := 0
	for start := 0; start < len(lines); start += stride {
		end := start + windowLines
		if end > len(lines) {
			end = len(lines)
		}
		body := strings.TrimSpace(strings.Join(lines[start:end], "\n"))
		if body != "" {
			out = append(out, Fragment{
				Path:       relPath,
				ChunkIndex: chunkIndex,
				StartLine:  start + 1,
				EndLine:    end,
				Text:       capRunes(body, maxFragmentRunes),
				IsReadme:   IsReadmePath(relPath),
				IsDoc:      IsDocPath(relPath),
				Filename:   filename,
				Ext:        ext,
			})
			chunkIndex++
		}
		if end >= len(lines) {
			break
		}
	}
	return out
}

// IsReadmePath reports whether the path names a README-like file.
func IsReadmePath(relPath string) bool {
	name := strings.ToLower(path.Base(relPath))
	return name == "readme" || strings.HasPrefix(name, "readme.")
}

// IsDocPath reports whether the path is documentation: rooted in a docs tree
// or carrying a prose extension.
func IsDocPath(relPath string) bool {
	lower := strings.ToLower(relPath)
	if strings.HasPrefix(lower, "docs/") || strings.HasPrefix(lower, "doc/") {
		return true
	}
	switch path.Ext(lower) {
	case ".md", ".rst", ".adoc":
		return true
	}
	return false
}

func capRunes(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit]))
}
