package pipeline

import (
	"fmt"
	"strings"

	"github.com/repopilot/repopilot/internal/retriever"
)

const (
	// promptChunkChars caps each evidence block inside the prompt.
	promptChunkChars = 1400
	// sourceSnippetChars caps snippets echoed back in API responses.
	sourceSnippetChars = 800
	// maxChatSources caps the citation list in a chat response.
	maxChatSources = 10
)

const systemPrompt = "You are a senior engineer onboarding a new teammate to a codebase. " +
	"Answer using only the provided source excerpts. Cite excerpts inline with their [S#] markers. " +
	"If the excerpts do not contain the answer, say so plainly instead of guessing."

const answerTemplate = `Question about this repository:
%s

Source excerpts, ranked most relevant first:
%s
Write an onboarding answer with these sections when the excerpts support them:
- What the project does
- How it is structured
- How to run and develop it
Keep the answer grounded in the excerpts and cite them as [S#].`

// BuildPrompt renders the user prompt for answer synthesis. Each hit becomes
// one [S#] block carrying its path and line range so citations resolve back
// to real locations.
func BuildPrompt(question string, hits []retriever.Hit) string {
	var blocks strings.Builder
	for i, hit := range hits {
		frag := hit.Fragment
		text := truncateRunes(frag.Text, promptChunkChars)
		fmt.Fprintf(&blocks, "[S%d] %s (lines %d-%d)\n%s\n\n", i+1, frag.Path, frag.StartLine, frag.EndLine, text)
	}
	return fmt.Sprintf(answerTemplate, strings.TrimSpace(question), blocks.String())
}

// Source is one citation entry returned alongside an answer.
type Source struct {
	Ref       string `json:"ref"`
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Snippet   string `json:"snippet"`
}

// Sources maps hits to their citation entries, in rank order. The list stops
// at maxChatSources and snippets are capped so responses stay bounded.
func Sources(hits []retriever.Hit) []Source {
	if len(hits) > maxChatSources {
		hits = hits[:maxChatSources]
	}
	sources := make([]Source, 0, len(hits))
	for i, hit := range hits {
		frag := hit.Fragment
		sources = append(sources, Source{
			Ref:       fmt.Sprintf("S%d", i+1),
			Path:      frag.Path,
			StartLine: frag.StartLine,
			EndLine:   frag.EndLine,
			Snippet:   truncateRunes(frag.Text, sourceSnippetChars),
		})
	}
	return sources
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
