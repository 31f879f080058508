package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/repopilot/repopilot/internal/common"
	"github.com/repopilot/repopilot/internal/llm"
	"github.com/repopilot/repopilot/internal/retriever"
)

// maxListingFiles caps the degraded ranked-listing answer.
const maxListingFiles = 8

// emptyIndexAnswer is returned verbatim when retrieval produces zero hits.
const emptyIndexAnswer = "I could not find any indexed content for this repository snapshot that relates to your question. " +
	"The repository may be empty, still ingesting, or the question may concern files that were not indexable."

// Retriever is the evidence-gathering collaborator.
type Retriever interface {
	Retrieve(ctx context.Context, namespace, question string) ([]retriever.Hit, error)
}

// Pipeline answers one question against one snapshot namespace. Construction
// wires the fixed retrieve-then-answer graph; every Ask call runs a fresh
// state through it.
type Pipeline struct {
	retriever Retriever
	provider  llm.Provider
	graph     *Graph
}

func New(retr Retriever, provider llm.Provider) *Pipeline {
	p := &Pipeline{retriever: retr, provider: provider}
	p.graph = NewGraph().
		AddNode("retrieve", p.retrieveNode).
		AddNode("answer", p.answerNode).
		AddEdge("retrieve", "answer").
		AddEdge("answer", End).
		SetEntryPoint("retrieve")
	return p
}

// Ask runs the full flow and returns the final state. The returned state
// always carries an answer; degraded conditions produce degraded answers,
// not errors.
func (p *Pipeline) Ask(ctx context.Context, namespace, question string) (*State, error) {
	state := NewState(namespace, question)
	if err := p.graph.Run(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (p *Pipeline) retrieveNode(ctx context.Context, state *State) error {
	hits, err := p.retriever.Retrieve(ctx, state.Namespace, state.Question)
	if err != nil {
		return err
	}
	state.Hits = hits
	return nil
}

func (p *Pipeline) answerNode(ctx context.Context, state *State) error {
	logger := common.Logger()
	if len(state.Hits) == 0 {
		state.Answer = emptyIndexAnswer
		logger.Info("pipeline: no hits for question", "request", state.ID, "namespace", state.Namespace)
		return nil
	}
	if !p.provider.Generative() {
		state.Answer = listingAnswer(state.Hits)
		return nil
	}

	prompt := BuildPrompt(state.Question, state.Hits)
	answer, err := p.provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		if errors.Is(err, llm.ErrSynthesisUnavailable) {
			state.Answer = listingAnswer(state.Hits)
			return nil
		}
		return fmt.Errorf("synthesize answer: %w", err)
	}
	state.Answer = strings.TrimSpace(answer)
	logger.Info("pipeline: answer synthesized",
		"request", state.ID, "namespace", state.Namespace, "sources", len(state.Hits), "provider", p.provider.Name())
	return nil
}

// listingAnswer is the degraded response when no generation backend is
// available: the ranked evidence itself, as a file listing.
func listingAnswer(hits []retriever.Hit) string {
	if len(hits) > maxListingFiles {
		hits = hits[:maxListingFiles]
	}
	var b strings.Builder
	b.WriteString("Answer synthesis is not configured. Top relevant files for your question:\n")
	for i, hit := range hits {
		frag := hit.Fragment
		fmt.Fprintf(&b, "%d. %s (lines %d-%d)\n", i+1, frag.Path, frag.StartLine, frag.EndLine)
	}
	b.WriteString("\nSet OPENAI_API_KEY to enable synthesized answers.")
	return b.String()
}
