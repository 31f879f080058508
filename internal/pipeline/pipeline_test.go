package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/repopilot/repopilot/internal/kb"
	"github.com/repopilot/repopilot/internal/llm"
	"github.com/repopilot/repopilot/internal/retriever"
)

type fakeRetriever struct {
	hits []retriever.Hit
	err  error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, namespace, question string) ([]retriever.Hit, error) {
	return f.hits, f.err
}

type fakeProvider struct {
	generative bool
	answer     string
	err        error
	gotPrompt  string
}

func (f *fakeProvider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	if len(messages) > 0 {
		f.gotPrompt = messages[len(messages)-1].Content
	}
	return f.answer, f.err
}

func (f *fakeProvider) Embed(ctx context.Context, input []string) ([][]float32, error) {
	return make([][]float32, len(input)), nil
}

func (f *fakeProvider) Generative() bool { return f.generative }

func (f *fakeProvider) Name() string { return "fake" }

func sampleHits() []retriever.Hit {
	return []retriever.Hit{
		{Score: 0.4, Tier: retriever.TierReadme, Fragment: kb.Fragment{
			Path: "README.md", ChunkIndex: 0, StartLine: 1, EndLine: 42,
			Text: "This service ingests repositories.",
		}},
		{Score: 0.9, Tier: retriever.TierSource, Fragment: kb.Fragment{
			Path: "app/main.py", ChunkIndex: 2, StartLine: 101, EndLine: 160,
			Text: "def create_app():",
		}},
	}
}

func TestAskSynthesizesWithCitations(t *testing.T) {
	provider := &fakeProvider{generative: true, answer: "It ingests repos [S1]."}
	p := New(&fakeRetriever{hits: sampleHits()}, provider)

	state, err := p.Ask(context.Background(), "owner_repo:abc123def456", "what does this do")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if state.Answer != "It ingests repos [S1]." {
		t.Fatalf("unexpected answer: %q", state.Answer)
	}
	if len(state.Hits) != 2 {
		t.Fatalf("state lost hits: %d", len(state.Hits))
	}
	if !strings.Contains(provider.gotPrompt, "[S1] README.md (lines 1-42)") {
		t.Fatalf("prompt missing first source block:\n%s", provider.gotPrompt)
	}
	if !strings.Contains(provider.gotPrompt, "[S2] app/main.py (lines 101-160)") {
		t.Fatalf("prompt missing second source block:\n%s", provider.gotPrompt)
	}
	if !strings.Contains(provider.gotPrompt, "what does this do") {
		t.Fatalf("prompt missing the question:\n%s", provider.gotPrompt)
	}
}

func TestAskEmptyRetrievalGetsCannedAnswer(t *testing.T) {
	p := New(&fakeRetriever{}, &fakeProvider{generative: true})
	state, err := p.Ask(context.Background(), "ns:v1", "anything")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if !strings.Contains(state.Answer, "could not find any indexed content") {
		t.Fatalf("expected canned empty-index answer, got %q", state.Answer)
	}
}

func TestAskDegradesToListingWithoutGeneration(t *testing.T) {
	p := New(&fakeRetriever{hits: sampleHits()}, &fakeProvider{generative: false})
	state, err := p.Ask(context.Background(), "ns:v1", "overview")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if !strings.Contains(state.Answer, "Top relevant files") {
		t.Fatalf("expected listing answer, got %q", state.Answer)
	}
	if !strings.Contains(state.Answer, "1. README.md (lines 1-42)") {
		t.Fatalf("listing should preserve rank order, got %q", state.Answer)
	}
}

func TestAskDegradesWhenChatReportsUnavailable(t *testing.T) {
	provider := &fakeProvider{generative: true, err: llm.ErrSynthesisUnavailable}
	p := New(&fakeRetriever{hits: sampleHits()}, provider)
	state, err := p.Ask(context.Background(), "ns:v1", "overview")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if !strings.Contains(state.Answer, "Top relevant files") {
		t.Fatalf("expected listing fallback, got %q", state.Answer)
	}
}

func TestAskPropagatesRetrievalError(t *testing.T) {
	boom := errors.New("store down")
	p := New(&fakeRetriever{err: boom}, &fakeProvider{generative: true})
	if _, err := p.Ask(context.Background(), "ns:v1", "q"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped retrieval error, got %v", err)
	}
}

func TestAskPropagatesChatError(t *testing.T) {
	boom := errors.New("rate limited")
	p := New(&fakeRetriever{hits: sampleHits()}, &fakeProvider{generative: true, err: boom})
	if _, err := p.Ask(context.Background(), "ns:v1", "q"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped chat error, got %v", err)
	}
}

func TestBuildPromptCapsChunkLength(t *testing.T) {
	long := strings.Repeat("x", 5000)
	hits := []retriever.Hit{{Fragment: kb.Fragment{Path: "big.txt", StartLine: 1, EndLine: 200, Text: long}}}
	prompt := BuildPrompt("q", hits)
	if strings.Contains(prompt, strings.Repeat("x", promptChunkChars+1)) {
		t.Fatal("chunk text not capped in prompt")
	}
	if !strings.Contains(prompt, strings.Repeat("x", promptChunkChars)) {
		t.Fatal("capped chunk text missing from prompt")
	}
}

func manyHits(n int) []retriever.Hit {
	hits := make([]retriever.Hit, 0, n)
	for i := 0; i < n; i++ {
		hits = append(hits, retriever.Hit{
			Score: 0.5,
			Tier:  retriever.TierSource,
			Fragment: kb.Fragment{
				Path: fmt.Sprintf("src/file%02d.py", i), ChunkIndex: 0,
				StartLine: 1, EndLine: 60, Text: "code",
			},
		})
	}
	return hits
}

func TestSourcesCappedAtTen(t *testing.T) {
	sources := Sources(manyHits(14))
	if len(sources) != 10 {
		t.Fatalf("got %d sources, want 10", len(sources))
	}
	if sources[9].Ref != "S10" {
		t.Fatalf("last source ref = %q, want S10", sources[9].Ref)
	}
}

func TestListingAnswerCappedAtEight(t *testing.T) {
	p := New(&fakeRetriever{hits: manyHits(14)}, &fakeProvider{generative: false})
	state, err := p.Ask(context.Background(), "ns:v1", "overview")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if !strings.Contains(state.Answer, "8. src/file07.py") {
		t.Fatalf("listing missing eighth entry:\n%s", state.Answer)
	}
	if strings.Contains(state.Answer, "9. ") {
		t.Fatalf("listing exceeds eight entries:\n%s", state.Answer)
	}
}

func TestSourcesFollowRankOrder(t *testing.T) {
	sources := Sources(sampleHits())
	if len(sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(sources))
	}
	if sources[0].Ref != "S1" || sources[0].Path != "README.md" {
		t.Fatalf("first source wrong: %+v", sources[0])
	}
	if sources[1].Ref != "S2" || sources[1].StartLine != 101 || sources[1].EndLine != 160 {
		t.Fatalf("second source wrong: %+v", sources[1])
	}
}

func TestGraphRejectsMissingEdge(t *testing.T) {
	g := NewGraph().AddNode("only", func(ctx context.Context, s *State) error { return nil }).SetEntryPoint("only")
	if err := g.Run(context.Background(), NewState("ns", "q")); err == nil {
		t.Fatal("expected missing-edge error")
	}
}
