package retriever

import (
	"context"
	"testing"

	"github.com/repopilot/repopilot/internal/kb"
	"github.com/repopilot/repopilot/internal/vector"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, input []string) ([][]float32, error) {
	out := make([][]float32, len(input))
	for i := range input {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type fakeStore struct {
	results map[string][]vector.SearchResult
	queries int
}

func (f *fakeStore) Available() bool { return true }

func (f *fakeStore) Upsert(ctx context.Context, namespace string, records []vector.Record) error {
	return nil
}

func (f *fakeStore) Query(ctx context.Context, namespace string, vec []float32, topK int) ([]vector.SearchResult, error) {
	f.queries++
	return f.results[namespace], nil
}

func payload(path string, chunk int, score float32) vector.SearchResult {
	return vector.SearchResult{
		ID:    "ns:" + path,
		Score: score,
		Payload: map[string]interface{}{
			"path":        path,
			"chunk_index": float64(chunk),
			"start_line":  float64(1),
			"end_line":    float64(60),
			"text":        "content of " + path,
		},
	}
}

func TestDedupCollapsesToFirstSeen(t *testing.T) {
	frag := kb.Fragment{Path: "src/app.py", ChunkIndex: 4, StartLine: 151, EndLine: 210}
	hits := []Hit{
		{Score: 0.91, Fragment: frag, Query: "q1"},
		{Score: 0.40, Fragment: frag, Query: "q2"},
		{Score: 0.99, Fragment: frag, Query: "q3"},
	}
	out := Dedup(hits)
	if len(out) != 1 {
		t.Fatalf("deduped to %d entries, want 1", len(out))
	}
	if out[0].Score != 0.91 || out[0].Query != "q1" {
		t.Fatalf("dedup did not keep first-seen entry: %+v", out[0])
	}
}

func TestRerankTierDominatesScore(t *testing.T) {
	readme := Hit{Score: 0.10, Tier: TierReadme, Fragment: kb.Fragment{Path: "README.md", IsReadme: true}}
	test := Hit{Score: 0.95, Tier: TierTest, Fragment: kb.Fragment{Path: "tests/test_app.py"}}
	src := Hit{Score: 0.80, Tier: TierSource, Fragment: kb.Fragment{Path: "main.py"}}

	out := Rerank([]Hit{test, src, readme})
	if out[0].Fragment.Path != "README.md" {
		t.Fatalf("README not ranked first: %v", out[0].Fragment.Path)
	}
	if out[len(out)-1].Fragment.Path != "tests/test_app.py" {
		t.Fatalf("test file not ranked last: %v", out[len(out)-1].Fragment.Path)
	}
}

func TestRerankScoreBreaksTiesWithinTier(t *testing.T) {
	a := Hit{Score: 0.30, Tier: TierSource, Fragment: kb.Fragment{Path: "a.py"}}
	b := Hit{Score: 0.70, Tier: TierSource, Fragment: kb.Fragment{Path: "b.py"}}
	out := Rerank([]Hit{a, b})
	if out[0].Fragment.Path != "b.py" {
		t.Fatalf("higher score should win within a tier, got %v first", out[0].Fragment.Path)
	}
}

func TestBoostTable(t *testing.T) {
	cases := []struct {
		path string
		want int
	}{
		{"README.md", TierReadme},
		{"CONTRIBUTING.md", TierContribDoc},
		{"docs/usage.md", TierDocsTree},
		{"src/core/engine.py", TierPrimarySource},
		{"engine.py", TierSource},
		{"pyproject.toml", TierBuildMeta},
		{".github/workflows/ci.yml", TierCITooling},
		{"tests/test_engine.py", TierTest},
		{"pkg/store/store_test.go", TierTest},
		{"", TierUnknown},
	}
	for _, tc := range cases {
		frag := kb.Fragment{Path: tc.path, IsReadme: kb.IsReadmePath(tc.path), IsDoc: kb.IsDocPath(tc.path)}
		if got := BoostFor(frag); got != tc.want {
			t.Errorf("BoostFor(%q) = %d, want %d", tc.path, got, tc.want)
		}
	}
}

func TestExpandQuestion(t *testing.T) {
	short := ExpandQuestion("what is this repo")
	if len(short) < 4 {
		t.Fatalf("short question expanded to %d queries, want probes included", len(short))
	}
	if short[0] != "what is this repo" {
		t.Fatalf("verbatim question must come first, got %q", short[0])
	}

	long := ExpandQuestion("explain the exact retry semantics of the connection pool when the primary database fails over during a long transaction")
	if len(long) != 1 {
		t.Fatalf("specific question should not be expanded, got %d queries", len(long))
	}
}

func TestRetrieveDedupsAcrossQueries(t *testing.T) {
	store := &fakeStore{results: map[string][]vector.SearchResult{
		"ns:v1": {
			payload("README.md", 0, 0.5),
			payload("src/main.py", 0, 0.9),
			payload("tests/test_main.py", 0, 0.95),
		},
	}}
	coord := New(fakeEmbedder{}, store)

	hits, err := coord.Retrieve(context.Background(), "ns:v1", "what is this project")
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	// Every expanded query returns the same three fragments; dedup must
	// collapse them back to three.
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3 after dedup", len(hits))
	}
	if store.queries < 2 {
		t.Fatalf("short question should fan out to multiple queries, issued %d", store.queries)
	}
	if hits[0].Fragment.Path != "README.md" {
		t.Fatalf("README should rank first, got %s", hits[0].Fragment.Path)
	}
	if hits[2].Fragment.Path != "tests/test_main.py" {
		t.Fatalf("test file should rank last, got %s", hits[2].Fragment.Path)
	}
}

func TestRetrieveEmptyNamespace(t *testing.T) {
	coord := New(fakeEmbedder{}, &fakeStore{results: map[string][]vector.SearchResult{}})
	hits, err := coord.Retrieve(context.Background(), "empty:ns", "anything here")
	if err != nil {
		t.Fatalf("empty namespace must not error: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected zero hits, got %d", len(hits))
	}
}

func TestRetrieveBoundedByMaxHits(t *testing.T) {
	var results []vector.SearchResult
	for i := 0; i < 40; i++ {
		results = append(results, payload("src/file.py", i, 0.5))
	}
	store := &fakeStore{results: map[string][]vector.SearchResult{"ns:v1": results}}
	coord := New(fakeEmbedder{}, store, WithMaxHits(5))

	hits, err := coord.Retrieve(context.Background(), "ns:v1", "overview please")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 5 {
		t.Fatalf("got %d hits, want 5", len(hits))
	}
}
