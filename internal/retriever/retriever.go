// Package retriever turns one user question into a deduplicated,
// priority-ordered set of evidence fragments from the similarity index. One
// question expands into several queries; the pooled candidates are collapsed
// by fragment identity and reranked by path tier before the similarity score.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/repopilot/repopilot/internal/common"
	"github.com/repopilot/repopilot/internal/common/telemetry"
	"github.com/repopilot/repopilot/internal/kb"
	"github.com/repopilot/repopilot/internal/vector"
)

const (
	// DefaultMaxHits bounds the reranked result the coordinator returns.
	DefaultMaxHits = 14
	// DefaultPerQueryLimit bounds each individual similarity lookup.
	DefaultPerQueryLimit = 18
	// shortQuestionWords is the expansion trigger: questions at or below
	// this length rarely embed close to structural files like READMEs.
	shortQuestionWords = 12
)

// onboardingProbes are fixed recall boosters appended for short or generic
// questions. The first group rides on the question text; the rest target
// structural files directly.
var onboardingProbes = []string{
	"Find the purpose, overview and description of the project.",
	"Find how to install, set up and run this project.",
	"Find how to test, lint, format and the development workflow.",
}

var structuralProbes = []string{
	"Project purpose readme overview package description",
	"Entry points main application initialization architecture key modules",
}

// Hit pairs a fragment with its similarity score, its priority tier, and the
// expanded query that surfaced it. Hits are ephemeral and never persisted.
type Hit struct {
	Score    float64
	Tier     int
	Query    string
	Fragment kb.Fragment
}

// Embedder is the external embedding collaborator.
type Embedder interface {
	Embed(ctx context.Context, input []string) ([][]float32, error)
}

// Coordinator executes multi-query retrieval against one namespace.
type Coordinator struct {
	embedder      Embedder
	store         vector.Store
	maxHits       int
	perQueryLimit int
}

// Option tunes a Coordinator.
type Option func(*Coordinator)

func WithMaxHits(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxHits = n
		}
	}
}

func WithPerQueryLimit(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.perQueryLimit = n
		}
	}
}

func New(embedder Embedder, store vector.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		embedder:      embedder,
		store:         store,
		maxHits:       DefaultMaxHits,
		perQueryLimit: DefaultPerQueryLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Retrieve returns the top reranked hits for the question. Zero hits is a
// valid outcome, not an error; the caller decides how to respond to it.
func (c *Coordinator) Retrieve(ctx context.Context, namespace, question string) ([]Hit, error) {
	logger := common.Logger()
	queries := ExpandQuestion(question)

	vectors, err := c.embedder.Embed(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("embed queries: %w", err)
	}
	if len(vectors) != len(queries) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d queries", len(vectors), len(queries))
	}

	var pool []Hit
	for i, query := range queries {
		results, err := c.store.Query(ctx, namespace, vectors[i], c.perQueryLimit)
		if err != nil {
			return nil, fmt.Errorf("similarity query: %w", err)
		}
		for _, res := range results {
			frag := kb.FragmentFromPayload(namespace, res.Payload)
			pool = append(pool, Hit{
				Score:    float64(res.Score),
				Tier:     BoostFor(frag),
				Query:    query,
				Fragment: frag,
			})
		}
	}

	hits := Rerank(Dedup(pool))
	if len(hits) > c.maxHits {
		hits = hits[:c.maxHits]
	}
	telemetry.RecordRetrieval(len(queries))
	logger.Debug("retriever: retrieval complete",
		"namespace", namespace, "queries", len(queries), "candidates", len(pool), "hits", len(hits))
	return hits, nil
}

// ExpandQuestion produces the ordered query set for a question: always the
// verbatim question, plus the onboarding probes when the question is short
// or generic enough that a single embedding is unlikely to surface
// structural files.
func ExpandQuestion(question string) []string {
	question = strings.TrimSpace(question)
	queries := []string{question}
	if !isShortOrGeneric(question) {
		return queries
	}
	for _, probe := range onboardingProbes {
		queries = append(queries, question+"\n"+probe)
	}
	queries = append(queries, structuralProbes...)
	return queries
}

func isShortOrGeneric(question string) bool {
	if len(strings.Fields(question)) <= shortQuestionWords {
		return true
	}
	lower := strings.ToLower(question)
	for _, marker := range []string{"what is this", "what does this", "overview", "about this repo", "getting started", "how do i start"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Dedup collapses candidates sharing a fragment identity, keeping the
// first-seen entry. The same fragment routinely arrives once per expanded
// query and must count once.
func Dedup(hits []Hit) []Hit {
	seen := make(map[string]struct{}, len(hits))
	out := hits[:0:0]
	for _, hit := range hits {
		key := dedupKey(hit.Fragment)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, hit)
	}
	return out
}

func dedupKey(frag kb.Fragment) string {
	return fmt.Sprintf("%s|%d|%d|%d", frag.Path, frag.ChunkIndex, frag.StartLine, frag.EndLine)
}

// Rerank sorts hits descending by (tier, score). The tier dominates: a
// low-scoring README outranks a high-scoring test fixture. The sort is
// stable so full ties keep first-seen order.
func Rerank(hits []Hit) []Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Tier != hits[j].Tier {
			return hits[i].Tier > hits[j].Tier
		}
		return hits[i].Score > hits[j].Score
	})
	return hits
}
