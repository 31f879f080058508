package providers

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
)

// ErrSynthesisUnavailable marks a Chat call against a provider that has no
// generation backend. Callers degrade to a ranked listing instead of prose.
var ErrSynthesisUnavailable = errors.New("answer synthesis unavailable: no generation credential configured")

const localEmbeddingDim = 64

// LocalProvider is the no-credential fallback. It cannot synthesize answers,
// but it produces deterministic unit-length embeddings from token hashes so
// ingestion and retrieval keep working offline. Not semantically meaningful;
// identical texts still map to identical vectors, which preserves every
// idempotence and ranking contract.
type LocalProvider struct{}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

func (l *LocalProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	return "", ErrSynthesisUnavailable
}

func (l *LocalProvider) Embed(ctx context.Context, input []string) ([][]float32, error) {
	vectors := make([][]float32, len(input))
	for i, text := range input {
		vectors[i] = hashEmbedding(text)
	}
	return vectors, nil
}

func (l *LocalProvider) Generative() bool { return false }

func (l *LocalProvider) Name() string { return "local" }

func hashEmbedding(text string) []float32 {
	vec := make([]float32, localEmbeddingDim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		sum := h.Sum32()
		vec[sum%localEmbeddingDim] += 1
		vec[(sum>>8)%localEmbeddingDim] += 0.5
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
