package providers

import "context"

// Message is one turn of a chat exchange.
type Message struct {
	Role    string
	Content string
}

// Provider bundles the two model collaborators: embedding and answer
// synthesis. Generative reports whether Chat produces real completions;
// when it is false callers degrade to non-synthesized responses.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	Embed(ctx context.Context, input []string) ([][]float32, error)
	Generative() bool
	Name() string
}
