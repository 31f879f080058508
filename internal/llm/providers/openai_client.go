package providers

import (
	"context"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/repopilot/repopilot/internal/common"
)

// OpenAIProvider backs both embeddings and answer synthesis with the OpenAI
// API.
type OpenAIProvider struct {
	client     *openai.Client
	chatModel  string
	embedModel openai.EmbeddingModel
}

// NewOpenAIProvider builds a provider from the given client. Model names are
// overridable through OPENAI_CHAT_MODEL and OPENAI_EMBED_MODEL.
func NewOpenAIProvider(client *openai.Client) *OpenAIProvider {
	chatModel := strings.TrimSpace(os.Getenv("OPENAI_CHAT_MODEL"))
	if chatModel == "" {
		chatModel = openai.GPT4oMini
	}
	embedModel := openai.EmbeddingModel(strings.TrimSpace(os.Getenv("OPENAI_EMBED_MODEL")))
	if embedModel == "" {
		embedModel = openai.SmallEmbedding3
	}
	common.Logger().Info("llm: openai provider configured", "chat_model", chatModel, "embed_model", string(embedModel))
	return &OpenAIProvider{client: client, chatModel: chatModel, embedModel: embedModel}
}

func (o *OpenAIProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if o.client == nil {
		return "", fmt.Errorf("nil openai client")
	}
	logger := common.Logger()
	req := openai.ChatCompletionRequest{
		Model:       o.chatModel,
		Temperature: 0.2,
	}
	for _, msg := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		logger.Error("llm: chat completion failed", "error", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (o *OpenAIProvider) Embed(ctx context.Context, input []string) ([][]float32, error) {
	if o.client == nil {
		return nil, fmt.Errorf("nil openai client")
	}
	if len(input) == 0 {
		return nil, nil
	}
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: o.embedModel,
		Input: input,
	})
	if err != nil {
		common.Logger().Error("llm: embedding request failed", "items", len(input), "error", err)
		return nil, err
	}
	if len(resp.Data) != len(input) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(input), len(resp.Data))
	}
	vectors := make([][]float32, len(resp.Data))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", data.Index)
		}
		vectors[data.Index] = data.Embedding
	}
	return vectors, nil
}

func (o *OpenAIProvider) Generative() bool { return true }

func (o *OpenAIProvider) Name() string { return "openai" }
