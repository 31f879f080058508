// Package llm selects the model provider used for embeddings and answer
// synthesis. With OPENAI_API_KEY set the OpenAI backend serves both; without
// it the local fallback keeps embeddings working and synthesis degrades.
package llm

import (
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/repopilot/repopilot/internal/common"
	"github.com/repopilot/repopilot/internal/llm/providers"
)

type Message = providers.Message

type Provider = providers.Provider

// ErrSynthesisUnavailable is re-exported for callers implementing the
// degraded answer path.
var ErrSynthesisUnavailable = providers.ErrSynthesisUnavailable

// NewProvider picks a provider from the environment.
func NewProvider() Provider {
	logger := common.Logger()
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		logger.Warn("llm: OPENAI_API_KEY not set; synthesis degrades to ranked listings")
		return providers.NewLocalProvider()
	}
	config := openai.DefaultConfig(apiKey)
	if endpoint := strings.TrimSpace(os.Getenv("OPENAI_ENDPOINT")); endpoint != "" {
		logger.Info("llm: using custom openai endpoint", "endpoint", endpoint)
		config.BaseURL = endpoint
	}
	logger.Info("llm: openai provider selected")
	return providers.NewOpenAIProvider(openai.NewClientWithConfig(config))
}
