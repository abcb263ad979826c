package embedding

import (
	"fmt"

	"github.com/Voork1144/just-memory/internal/domain"
	"go.uber.org/zap"
)

const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// NewClient creates an embedding client for provider, wrapped in a circuit
// breaker. ProviderNone (or "") returns a nil client: memories are then
// stored without vectors.
func NewClient(provider, apiKey, model string, logger *zap.Logger) (domain.EmbeddingClient, error) {
	switch provider {
	case ProviderNone, "":
		return nil, nil

	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI embedding provider")
		}
		return NewBreaker(NewOpenAIClient(apiKey, model), DefaultBreakerSettings(), logger), nil

	case ProviderMock:
		return NewBreaker(NewMockClient(), DefaultBreakerSettings(), logger), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid options: none, openai, mock)", provider)
	}
}
