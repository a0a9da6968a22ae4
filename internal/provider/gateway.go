// Package provider wraps model vendors behind a single Gateway
// interface so the rest of the system never branches on vendor names.
package provider

import (
	"context"
	"fmt"

	"github.com/raglens/backend/internal/storage/models"
	"github.com/raglens/backend/pkg/config"
)

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type Completion struct {
	Text  string
	Usage models.TokenUsage
	Cost  float64
}

// Gateway is a single model vendor. Implementations handle retries,
// circuit breaking and cost accounting internally.
type Gateway interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
	ID() string
	Model() string
}

// New builds a Gateway for the named vendor. An empty model uses the
// configured default for that vendor.
func New(cfg config.ProvidersConfig, id, model string) (Gateway, error) {
	switch id {
	case "anthropic":
		pc := cfg.Anthropic
		if model != "" {
			pc.Model = model
		}
		return newAnthropicGateway(pc), nil
	case "openai":
		pc := cfg.OpenAI
		if model != "" {
			pc.Model = model
		}
		return newOpenAIGateway(pc), nil
	default:
		return nil, fmt.Errorf("unknown provider: %q", id)
	}
}
