package provider

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/raglens/backend/internal/storage/models"
	"github.com/raglens/backend/pkg/circuitbreaker"
	"github.com/raglens/backend/pkg/config"
	"github.com/raglens/backend/pkg/logger"
	"github.com/raglens/backend/pkg/retry"
)

type openaiGateway struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func newOpenAIGateway(cfg config.ProviderConfig) *openaiGateway {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	cb := circuitbreaker.NewCircuitBreaker("openai", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("OpenAI gateway initialized", zap.String("model", cfg.Model))

	return &openaiGateway{
		client:      openai.NewClient(cfg.APIKey),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (g *openaiGateway) ID() string    { return "openai" }
func (g *openaiGateway) Model() string { return g.model }

func (g *openaiGateway) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = g.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	var result *Completion

	err := g.cb.Execute(ctx, func() error {
		return retry.Do(ctx, g.retryConfig, func() error {
			resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       g.model,
				Messages:    messages,
				Temperature: temperature,
				MaxTokens:   maxTokens,
			})

			if err != nil {
				return fmt.Errorf("openai completion failed: %w", err)
			}

			usage := models.TokenUsage{
				InputTokens:  resp.Usage.PromptTokens,
				OutputTokens: resp.Usage.CompletionTokens,
			}

			logger.Debug("OpenAI completion generated",
				zap.Int("input_tokens", usage.InputTokens),
				zap.Int("output_tokens", usage.OutputTokens),
			)

			result = &Completion{
				Text:  resp.Choices[0].Message.Content,
				Usage: usage,
				Cost:  CostOf(g.model, usage),
			}

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}
