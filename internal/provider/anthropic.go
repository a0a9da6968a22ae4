package provider

import (
	"context"
	"fmt"
	"time"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/raglens/backend/internal/storage/models"
	"github.com/raglens/backend/pkg/circuitbreaker"
	"github.com/raglens/backend/pkg/config"
	"github.com/raglens/backend/pkg/logger"
	"github.com/raglens/backend/pkg/retry"
)

type anthropicGateway struct {
	client      *anthropic.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func newAnthropicGateway(cfg config.ProviderConfig) *anthropicGateway {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	cb := circuitbreaker.NewCircuitBreaker("anthropic", circuitbreaker.Config{
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

	logger.Info("Anthropic gateway initialized", zap.String("model", cfg.Model))

	return &anthropicGateway{
		client:      anthropic.NewClient(cfg.APIKey),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (g *anthropicGateway) ID() string    { return "anthropic" }
func (g *anthropicGateway) Model() string { return g.model }

func (g *anthropicGateway) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
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

	var result *Completion

	err := g.cb.Execute(ctx, func() error {
		return retry.Do(ctx, g.retryConfig, func() error {
			resp, err := g.client.CreateMessages(ctx, anthropic.MessagesRequest{
				Model: anthropic.Model(g.model),
				Messages: []anthropic.Message{
					anthropic.NewUserTextMessage(req.UserPrompt),
				},
				System:      req.SystemPrompt,
				Temperature: &temperature,
				MaxTokens:   maxTokens,
			})

			if err != nil {
				return fmt.Errorf("anthropic completion failed: %w", err)
			}

			text, err := anthropicText(resp)
			if err != nil {
				return err
			}

			usage := models.TokenUsage{
				InputTokens:  resp.Usage.InputTokens,
				OutputTokens: resp.Usage.OutputTokens,
			}

			logger.Debug("Anthropic completion generated",
				zap.Int("input_tokens", usage.InputTokens),
				zap.Int("output_tokens", usage.OutputTokens),
			)

			result = &Completion{
				Text:  text,
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

// anthropicText extracts the first text block of a response. Stop
// reasons like max_tokens can produce a message with no content.
func anthropicText(resp anthropic.MessagesResponse) (string, error) {
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("anthropic returned no content blocks")
	}
	return resp.Content[0].GetText(), nil
}
