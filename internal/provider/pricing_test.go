package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raglens/backend/internal/storage/models"
)

func TestCostOf(t *testing.T) {
	t.Run("known model", func(t *testing.T) {
		usage := models.TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
		cost := CostOf("claude-3-5-sonnet-20241022", usage)
		assert.InDelta(t, 18.00, cost, 1e-9)
	})

	t.Run("proportional", func(t *testing.T) {
		usage := models.TokenUsage{InputTokens: 500, OutputTokens: 200}
		cost := CostOf("claude-3-5-sonnet-20241022", usage)
		assert.InDelta(t, 500.0/1e6*3.0+200.0/1e6*15.0, cost, 1e-12)
	})

	t.Run("unknown model is free", func(t *testing.T) {
		usage := models.TokenUsage{InputTokens: 1000, OutputTokens: 1000}
		assert.Zero(t, CostOf("some-local-model", usage))
	})

	t.Run("zero usage", func(t *testing.T) {
		assert.Zero(t, CostOf("gpt-4o", models.TokenUsage{}))
	})
}
