package provider

import "github.com/raglens/backend/internal/storage/models"

// modelPrice is USD per million tokens.
type modelPrice struct {
	Input  float64
	Output float64
}

var pricing = map[string]modelPrice{
	"claude-3-5-sonnet-20241022": {Input: 3.00, Output: 15.00},
	"claude-3-5-haiku-20241022":  {Input: 0.80, Output: 4.00},
	"claude-3-haiku-20240307":    {Input: 0.25, Output: 1.25},
	"claude-3-opus-20240229":     {Input: 15.00, Output: 75.00},
	"gpt-4-turbo-preview":        {Input: 10.00, Output: 30.00},
	"gpt-4o":                     {Input: 2.50, Output: 10.00},
	"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
	"gpt-3.5-turbo":              {Input: 0.50, Output: 1.50},
	"text-embedding-3-small":     {Input: 0.02, Output: 0},
	"text-embedding-3-large":     {Input: 0.13, Output: 0},
}

// CostOf computes the dollar cost of a call from its token usage.
// Unknown models cost zero rather than failing the request.
func CostOf(model string, usage models.TokenUsage) float64 {
	price, ok := pricing[model]
	if !ok {
		return 0
	}
	return float64(usage.InputTokens)/1_000_000*price.Input +
		float64(usage.OutputTokens)/1_000_000*price.Output
}
