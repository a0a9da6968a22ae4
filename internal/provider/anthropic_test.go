package provider

import (
	"testing"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicText(t *testing.T) {
	t.Run("empty content is an error", func(t *testing.T) {
		_, err := anthropicText(anthropic.MessagesResponse{})
		assert.Error(t, err)
	})

	t.Run("first text block is returned", func(t *testing.T) {
		text := "Refunds are issued within 30 days."
		resp := anthropic.MessagesResponse{
			Content: []anthropic.MessageContent{
				{Type: anthropic.MessagesContentTypeText, Text: &text},
			},
		}

		got, err := anthropicText(resp)
		require.NoError(t, err)
		assert.Equal(t, text, got)
	})
}
