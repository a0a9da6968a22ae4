// Package rag orchestrates the retrieval-augmented answer pipeline.
package rag

import (
	"fmt"
	"strings"

	"github.com/raglens/backend/internal/conversation"
	"github.com/raglens/backend/internal/storage/models"
)

const systemPrompt = `You are a helpful customer support assistant. Your role is to provide accurate, friendly, and concise answers to customer questions.

Use the provided context from our knowledge base to answer the question. The context includes metadata about the category and intent to help you understand the context better.

Guidelines:
- Be professional and friendly
- Keep answers concise but complete
- Use information from the provided context
- If the context doesn't contain relevant information, politely say you don't have that information and suggest contacting support
- Provide step-by-step instructions when appropriate
- Adapt your tone based on the customer's question style (formal, casual, etc.)
- Do not use markdown formatting such as **bold**, *italic*, or bullet points. Write in plain text only.`

const directSystemPrompt = `You are a helpful customer support assistant. Respond naturally to the user.`

// NoAnswerText is returned when retrieval finds nothing usable.
const NoAnswerText = "I couldn't find relevant information to answer your question. Please contact support for assistance."

// flagExplanations maps single-letter query-style flag codes from the
// knowledge base to descriptions the model can use.
var flagExplanations = map[rune]string{
	'M': "Morphological variation (inflections)",
	'L': "Semantic variation (synonyms, paraphrasing)",
	'B': "Basic syntactic structure",
	'I': "Interrogative structure (question form)",
	'C': "Coordinated structure (multiple clauses)",
	'N': "Negation present",
	'P': "Polite/formal tone",
	'Q': "Colloquial/informal language",
	'W': "Offensive or frustrated language",
	'K': "Keyword mode (telegraphic)",
	'E': "Abbreviations used",
	'Z': "Contains errors or typos",
}

func describeFlags(flags string) string {
	if flags == "" {
		return "Standard query"
	}

	var descriptions []string
	for _, f := range flags {
		if desc, ok := flagExplanations[f]; ok {
			descriptions = append(descriptions, desc)
		}
	}

	if len(descriptions) == 0 {
		return "Standard query"
	}
	return "Query style: " + strings.Join(descriptions, ", ")
}

// buildRAGPrompt formats retrieved sources, in rank order, into the
// generation prompt together with their metadata.
func buildRAGPrompt(query string, sources []models.Source) string {
	separator := strings.Repeat("=", 60)

	blocks := make([]string, 0, len(sources))
	for i, src := range sources {
		category := src.Metadata["category"]
		if category == "" {
			category = "N/A"
		}
		intent := src.Metadata["intent"]
		if intent == "" {
			intent = "N/A"
		}

		blocks = append(blocks, fmt.Sprintf(`[Context %d]
Category: %s
Intent: %s
%s
Relevance Score: %.2f

%s`, i+1, category, intent, describeFlags(src.Metadata["flags"]), src.Score, src.Text))
	}

	contextStr := strings.Join(blocks, "\n\n"+separator+"\n\n")

	return fmt.Sprintf(`Context from knowledge base:

%s

%s

Customer Question: %s

Please provide a helpful answer based on the context above. Consider the category and intent of the retrieved contexts to ensure your response is relevant and appropriate.`, contextStr, separator, query)
}

// augmentFollowUpQuery prepends the last conversation turns so that
// retrieval sees the referent of anaphora like "that" or "it".
func augmentFollowUpQuery(query string, history []conversation.Turn) string {
	if len(history) == 0 {
		return query
	}

	start := len(history) - 4
	if start < 0 {
		start = 0
	}

	var parts []string
	for _, turn := range history[start:] {
		role := "Assistant"
		if turn.Role == "user" {
			role = "Customer"
		}
		content := turn.Content
		if len(content) > 200 {
			content = content[:200]
		}
		parts = append(parts, fmt.Sprintf("%s: %s", role, content))
	}

	return fmt.Sprintf("%s\n\nCurrent question: %s", strings.Join(parts, "\n"), query)
}
