// Package conversation classifies incoming messages and decides how
// each type of message should be handled and evaluated.
package conversation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/raglens/backend/internal/provider"
	"github.com/raglens/backend/pkg/llmjson"
	"github.com/raglens/backend/pkg/logger"
)

// Message types a classification can produce.
const (
	TypeGreeting       = "greeting"
	TypeQuestion       = "question"
	TypeFollowUp       = "follow_up"
	TypeClarification  = "clarification"
	TypeAcknowledgment = "acknowledgment"
	TypeClosure        = "closure"
	TypeOther          = "other"
)

// Turn is one prior message in the session.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ClassificationResult struct {
	MessageType    string  `json:"message_type"`
	NeedsRetrieval bool    `json:"needs_retrieval"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
}

var validMessageTypes = map[string]bool{
	TypeGreeting:       true,
	TypeQuestion:       true,
	TypeFollowUp:       true,
	TypeClarification:  true,
	TypeAcknowledgment: true,
	TypeClosure:        true,
	TypeOther:          true,
}

var greetings = []string{
	"hi", "hello", "hey", "good morning", "good afternoon", "good evening",
}

var closures = []string{
	"bye", "goodbye", "thanks bye", "thank you bye", "that's all", "thats all",
	"no more questions", "nothing else", "i'm done", "im done",
	"that will be all", "have a good day",
}

var acknowledgments = []string{
	"ok", "okay", "got it", "i see", "understood", "i understand",
	"makes sense", "thanks", "thank you", "perfect", "great", "awesome",
	"cool", "alright", "all right", "sure", "yes", "yep", "yeah", "no", "nope",
}

var questionWords = []string{
	"how", "what", "where", "when", "why", "who", "which",
	"can", "could", "would", "is", "are", "do", "does", "will",
}

var followUpIndicators = []string{
	"it", "that", "this", "the same", "also", "and", "what about", "how about",
}

// Classifier decides the message type in two stages: cheap rules
// first, then a model call when the rules are not confident enough.
type Classifier struct {
	gateway   provider.Gateway
	maxTokens int
	log       *zap.Logger
}

func NewClassifier(gateway provider.Gateway, maxTokens int) *Classifier {
	if maxTokens == 0 {
		maxTokens = 200
	}
	return &Classifier{
		gateway:   gateway,
		maxTokens: maxTokens,
		log:       logger.Named("classifier"),
	}
}

// Classify never fails: when both the rules and the model are unable
// to decide, it falls back to treating the message as a question that
// needs retrieval.
func (c *Classifier) Classify(ctx context.Context, message string, history []Turn) ClassificationResult {
	result, ok := ruleClassify(message, history)
	if ok && result.Confidence >= 0.9 {
		c.log.Debug("Rule classification",
			zap.String("message_type", result.MessageType),
			zap.Float64("confidence", result.Confidence),
		)
		return result
	}

	llmResult, err := c.llmClassify(ctx, message, history)
	if err != nil {
		c.log.Warn("Model classification failed, using conservative default", zap.Error(err))
		return ClassificationResult{
			MessageType:    TypeQuestion,
			NeedsRetrieval: true,
			Confidence:     0.5,
			Reasoning:      "classification fallback",
		}
	}

	c.log.Debug("Model classification",
		zap.String("message_type", llmResult.MessageType),
		zap.Float64("confidence", llmResult.Confidence),
	)

	return llmResult
}

// ruleClassify handles unambiguous messages without a model call. The
// second return value is false when the rules cannot decide.
func ruleClassify(message string, history []Turn) (ClassificationResult, bool) {
	msg := strings.ToLower(strings.TrimSpace(message))
	// Trailing exclamation or period never changes the type ("thanks!"
	// is still an acknowledgment). "?" stays, it signals a question.
	msg = strings.TrimRight(msg, "!.")
	tokens := strings.Fields(msg)

	for _, g := range greetings {
		if msg == g || strings.HasPrefix(msg, g+" ") {
			return ClassificationResult{
				MessageType: TypeGreeting,
				Confidence:  0.95,
				Reasoning:   "greeting phrase",
			}, true
		}
	}

	for _, cl := range closures {
		if msg == cl || strings.HasPrefix(msg, cl) {
			return ClassificationResult{
				MessageType: TypeClosure,
				Confidence:  0.95,
				Reasoning:   "closure phrase",
			}, true
		}
	}

	if len(tokens) <= 3 {
		for _, a := range acknowledgments {
			if msg == a {
				return ClassificationResult{
					MessageType: TypeAcknowledgment,
					Confidence:  0.9,
					Reasoning:   "acknowledgment phrase",
				}, true
			}
		}
	}

	if looksLikeQuestion(msg) {
		if len(history) > 0 && containsFollowUpIndicator(msg) {
			return ClassificationResult{
				MessageType:    TypeFollowUp,
				NeedsRetrieval: true,
				Confidence:     0.8,
				Reasoning:      "question referencing prior context",
			}, true
		}
		return ClassificationResult{
			MessageType:    TypeQuestion,
			NeedsRetrieval: true,
			Confidence:     0.85,
			Reasoning:      "question form",
		}, true
	}

	if len(history) > 0 && len(tokens) < 10 {
		return ClassificationResult{
			MessageType:    TypeFollowUp,
			NeedsRetrieval: true,
			Confidence:     0.7,
			Reasoning:      "short message in ongoing conversation",
		}, true
	}

	return ClassificationResult{}, false
}

func looksLikeQuestion(msg string) bool {
	if strings.Contains(msg, "?") {
		return true
	}
	for _, w := range questionWords {
		if strings.HasPrefix(msg, w+" ") {
			return true
		}
	}
	return false
}

func containsFollowUpIndicator(msg string) bool {
	for _, ind := range followUpIndicators {
		if strings.Contains(msg, ind) {
			return true
		}
	}
	return false
}

const classifierSystemPrompt = `You classify customer support messages.

Message types:
- greeting: opening pleasantry
- question: a standalone question needing knowledge-base information
- follow_up: a question that depends on earlier conversation turns
- clarification: the customer rephrases or asks what you meant
- acknowledgment: short confirmation, no answer needed
- closure: the customer is ending the conversation
- other: anything else

Respond with JSON only:
{"message_type": "...", "needs_retrieval": true/false, "confidence": 0.0-1.0, "reasoning": "..."}`

func (c *Classifier) llmClassify(ctx context.Context, message string, history []Turn) (ClassificationResult, error) {
	var sb strings.Builder
	start := len(history) - 5
	if start < 0 {
		start = 0
	}
	for _, turn := range history[start:] {
		sb.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, truncate(turn.Content, 200)))
	}

	userPrompt := fmt.Sprintf("Conversation so far:\n%s\nClassify this message: %s", sb.String(), message)

	resp, err := c.gateway.Complete(ctx, provider.CompletionRequest{
		SystemPrompt: classifierSystemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.1,
		MaxTokens:    c.maxTokens,
	})
	if err != nil {
		return ClassificationResult{}, fmt.Errorf("classifier call failed: %w", err)
	}

	var raw struct {
		MessageType    string  `json:"message_type"`
		NeedsRetrieval *bool   `json:"needs_retrieval"`
		Confidence     float64 `json:"confidence"`
		Reasoning      string  `json:"reasoning"`
	}
	if err := llmjson.Unmarshal(resp.Text, &raw); err != nil {
		return ClassificationResult{}, fmt.Errorf("classifier output invalid: %w", err)
	}

	if !validMessageTypes[raw.MessageType] {
		return ClassificationResult{}, fmt.Errorf("classifier returned unknown message type %q", raw.MessageType)
	}

	result := ClassificationResult{
		MessageType:    raw.MessageType,
		NeedsRetrieval: true,
		Confidence:     raw.Confidence,
		Reasoning:      raw.Reasoning,
	}
	// Skipping retrieval must be stated explicitly; a reply that omits
	// needs_retrieval still retrieves.
	if raw.NeedsRetrieval != nil {
		result.NeedsRetrieval = *raw.NeedsRetrieval
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}

	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
