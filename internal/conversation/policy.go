package conversation

import "math/rand"

// EvaluationCriteria maps a message type to the metric weights a judge
// should apply when scoring responses of that type.
var EvaluationCriteria = map[string]map[string]float64{
	TypeQuestion: {
		"accuracy":     0.25,
		"completeness": 0.20,
		"faithfulness": 0.20,
		"tone":         0.10,
		"relevance":    0.15,
		"clarity":      0.10,
	},
	TypeFollowUp: {
		"context_awareness": 0.30,
		"accuracy":          0.30,
		"relevance":         0.25,
		"tone":              0.15,
	},
	TypeClarification: {
		"clarity":      0.40,
		"completeness": 0.35,
		"tone":         0.25,
	},
	TypeAcknowledgment: {
		"appropriateness": 0.50,
		"tone":            0.50,
	},
	TypeClosure: {
		"appropriateness": 0.50,
		"tone":            0.50,
	},
	TypeGreeting: {
		"appropriateness": 0.50,
		"tone":            0.50,
	},
	TypeOther: {
		"relevance": 0.50,
		"tone":      0.50,
	},
}

// CriteriaFor falls back to the question weights for unknown types,
// the strictest rubric in the table.
func CriteriaFor(messageType string) map[string]float64 {
	if c, ok := EvaluationCriteria[messageType]; ok {
		return c
	}
	return EvaluationCriteria[TypeQuestion]
}

var cannedResponses = map[string][]string{
	TypeGreeting: {
		"Hello! How can I help you today?",
		"Hi there! What can I assist you with?",
		"Welcome! How may I help you?",
	},
	TypeAcknowledgment: {
		"You're welcome! Is there anything else I can help you with?",
		"Glad I could help! Let me know if you have any other questions.",
		"Happy to help! Feel free to ask if you need anything else.",
	},
	TypeClosure: {
		"Thank you for contacting us! Have a great day!",
		"Goodbye! Don't hesitate to reach out if you need help in the future.",
		"Take care! We're always here if you need assistance.",
	},
}

// IsCanned reports whether a message type is answered from a fixed
// phrase set without retrieval or generation.
func IsCanned(messageType string) bool {
	_, ok := cannedResponses[messageType]
	return ok
}

// CannedResponse picks one of the fixed phrases for the type uniformly
// at random. It returns "" for types that are not canned.
func CannedResponse(messageType string) string {
	phrases, ok := cannedResponses[messageType]
	if !ok {
		return ""
	}
	return phrases[rand.Intn(len(phrases))]
}
