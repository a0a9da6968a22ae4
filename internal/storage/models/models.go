package models

import "time"

// TokenUsage counts tokens consumed by a single model call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Source is one retrieved chunk cited by a response, in rank order.
type Source struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Exchange is one query/response pair with everything needed to
// evaluate it later: classification, sources, cost and latency.
type Exchange struct {
	ID             string     `json:"id"`
	SessionID      string     `json:"session_id"`
	QueryText      string     `json:"query_text"`
	MessageType    string     `json:"message_type"`
	NeedsRetrieval bool       `json:"needs_retrieval"`
	Provider       string     `json:"provider"`
	Model          string     `json:"model"`
	ResponseText   string     `json:"response_text"`
	Sources        []Source   `json:"sources,omitempty"`
	TokenUsage     TokenUsage `json:"token_usage"`
	LatencyMS      int        `json:"latency_ms"`
	Cost           float64    `json:"cost"`
	FilterCategory string     `json:"filter_category,omitempty"`
	FilterIntent   string     `json:"filter_intent,omitempty"`
	TopK           int        `json:"top_k"`
	CreatedAt      time.Time  `json:"created_at"`
}

// EvaluationRecord holds per-metric scores for one exchange.
// OverallScore is nil when no weighted metric was computable.
type EvaluationRecord struct {
	ID             int                `json:"id"`
	ExchangeID     string             `json:"exchange_id"`
	EvaluationType string             `json:"evaluation_type"`
	Scores         map[string]float64 `json:"scores"`
	OverallScore   *float64           `json:"overall_score"`
	Evaluator      string             `json:"evaluator"`
	HasGroundTruth bool               `json:"has_ground_truth"`
	HasContext     bool               `json:"has_context"`
	CreatedAt      time.Time          `json:"created_at"`
}

// EvaluationDetail joins an evaluation with the exchange fields the
// diagnosis agent aggregates over.
type EvaluationDetail struct {
	EvaluationRecord
	QueryText      string `json:"query_text"`
	ResponseText   string `json:"response_text"`
	FilterCategory string `json:"filter_category"`
	FilterIntent   string `json:"filter_intent"`
	MessageType    string `json:"message_type"`
}

type GoldenTestCase struct {
	ID          string    `json:"id"`
	Question    string    `json:"question"`
	GroundTruth string    `json:"ground_truth"`
	Category    string    `json:"category"`
	Intent      string    `json:"intent"`
	CreatedAt   time.Time `json:"created_at"`
}

// Article is a knowledge-base document before chunking.
type Article struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Intent    string    `json:"intent"`
	Flags     []string  `json:"flags"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ArticleChunk struct {
	ID          string    `json:"id"`
	ArticleID   string    `json:"article_id"`
	ChunkIndex  int       `json:"chunk_index"`
	Text        string    `json:"text"`
	EmbeddingID string    `json:"embedding_id"`
	CreatedAt   time.Time `json:"created_at"`
}
