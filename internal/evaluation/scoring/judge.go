package scoring

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/raglens/backend/internal/provider"
	"github.com/raglens/backend/pkg/llmjson"
	"github.com/raglens/backend/pkg/logger"
)

const judgeSystemPrompt = `You are an expert evaluator assessing the quality of customer support chatbot responses.

You will be given the customer's query, the knowledge-base context the chatbot saw, the chatbot's response, and sometimes a reference answer.

Score each metric between 0.0 (worst) and 1.0 (best):
- context_precision: how much of the provided context is actually relevant to the query
- faithfulness: whether every claim in the response is supported by the context
- answer_relevancy: how directly the response addresses the query
- context_recall (only when a reference answer is given): how much of the reference answer is covered by the context
- answer_correctness (only when a reference answer is given): factual agreement between response and reference answer

Respond with JSON only:
{"scores": {"context_precision": 0.0-1.0, "faithfulness": 0.0-1.0, "answer_relevancy": 0.0-1.0, "context_recall": 0.0-1.0, "answer_correctness": 0.0-1.0}, "explanation": "..."}
Omit context_recall and answer_correctness when no reference answer was given.`

// Judge scores exchanges with a single model call per exchange.
type Judge struct {
	gateway provider.Gateway
	log     *zap.Logger
}

func NewJudge(gateway provider.Gateway) *Judge {
	return &Judge{
		gateway: gateway,
		log:     logger.Named("judge"),
	}
}

func (j *Judge) ID() string {
	return "judge/" + j.gateway.ID()
}

type judgeReply struct {
	Scores      map[string]float64 `json:"scores"`
	Explanation string             `json:"explanation"`
}

func (j *Judge) Score(ctx context.Context, in Input) (map[string]float64, error) {
	resp, err := j.gateway.Complete(ctx, provider.CompletionRequest{
		SystemPrompt: judgeSystemPrompt,
		UserPrompt:   buildJudgePrompt(in),
		Temperature:  0.1,
		MaxTokens:    600,
	})
	if err != nil {
		return nil, fmt.Errorf("judge call failed: %w", err)
	}

	var reply judgeReply
	if err := llmjson.Unmarshal(resp.Text, &reply); err != nil {
		return nil, fmt.Errorf("judge output invalid: %w", err)
	}
	if len(reply.Scores) == 0 {
		return nil, fmt.Errorf("judge returned no scores")
	}

	scores := make(map[string]float64, len(reply.Scores))
	for name, score := range reply.Scores {
		scores[name] = clamp01(score)
	}

	// Reference-based metrics from a judge that was never shown a
	// reference are noise.
	if in.GroundTruth == "" {
		delete(scores, "context_recall")
		delete(scores, "answer_correctness")
	}

	j.log.Debug("Exchange scored",
		zap.Int("metrics", len(scores)),
		zap.Float64("cost", resp.Cost),
	)

	return scores, nil
}

func buildJudgePrompt(in Input) string {
	var sb strings.Builder

	sb.WriteString("CUSTOMER QUERY:\n")
	sb.WriteString(in.Query)
	sb.WriteString("\n\nRETRIEVED CONTEXT PROVIDED TO CHATBOT:\n")

	if len(in.Contexts) == 0 {
		sb.WriteString("(no context was retrieved)\n")
	}
	for i, ctx := range in.Contexts {
		sb.WriteString(fmt.Sprintf("[Context %d] (Category: %s, Intent: %s, Relevance: %.2f)\n%s\n\n",
			i+1, ctx.Metadata["category"], ctx.Metadata["intent"], ctx.Score, ctx.Text))
	}

	sb.WriteString("\nCHATBOT'S RESPONSE:\n")
	sb.WriteString(in.Response)

	if in.GroundTruth != "" {
		sb.WriteString("\n\nREFERENCE ANSWER:\n")
		sb.WriteString(in.GroundTruth)
	}

	return sb.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
