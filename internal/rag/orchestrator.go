package rag

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raglens/backend/internal/conversation"
	"github.com/raglens/backend/internal/metrics"
	"github.com/raglens/backend/internal/provider"
	"github.com/raglens/backend/internal/retrieval"
	"github.com/raglens/backend/internal/storage/models"
	"github.com/raglens/backend/pkg/logger"
)

// Store persists completed exchanges.
type Store interface {
	InsertExchange(*models.Exchange) error
}

// Sampler decides whether to queue an exchange for evaluation. It
// must never block the request path.
type Sampler interface {
	MaybeEnqueue(ex *models.Exchange, history []conversation.Turn)
}

type Request struct {
	SessionID      string
	Query          string
	Provider       string
	TopK           int
	FilterCategory string
	FilterIntent   string
	History        []conversation.Turn
}

// Orchestrator routes each message through classification, optional
// retrieval and generation, then records the exchange.
type Orchestrator struct {
	classifier *conversation.Classifier
	retriever  retrieval.Client
	gateways   map[string]provider.Gateway
	defaultGW  string
	store      Store
	sampler    Sampler
	topK       atomic.Int32
	log        *zap.Logger
}

func NewOrchestrator(
	classifier *conversation.Classifier,
	retriever retrieval.Client,
	gateways map[string]provider.Gateway,
	defaultProvider string,
	store Store,
	sampler Sampler,
	defaultTopK int,
) *Orchestrator {
	o := &Orchestrator{
		classifier: classifier,
		retriever:  retriever,
		gateways:   gateways,
		defaultGW:  defaultProvider,
		store:      store,
		sampler:    sampler,
		log:        logger.Named("orchestrator"),
	}
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	o.topK.Store(int32(defaultTopK))
	return o
}

// TopK is the current retrieval depth. It can be adjusted at runtime
// by diagnosis actions.
func (o *Orchestrator) TopK() int {
	return int(o.topK.Load())
}

func (o *Orchestrator) SetTopK(k int) {
	o.topK.Store(int32(k))
	o.log.Info("Retrieval top_k updated", zap.Int("top_k", k))
}

func (o *Orchestrator) Answer(ctx context.Context, req Request) (*models.Exchange, error) {
	start := time.Now()

	classification := o.classifier.Classify(ctx, req.Query, req.History)

	o.log.Info("Message classified",
		zap.String("message_type", classification.MessageType),
		zap.Bool("needs_retrieval", classification.NeedsRetrieval),
		zap.Float64("confidence", classification.Confidence),
	)

	gw, err := o.selectGateway(req.Provider)
	if err != nil {
		metrics.QueryTotal.WithLabelValues(classification.MessageType, "error").Inc()
		return nil, err
	}

	topK := req.TopK
	if topK <= 0 {
		topK = o.TopK()
	}

	ex := &models.Exchange{
		ID:             uuid.New().String(),
		SessionID:      req.SessionID,
		QueryText:      req.Query,
		MessageType:    classification.MessageType,
		NeedsRetrieval: classification.NeedsRetrieval,
		Provider:       gw.ID(),
		Model:          gw.Model(),
		FilterCategory: req.FilterCategory,
		FilterIntent:   req.FilterIntent,
		TopK:           topK,
		CreatedAt:      time.Now(),
	}

	switch {
	case conversation.IsCanned(classification.MessageType):
		ex.ResponseText = conversation.CannedResponse(classification.MessageType)

	case classification.NeedsRetrieval:
		if err := o.answerWithRetrieval(ctx, gw, req, topK, ex); err != nil {
			metrics.QueryTotal.WithLabelValues(classification.MessageType, "error").Inc()
			return nil, err
		}

	default:
		if err := o.answerDirect(ctx, gw, req.Query, ex); err != nil {
			metrics.QueryTotal.WithLabelValues(classification.MessageType, "error").Inc()
			return nil, err
		}
	}

	if err := o.store.InsertExchange(ex); err != nil {
		o.log.Error("Failed to persist exchange", zap.Error(err))
	}

	if o.sampler != nil {
		o.sampler.MaybeEnqueue(ex, req.History)
	}

	metrics.QueryTotal.WithLabelValues(classification.MessageType, "success").Inc()
	metrics.QueryDuration.WithLabelValues(classification.MessageType).Observe(time.Since(start).Seconds())
	metrics.LLMCost.WithLabelValues(ex.Model).Add(ex.Cost)
	metrics.LLMTokensUsed.WithLabelValues(ex.Model, "input").Add(float64(ex.TokenUsage.InputTokens))
	metrics.LLMTokensUsed.WithLabelValues(ex.Model, "output").Add(float64(ex.TokenUsage.OutputTokens))

	return ex, nil
}

func (o *Orchestrator) selectGateway(id string) (provider.Gateway, error) {
	if id == "" {
		id = o.defaultGW
	}
	gw, ok := o.gateways[id]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %q", id)
	}
	return gw, nil
}

func (o *Orchestrator) answerWithRetrieval(ctx context.Context, gw provider.Gateway, req Request, topK int, ex *models.Exchange) error {
	query := req.Query
	if ex.MessageType == conversation.TypeFollowUp {
		query = augmentFollowUpQuery(req.Query, req.History)
	}

	sources, err := o.retriever.Query(ctx, query, topK, retrieval.Filter{
		Category: req.FilterCategory,
		Intent:   req.FilterIntent,
	})
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	metrics.RetrievalResultsCount.Observe(float64(len(sources)))

	if len(sources) == 0 {
		o.log.Warn("No sources retrieved", zap.String("exchange_id", ex.ID))
		ex.ResponseText = NoAnswerText
		return nil
	}

	ex.Sources = sources

	genStart := time.Now()
	completion, err := gw.Complete(ctx, provider.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   buildRAGPrompt(query, sources),
	})
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	ex.ResponseText = completion.Text
	ex.TokenUsage = completion.Usage
	ex.Cost = completion.Cost
	ex.LatencyMS = int(time.Since(genStart).Milliseconds())

	return nil
}

// answerDirect handles non-canned messages that need no retrieval.
// These exchanges are billed as free: they carry no knowledge-base
// context and are excluded from cost accounting.
func (o *Orchestrator) answerDirect(ctx context.Context, gw provider.Gateway, query string, ex *models.Exchange) error {
	genStart := time.Now()
	completion, err := gw.Complete(ctx, provider.CompletionRequest{
		SystemPrompt: directSystemPrompt,
		UserPrompt:   query,
		Temperature:  0.7,
		MaxTokens:    500,
	})
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	ex.ResponseText = completion.Text
	ex.LatencyMS = int(time.Since(genStart).Milliseconds())

	return nil
}
