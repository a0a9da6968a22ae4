// Package sampler scores a random fraction of live exchanges in the
// background, off the request path.
package sampler

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/raglens/backend/internal/conversation"
	"github.com/raglens/backend/internal/evaluation/scoring"
	"github.com/raglens/backend/internal/metrics"
	"github.com/raglens/backend/internal/storage/models"
	"github.com/raglens/backend/pkg/logger"
)

const evaluationTimeout = 2 * time.Minute

// Store persists finished evaluations.
type Store interface {
	InsertEvaluation(*models.EvaluationRecord) error
}

type Config struct {
	SampleRate float64
	Workers    int
	QueueSize  int
}

// Sampler draws once per exchange and, when selected, hands the
// exchange to a bounded worker pool. A full pool drops the evaluation
// rather than delaying anything.
type Sampler struct {
	engine    scoring.Engine
	store     Store
	metricCfg scoring.MetricConfig
	rate      float64
	pool      *ants.Pool
	log       *zap.Logger

	mu     sync.Mutex
	randFn func() float64
}

func New(engine scoring.Engine, store Store, cfg Config) (*Sampler, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}

	pool, err := ants.NewPool(workers+queueSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluation pool: %w", err)
	}

	logger.Info("Evaluation sampler initialized",
		zap.Float64("sample_rate", cfg.SampleRate),
		zap.Int("workers", workers),
		zap.Int("queue_size", queueSize),
	)

	return &Sampler{
		engine:    engine,
		store:     store,
		metricCfg: scoring.DefaultMetricConfig(),
		rate:      cfg.SampleRate,
		pool:      pool,
		log:       logger.Named("sampler"),
		randFn:    rand.Float64,
	}, nil
}

func (s *Sampler) Close() {
	s.pool.Release()
}

// MaybeEnqueue makes exactly one sampling draw for the exchange and
// never blocks the caller.
func (s *Sampler) MaybeEnqueue(ex *models.Exchange, history []conversation.Turn) {
	if !s.shouldSample() {
		return
	}

	metrics.EvaluationsSampled.Inc()

	err := s.pool.Submit(func() {
		s.evaluate(ex, history)
	})
	if err != nil {
		metrics.EvaluationsDropped.Inc()
		s.log.Warn("Evaluation dropped, pool overloaded",
			zap.String("exchange_id", ex.ID),
			zap.Error(err),
		)
	}
}

func (s *Sampler) shouldSample() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.randFn() < s.rate
}

func (s *Sampler) evaluate(ex *models.Exchange, history []conversation.Turn) {
	ctx, cancel := context.WithTimeout(context.Background(), evaluationTimeout)
	defer cancel()

	evalQuery, hasContext := buildEvalQuery(ex, history)

	scores, err := s.engine.Score(ctx, scoring.Input{
		Query:    evalQuery,
		Response: ex.ResponseText,
		Contexts: ex.Sources,
	})
	if err != nil {
		metrics.EvaluationsDropped.Inc()
		s.log.Error("Evaluation failed",
			zap.String("exchange_id", ex.ID),
			zap.Error(err),
		)
		return
	}

	overall := scoring.OverallScore(scores, false, s.metricCfg)

	rec := &models.EvaluationRecord{
		ExchangeID:     ex.ID,
		EvaluationType: "sampled_" + ex.MessageType,
		Scores:         scores,
		OverallScore:   overall,
		Evaluator:      s.engine.ID(),
		HasGroundTruth: false,
		HasContext:     hasContext,
		CreatedAt:      time.Now(),
	}

	if err := s.store.InsertEvaluation(rec); err != nil {
		metrics.EvaluationsDropped.Inc()
		s.log.Error("Failed to store evaluation",
			zap.String("exchange_id", ex.ID),
			zap.Error(err),
		)
		return
	}

	if overall != nil {
		metrics.EvaluationScore.WithLabelValues(rec.EvaluationType).Observe(*overall)
	}

	s.log.Info("Exchange evaluated",
		zap.String("exchange_id", ex.ID),
		zap.Bool("has_context", hasContext),
	)
}

// buildEvalQuery prepends conversation history for follow-ups so the
// scorer can judge answers that depend on earlier turns.
func buildEvalQuery(ex *models.Exchange, history []conversation.Turn) (string, bool) {
	if ex.MessageType != conversation.TypeFollowUp || len(history) == 0 {
		return ex.QueryText, false
	}

	start := len(history) - 6
	if start < 0 {
		start = 0
	}

	var parts []string
	for _, turn := range history[start:] {
		role := "Assistant"
		if turn.Role == "user" {
			role = "User"
		}
		content := turn.Content
		if len(content) > 500 {
			content = content[:500]
		}
		parts = append(parts, fmt.Sprintf("%s: %s", role, content))
	}

	query := fmt.Sprintf("Conversation context:\n%s\n\nCurrent question: %s",
		strings.Join(parts, "\n"), ex.QueryText)

	return query, true
}
