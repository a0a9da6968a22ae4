package sampler

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raglens/backend/internal/conversation"
	"github.com/raglens/backend/internal/evaluation/scoring"
	"github.com/raglens/backend/internal/storage/models"
	"github.com/raglens/backend/pkg/logger"
)

func init() {
	if err := logger.Init("error", "console", "stdout"); err != nil {
		panic(err)
	}
}

type fakeEngine struct {
	mu        sync.Mutex
	scores    map[string]float64
	err       error
	lastInput scoring.Input
	calls     int
}

func (f *fakeEngine) Score(ctx context.Context, in scoring.Input) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastInput = in
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

func (f *fakeEngine) ID() string { return "fake-engine" }

type fakeEvalStore struct {
	mu      sync.Mutex
	records []*models.EvaluationRecord
	err     error
}

func (f *fakeEvalStore) InsertEvaluation(rec *models.EvaluationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeEvalStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func newTestSampler(t *testing.T, engine *fakeEngine, store *fakeEvalStore, rate float64) *Sampler {
	t.Helper()
	s, err := New(engine, store, Config{SampleRate: rate, Workers: 2, QueueSize: 16})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSamplingRate(t *testing.T) {
	engine := &fakeEngine{scores: map[string]float64{"faithfulness": 0.9}}
	store := &fakeEvalStore{}
	s := newTestSampler(t, engine, store, 0.1)

	rng := rand.New(rand.NewSource(42))
	s.randFn = rng.Float64

	const n = 100000
	sampled := 0
	for i := 0; i < n; i++ {
		if s.shouldSample() {
			sampled++
		}
	}

	// Binomial(100000, 0.1): mean 10000, stddev ~95. Five sigma.
	assert.InDelta(t, 10000, sampled, 500)
}

func TestSampleRateZeroAndOne(t *testing.T) {
	engine := &fakeEngine{scores: map[string]float64{"faithfulness": 0.9}}
	store := &fakeEvalStore{}

	never := newTestSampler(t, engine, store, 0)
	for i := 0; i < 1000; i++ {
		assert.False(t, never.shouldSample())
	}

	always := newTestSampler(t, engine, store, 1)
	for i := 0; i < 1000; i++ {
		assert.True(t, always.shouldSample())
	}
}

func TestMaybeEnqueueEvaluates(t *testing.T) {
	engine := &fakeEngine{scores: map[string]float64{
		"context_precision": 0.8,
		"faithfulness":      0.9,
		"answer_relevancy":  0.7,
	}}
	store := &fakeEvalStore{}
	s := newTestSampler(t, engine, store, 1.0)

	ex := &models.Exchange{
		ID:           "ex-1",
		QueryText:    "how do refunds work?",
		MessageType:  conversation.TypeQuestion,
		ResponseText: "Refunds are issued in 30 days.",
		Sources:      []models.Source{{ID: "c1", Text: "policy", Score: 0.9}},
	}

	s.MaybeEnqueue(ex, nil)
	waitFor(t, func() bool { return store.count() == 1 })

	store.mu.Lock()
	rec := store.records[0]
	store.mu.Unlock()

	assert.Equal(t, "ex-1", rec.ExchangeID)
	assert.Equal(t, "sampled_question", rec.EvaluationType)
	assert.Equal(t, "fake-engine", rec.Evaluator)
	assert.False(t, rec.HasGroundTruth)
	assert.False(t, rec.HasContext)
	require.NotNil(t, rec.OverallScore)
	assert.InDelta(t, 0.8*0.25+0.9*0.40+0.7*0.35, *rec.OverallScore, 1e-4)
}

func TestMaybeEnqueueFollowUpContext(t *testing.T) {
	engine := &fakeEngine{scores: map[string]float64{"faithfulness": 0.9}}
	store := &fakeEvalStore{}
	s := newTestSampler(t, engine, store, 1.0)

	ex := &models.Exchange{
		ID:           "ex-2",
		QueryText:    "what about that fee",
		MessageType:  conversation.TypeFollowUp,
		ResponseText: "The fee is waived.",
	}
	history := []conversation.Turn{
		{Role: "user", Content: "tell me about wire transfers"},
		{Role: "assistant", Content: "Wire transfers cost $25."},
	}

	s.MaybeEnqueue(ex, history)
	waitFor(t, func() bool { return store.count() == 1 })

	engine.mu.Lock()
	query := engine.lastInput.Query
	engine.mu.Unlock()

	assert.Contains(t, query, "Conversation context:")
	assert.Contains(t, query, "User: tell me about wire transfers")
	assert.Contains(t, query, "Assistant: Wire transfers cost $25.")
	assert.Contains(t, query, "Current question: what about that fee")

	store.mu.Lock()
	assert.True(t, store.records[0].HasContext)
	store.mu.Unlock()
}

func TestEngineFailureDropped(t *testing.T) {
	engine := &fakeEngine{err: errors.New("judge unavailable")}
	store := &fakeEvalStore{}
	s := newTestSampler(t, engine, store, 1.0)

	s.MaybeEnqueue(&models.Exchange{ID: "ex-3", MessageType: conversation.TypeQuestion}, nil)

	waitFor(t, func() bool {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		return engine.calls == 1
	})
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, store.count(), "failed evaluations are dropped, not stored")
}

func TestMaybeEnqueueNeverBlocks(t *testing.T) {
	engine := &fakeEngine{scores: map[string]float64{"faithfulness": 0.9}}
	store := &fakeEvalStore{}
	s := newTestSampler(t, engine, store, 1.0)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			s.MaybeEnqueue(&models.Exchange{ID: "ex", MessageType: conversation.TypeQuestion}, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("MaybeEnqueue blocked the caller")
	}
}
