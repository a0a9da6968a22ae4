package diagnosis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raglens/backend/internal/provider"
	"github.com/raglens/backend/internal/storage/models"
	"github.com/raglens/backend/pkg/logger"
)

func init() {
	if err := logger.Init("error", "console", "stdout"); err != nil {
		panic(err)
	}
}

type fakeStore struct {
	details []models.EvaluationDetail
	err     error
}

func (f *fakeStore) ListEvaluationsSince(since time.Time) ([]models.EvaluationDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.details, nil
}

type fakeGateway struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeGateway) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.Completion, error) {
	f.prompts = append(f.prompts, req.UserPrompt)
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Completion{Text: f.response}, nil
}

func (f *fakeGateway) ID() string    { return "fake" }
func (f *fakeGateway) Model() string { return "fake-model" }

func detail(id string, score float64, category, intent string) models.EvaluationDetail {
	return models.EvaluationDetail{
		EvaluationRecord: models.EvaluationRecord{
			ExchangeID:   id,
			OverallScore: &score,
			CreatedAt:    time.Now(),
		},
		QueryText:      "query for " + id,
		FilterCategory: category,
		FilterIntent:   intent,
	}
}

func TestGenerateReportInsufficientData(t *testing.T) {
	store := &fakeStore{details: []models.EvaluationDetail{
		detail("e1", 0.9, "billing", "refund"),
		detail("e2", 0.5, "billing", "refund"),
	}}
	gw := &fakeGateway{}
	agent := NewAgent(store, gw, 7, 10)

	report, err := agent.GenerateReport(context.Background(), 0, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalEvaluations)
	assert.Equal(t, "Insufficient data: Only 2 evaluations found. Need at least 10.", report.Summary)
	assert.Empty(t, report.Issues)
	assert.Empty(t, report.Actions)
	assert.Empty(t, gw.prompts, "no model call without enough data")
}

func TestGatherMetricsBuckets(t *testing.T) {
	store := &fakeStore{details: []models.EvaluationDetail{
		detail("e1", 0.2, "billing", ""),
		detail("e2", 0.5, "", "refund"),
		detail("e3", 0.65, "shipping", "tracking"),
		detail("e4", 0.95, "shipping", "tracking"),
	}}
	agent := NewAgent(store, &fakeGateway{}, 7, 10)

	m, err := agent.gatherMetrics(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 4, m.total)
	assert.Equal(t, 1, m.distribution["<0.4"])
	assert.Equal(t, 1, m.distribution["0.4-0.6"])
	assert.Equal(t, 1, m.distribution["0.6-0.8"])
	assert.Equal(t, 1, m.distribution["0.8-1.0"])

	require.NotNil(t, m.avgScore)
	assert.InDelta(t, (0.2+0.5+0.65+0.95)/4, *m.avgScore, 1e-9)

	assert.Equal(t, 2, m.categoryBreakdown["shipping"].count)
	assert.Equal(t, 1, m.categoryBreakdown["unknown"].count, "missing category falls back to unknown")
	assert.Equal(t, 1, m.intentBreakdown["unknown"].count)

	// Three evaluations score below 0.7.
	assert.Len(t, m.lowScoring, 3)
}

func populatedStore(n int, score float64) *fakeStore {
	store := &fakeStore{}
	for i := 0; i < n; i++ {
		store.details = append(store.details, detail("e", score, "billing", "refund"))
	}
	return store
}

func TestGenerateReportActionMapping(t *testing.T) {
	store := populatedStore(12, 0.5)
	gw := &fakeGateway{response: `{
		"issues": [
			{"category": "retrieval", "severity": "high", "description": "Context often irrelevant", "affected_queries_pattern": "multi-part questions", "suggested_fix": "Tune the embedding model"},
			{"category": "knowledge_gap", "severity": "medium", "description": "No coverage for returns", "affected_queries_pattern": "return shipping"},
			{"category": "latency", "severity": "low", "description": "Slow responses"}
		],
		"summary": "Retrieval quality is the main problem."
	}`}
	agent := NewAgent(store, gw, 7, 10)

	report, err := agent.GenerateReport(context.Background(), 7, 10)
	require.NoError(t, err)

	assert.Equal(t, "Retrieval quality is the main problem.", report.Summary)
	require.Len(t, report.Issues, 3)
	assert.Equal(t, "issue_1", report.Issues[0].ID)
	assert.Equal(t, CategoryRetrieval, report.Issues[0].Category)
	assert.Equal(t, 10, report.Issues[0].AffectedCount, "low-scoring list caps at ten")
	assert.Len(t, report.Issues[0].ExampleQueries, 3)

	byID := map[string]Action{}
	for _, a := range report.Actions {
		byID[a.ID] = a
	}

	retrievalAction := byID["action_issue_1_1"]
	assert.Equal(t, ActionAutoSafe, retrievalAction.ActionType)
	assert.Equal(t, ParamChange{From: 5, To: 7}, retrievalAction.ParameterChanges["top_k"])

	llmAction := byID["action_issue_1_llm"]
	assert.Equal(t, ActionNeedsApproval, llmAction.ActionType)
	assert.Equal(t, "Tune the embedding model", llmAction.Description)

	gapAction := byID["action_issue_2_1"]
	assert.Equal(t, ActionManual, gapAction.ActionType)
	assert.Contains(t, gapAction.Description, "return shipping")

	latencyAction := byID["action_issue_3_1"]
	assert.Equal(t, ActionAutoSafe, latencyAction.ActionType)
	assert.Equal(t, ParamChange{From: 5, To: 3}, latencyAction.ParameterChanges["top_k"])
}

func TestGenerateReportSkipsMalformedIssues(t *testing.T) {
	store := populatedStore(12, 0.5)
	gw := &fakeGateway{response: `{
		"issues": [
			{"category": "nonsense", "severity": "high", "description": "bad category"},
			{"category": "generation", "severity": "catastrophic", "description": "bad severity"},
			{"description": "defaults apply"}
		],
		"summary": "ok"
	}`}
	agent := NewAgent(store, gw, 7, 10)

	report, err := agent.GenerateReport(context.Background(), 7, 10)
	require.NoError(t, err)

	require.Len(t, report.Issues, 1)
	assert.Equal(t, CategoryGeneration, report.Issues[0].Category)
	assert.Equal(t, SeverityMedium, report.Issues[0].Severity)
}

func TestGenerateReportModelFailureDegrades(t *testing.T) {
	store := populatedStore(12, 0.5)
	gw := &fakeGateway{err: errors.New("model unavailable")}
	agent := NewAgent(store, gw, 7, 10)

	report, err := agent.GenerateReport(context.Background(), 7, 10)
	require.NoError(t, err, "model failure degrades the report, it does not fail it")

	assert.Contains(t, report.Summary, "Analysis failed:")
	assert.Empty(t, report.Issues)
	assert.Empty(t, report.Actions)
	assert.Equal(t, 12, report.TotalEvaluations)
}

func TestQuickSummaryAlerts(t *testing.T) {
	t.Run("healthy window has no alerts", func(t *testing.T) {
		agent := NewAgent(populatedStore(8, 0.9), &fakeGateway{}, 7, 10)
		summary, err := agent.QuickSummary(7)
		require.NoError(t, err)
		assert.Empty(t, summary.Alerts)
		assert.Zero(t, summary.LowScoringCount)
	})

	t.Run("low average raises a high alert", func(t *testing.T) {
		agent := NewAgent(populatedStore(8, 0.5), &fakeGateway{}, 7, 10)
		summary, err := agent.QuickSummary(7)
		require.NoError(t, err)

		require.NotEmpty(t, summary.Alerts)
		assert.Equal(t, "low_avg_score", summary.Alerts[0].Type)
		assert.Equal(t, SeverityHigh, summary.Alerts[0].Severity)
	})

	t.Run("weak category with enough samples raises a medium alert", func(t *testing.T) {
		store := &fakeStore{}
		for i := 0; i < 5; i++ {
			store.details = append(store.details, detail("weak", 0.5, "billing", "refund"))
		}
		for i := 0; i < 20; i++ {
			store.details = append(store.details, detail("ok", 0.95, "shipping", "tracking"))
		}
		agent := NewAgent(store, &fakeGateway{}, 7, 10)

		summary, err := agent.QuickSummary(7)
		require.NoError(t, err)

		found := false
		for _, alert := range summary.Alerts {
			if alert.Type == "low_category_score" {
				found = true
				assert.Equal(t, SeverityMedium, alert.Severity)
				assert.Contains(t, alert.Message, "billing")
			}
		}
		assert.True(t, found)
	})
}

type fakeTuner struct {
	topK int
}

func (f *fakeTuner) TopK() int     { return f.topK }
func (f *fakeTuner) SetTopK(k int) { f.topK = k }

func TestApplierApply(t *testing.T) {
	t.Run("auto_safe top_k change applies", func(t *testing.T) {
		tuner := &fakeTuner{topK: 5}
		applier := NewApplier(tuner)

		err := applier.Apply(Action{
			ID:               "action_issue_1_1",
			ActionType:       ActionAutoSafe,
			ParameterChanges: map[string]ParamChange{"top_k": {From: 5, To: 7}},
		}, false)
		require.NoError(t, err)
		assert.Equal(t, 7, tuner.topK)
	})

	t.Run("needs_approval without approval is rejected", func(t *testing.T) {
		tuner := &fakeTuner{topK: 5}
		applier := NewApplier(tuner)

		err := applier.Apply(Action{
			ID:               "action_issue_1_llm",
			ActionType:       ActionNeedsApproval,
			ParameterChanges: map[string]ParamChange{"top_k": {From: 5, To: 7}},
		}, false)
		assert.Error(t, err)
		assert.Equal(t, 5, tuner.topK)
	})

	t.Run("needs_approval applies once approved", func(t *testing.T) {
		tuner := &fakeTuner{topK: 5}
		applier := NewApplier(tuner)

		err := applier.Apply(Action{
			ID:               "action_issue_1_llm",
			ActionType:       ActionNeedsApproval,
			ParameterChanges: map[string]ParamChange{"top_k": {From: 5, To: 7}},
		}, true)
		require.NoError(t, err)
		assert.Equal(t, 7, tuner.topK)
	})

	t.Run("manual is rejected even when approved", func(t *testing.T) {
		tuner := &fakeTuner{topK: 5}
		applier := NewApplier(tuner)

		err := applier.Apply(Action{
			ID:               "action_issue_2_1",
			ActionType:       ActionManual,
			ParameterChanges: map[string]ParamChange{"top_k": {From: 5, To: 7}},
		}, true)
		assert.Error(t, err)
		assert.Equal(t, 5, tuner.topK)
	})

	t.Run("out-of-range top_k is rejected", func(t *testing.T) {
		tuner := &fakeTuner{topK: 5}
		applier := NewApplier(tuner)

		err := applier.Apply(Action{
			ID:               "action_issue_1_1",
			ActionType:       ActionAutoSafe,
			ParameterChanges: map[string]ParamChange{"top_k": {From: 5, To: 50}},
		}, false)
		assert.Error(t, err)
		assert.Equal(t, 5, tuner.topK)
	})

	t.Run("no parameter changes is rejected", func(t *testing.T) {
		tuner := &fakeTuner{topK: 5}
		applier := NewApplier(tuner)

		err := applier.Apply(Action{ID: "a", ActionType: ActionAutoSafe}, false)
		assert.Error(t, err)
	})
}
