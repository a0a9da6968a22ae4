package scoring

import (
	"context"
	"testing"

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

func TestOverallScore(t *testing.T) {
	cfg := DefaultMetricConfig()

	t.Run("all metrics present without ground truth", func(t *testing.T) {
		scores := map[string]float64{
			"context_precision": 0.8,
			"faithfulness":      0.9,
			"answer_relevancy":  0.7,
		}
		got := OverallScore(scores, false, cfg)
		require.NotNil(t, got)
		assert.InDelta(t, 0.8*0.25+0.9*0.40+0.7*0.35, *got, 1e-4)
	})

	t.Run("missing metrics renormalize", func(t *testing.T) {
		scores := map[string]float64{"faithfulness": 0.6}
		got := OverallScore(scores, false, cfg)
		require.NotNil(t, got)
		assert.InDelta(t, 0.6, *got, 1e-9, "single metric renormalizes to itself")
	})

	t.Run("nil when no weighted metric present", func(t *testing.T) {
		scores := map[string]float64{"some_unweighted_metric": 0.9}
		assert.Nil(t, OverallScore(scores, false, cfg))
		assert.Nil(t, OverallScore(map[string]float64{}, true, cfg))
	})

	t.Run("ground truth table includes reference metrics", func(t *testing.T) {
		scores := map[string]float64{
			"context_precision":  1.0,
			"context_recall":     1.0,
			"faithfulness":       1.0,
			"answer_relevancy":   1.0,
			"answer_correctness": 1.0,
		}
		got := OverallScore(scores, true, cfg)
		require.NotNil(t, got)
		assert.Equal(t, 1.0, *got)
	})

	t.Run("reference metrics ignored without ground truth", func(t *testing.T) {
		scores := map[string]float64{
			"answer_correctness": 0.0,
			"faithfulness":       1.0,
		}
		got := OverallScore(scores, false, cfg)
		require.NotNil(t, got)
		assert.Equal(t, 1.0, *got)
	})

	t.Run("rounded to four decimals", func(t *testing.T) {
		scores := map[string]float64{
			"context_precision": 1.0 / 3.0,
			"faithfulness":      1.0 / 3.0,
			"answer_relevancy":  1.0 / 3.0,
		}
		got := OverallScore(scores, false, cfg)
		require.NotNil(t, got)
		assert.Equal(t, 0.3333, *got)
	})
}

type fakeGateway struct {
	response string
}

func (f *fakeGateway) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.Completion, error) {
	return &provider.Completion{Text: f.response}, nil
}

func (f *fakeGateway) ID() string    { return "fake" }
func (f *fakeGateway) Model() string { return "fake-model" }

func TestJudgeScore(t *testing.T) {
	in := Input{
		Query:    "How do refunds work?",
		Response: "Refunds are issued within 30 days.",
		Contexts: []models.Source{{ID: "c1", Text: "Refund policy", Score: 0.9}},
	}

	t.Run("parses scores and clamps", func(t *testing.T) {
		gw := &fakeGateway{response: `{"scores":{"context_precision":0.8,"faithfulness":1.4,"answer_relevancy":-0.2},"explanation":"ok"}`}
		j := NewJudge(gw)

		scores, err := j.Score(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, 0.8, scores["context_precision"])
		assert.Equal(t, 1.0, scores["faithfulness"])
		assert.Equal(t, 0.0, scores["answer_relevancy"])
	})

	t.Run("drops reference metrics without ground truth", func(t *testing.T) {
		gw := &fakeGateway{response: `{"scores":{"faithfulness":0.9,"answer_correctness":0.5,"context_recall":0.4}}`}
		j := NewJudge(gw)

		scores, err := j.Score(context.Background(), in)
		require.NoError(t, err)
		assert.NotContains(t, scores, "answer_correctness")
		assert.NotContains(t, scores, "context_recall")
	})

	t.Run("keeps reference metrics with ground truth", func(t *testing.T) {
		gw := &fakeGateway{response: `{"scores":{"faithfulness":0.9,"answer_correctness":0.5}}`}
		j := NewJudge(gw)

		withGT := in
		withGT.GroundTruth = "Refunds take up to 30 days."
		scores, err := j.Score(context.Background(), withGT)
		require.NoError(t, err)
		assert.Contains(t, scores, "answer_correctness")
	})

	t.Run("malformed output errors", func(t *testing.T) {
		gw := &fakeGateway{response: "The response looks quite good to me."}
		j := NewJudge(gw)

		_, err := j.Score(context.Background(), in)
		assert.Error(t, err)
	})
}
