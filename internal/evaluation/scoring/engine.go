// Package scoring turns a completed exchange into named quality
// metrics in [0,1] and a weighted overall score.
package scoring

import (
	"context"
	"math"

	"github.com/raglens/backend/internal/storage/models"
)

// Input is one exchange to score. An empty GroundTruth means the
// reference-based metrics cannot be computed.
type Input struct {
	Query       string
	Response    string
	Contexts    []models.Source
	GroundTruth string
}

// Engine computes per-metric scores, each in [0,1].
type Engine interface {
	Score(ctx context.Context, in Input) (map[string]float64, error)
	ID() string
}

// MetricConfig holds the weight tables used to collapse per-metric
// scores into one number. Two tables exist because reference-based
// metrics are only available when a ground truth answer is known.
type MetricConfig struct {
	WeightsWithGroundTruth    map[string]float64
	WeightsWithoutGroundTruth map[string]float64
}

func DefaultMetricConfig() MetricConfig {
	return MetricConfig{
		WeightsWithGroundTruth: map[string]float64{
			"context_precision":  0.15,
			"context_recall":     0.15,
			"faithfulness":       0.25,
			"answer_relevancy":   0.20,
			"answer_correctness": 0.25,
		},
		WeightsWithoutGroundTruth: map[string]float64{
			"context_precision": 0.25,
			"faithfulness":      0.40,
			"answer_relevancy":  0.35,
		},
	}
}

// OverallScore computes the weighted average of the scores that both
// exist and carry a weight, renormalized by the weight actually
// present. It returns nil when no weighted metric was scored.
func OverallScore(scores map[string]float64, hasGroundTruth bool, cfg MetricConfig) *float64 {
	weights := cfg.WeightsWithoutGroundTruth
	if hasGroundTruth {
		weights = cfg.WeightsWithGroundTruth
	}

	weightedSum := 0.0
	totalWeight := 0.0

	for name, weight := range weights {
		if score, ok := scores[name]; ok {
			weightedSum += score * weight
			totalWeight += weight
		}
	}

	if totalWeight == 0 {
		return nil
	}

	normalized := math.Round(weightedSum/totalWeight*10000) / 10000
	return &normalized
}
