package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raglens_query_duration_seconds",
			Help:    "Query processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"message_type"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raglens_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"message_type", "status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raglens_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	LLMCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raglens_llm_cost_usd",
			Help: "Estimated LLM API cost in USD",
		},
		[]string{"model"},
	)

	RetrievalResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "raglens_retrieval_results_count",
			Help:    "Number of retrieved chunks per query",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)

	EvaluationsSampled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "raglens_evaluations_sampled_total",
			Help: "Total exchanges sampled for evaluation",
		},
	)

	EvaluationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "raglens_evaluations_dropped_total",
			Help: "Total evaluations dropped due to queue pressure or failures",
		},
	)

	EvaluationScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raglens_evaluation_overall_score",
			Help:    "Overall evaluation scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"evaluation_type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raglens_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raglens_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	ArticlesIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "raglens_articles_ingested_total",
			Help: "Total knowledge-base articles ingested",
		},
	)

	DiagnosisReportsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "raglens_diagnosis_reports_total",
			Help: "Total diagnosis reports generated",
		},
	)

	DiagnosisActionsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raglens_diagnosis_actions_applied_total",
			Help: "Total corrective actions applied",
		},
		[]string{"action_type", "status"},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(LLMCost)
	prometheus.MustRegister(RetrievalResultsCount)
	prometheus.MustRegister(EvaluationsSampled)
	prometheus.MustRegister(EvaluationsDropped)
	prometheus.MustRegister(EvaluationScore)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(ArticlesIngested)
	prometheus.MustRegister(DiagnosisReportsGenerated)
	prometheus.MustRegister(DiagnosisActionsApplied)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
