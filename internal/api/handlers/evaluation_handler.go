package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raglens/backend/internal/evaluation/scoring"
	"github.com/raglens/backend/internal/rag"
	"github.com/raglens/backend/internal/storage/models"
	"github.com/raglens/backend/internal/storage/sqlite"
	"github.com/raglens/backend/pkg/logger"
)

// EvaluationHandler manages the golden test set and runs it against
// the live pipeline with ground-truth scoring.
type EvaluationHandler struct {
	db           *sqlite.Client
	orchestrator *rag.Orchestrator
	engine       scoring.Engine
	metricCfg    scoring.MetricConfig
}

func NewEvaluationHandler(db *sqlite.Client, orchestrator *rag.Orchestrator, engine scoring.Engine) *EvaluationHandler {
	return &EvaluationHandler{
		db:           db,
		orchestrator: orchestrator,
		engine:       engine,
		metricCfg:    scoring.DefaultMetricConfig(),
	}
}

// RunEvaluation scores one stored exchange on demand, optionally
// against a caller-supplied reference answer. With a reference the
// ground-truth weight profile applies.
func (h *EvaluationHandler) RunEvaluation(c *fiber.Ctx) error {
	var req struct {
		ExchangeID  string `json:"exchange_id"`
		GroundTruth string `json:"ground_truth"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.ExchangeID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "exchange_id is required",
		})
	}

	ex, err := h.db.GetExchange(req.ExchangeID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Exchange not found",
		})
	}

	scores, err := h.engine.Score(c.Context(), scoring.Input{
		Query:       ex.QueryText,
		Response:    ex.ResponseText,
		Contexts:    ex.Sources,
		GroundTruth: req.GroundTruth,
	})
	if err != nil {
		logger.Error("On-demand scoring failed",
			zap.String("exchange_id", ex.ID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Scoring failed",
		})
	}

	hasGroundTruth := req.GroundTruth != ""
	overall := scoring.OverallScore(scores, hasGroundTruth, h.metricCfg)

	rec := &models.EvaluationRecord{
		ExchangeID:     ex.ID,
		EvaluationType: "on_demand",
		Scores:         scores,
		OverallScore:   overall,
		Evaluator:      h.engine.ID(),
		HasGroundTruth: hasGroundTruth,
		HasContext:     len(ex.Sources) > 0,
		CreatedAt:      time.Now(),
	}
	if err := h.db.InsertEvaluation(rec); err != nil {
		logger.Error("Failed to store on-demand evaluation",
			zap.String("exchange_id", ex.ID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store evaluation",
		})
	}

	resp := fiber.Map{
		"exchange_id":      ex.ID,
		"scores":           scores,
		"has_ground_truth": hasGroundTruth,
	}
	if overall != nil {
		resp["overall_score"] = *overall
	}

	return c.JSON(resp)
}

// ListEvaluations returns evaluations recorded over the last N days,
// each joined with the exchange it scored.
func (h *EvaluationHandler) ListEvaluations(c *fiber.Ctx) error {
	days := c.QueryInt("days", 7)
	if days <= 0 {
		days = 7
	}

	evals, err := h.db.ListEvaluationsSince(time.Now().AddDate(0, 0, -days))
	if err != nil {
		logger.Error("Failed to list evaluations", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list evaluations",
		})
	}

	return c.JSON(fiber.Map{
		"days":        days,
		"count":       len(evals),
		"evaluations": evals,
	})
}

func (h *EvaluationHandler) AddGoldenCase(c *fiber.Ctx) error {
	var req struct {
		ID          string `json:"id"`
		Question    string `json:"question"`
		GroundTruth string `json:"ground_truth"`
		Category    string `json:"category"`
		Intent      string `json:"intent"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Question == "" || req.GroundTruth == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Question and ground_truth are required",
		})
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	tc := &models.GoldenTestCase{
		ID:          req.ID,
		Question:    req.Question,
		GroundTruth: req.GroundTruth,
		Category:    req.Category,
		Intent:      req.Intent,
		CreatedAt:   time.Now(),
	}

	if err := h.db.InsertGoldenCase(tc); err != nil {
		logger.Error("Failed to store golden test case", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store test case",
		})
	}

	return c.JSON(fiber.Map{
		"id":      tc.ID,
		"message": "Test case stored",
	})
}

func (h *EvaluationHandler) ListGoldenCases(c *fiber.Ctx) error {
	cases, err := h.db.ListGoldenCases()
	if err != nil {
		logger.Error("Failed to list golden test cases", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list test cases",
		})
	}

	return c.JSON(fiber.Map{
		"cases": cases,
		"count": len(cases),
	})
}

// RunGoldenEvaluation answers every golden question through the live
// pipeline and scores each answer against its reference. Individual
// failures are reported per case, not fatal for the run.
func (h *EvaluationHandler) RunGoldenEvaluation(c *fiber.Ctx) error {
	cases, err := h.db.ListGoldenCases()
	if err != nil {
		logger.Error("Failed to list golden test cases", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list test cases",
		})
	}

	if len(cases) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No golden test cases defined",
		})
	}

	results := make([]fiber.Map, 0, len(cases))
	var sum float64
	var scored int

	for _, tc := range cases {
		ex, err := h.orchestrator.Answer(c.Context(), rag.Request{
			SessionID:      "golden-run",
			Query:          tc.Question,
			FilterCategory: tc.Category,
			FilterIntent:   tc.Intent,
		})
		if err != nil {
			logger.Error("Golden case failed",
				zap.String("case_id", tc.ID),
				zap.Error(err),
			)
			results = append(results, fiber.Map{
				"case_id": tc.ID,
				"error":   err.Error(),
			})
			continue
		}

		scores, err := h.engine.Score(c.Context(), scoring.Input{
			Query:       tc.Question,
			Response:    ex.ResponseText,
			Contexts:    ex.Sources,
			GroundTruth: tc.GroundTruth,
		})
		if err != nil {
			logger.Error("Golden case scoring failed",
				zap.String("case_id", tc.ID),
				zap.Error(err),
			)
			results = append(results, fiber.Map{
				"case_id":     tc.ID,
				"exchange_id": ex.ID,
				"error":       err.Error(),
			})
			continue
		}

		overall := scoring.OverallScore(scores, true, h.metricCfg)

		rec := &models.EvaluationRecord{
			ExchangeID:     ex.ID,
			EvaluationType: "golden",
			Scores:         scores,
			OverallScore:   overall,
			Evaluator:      h.engine.ID(),
			HasGroundTruth: true,
			HasContext:     false,
			CreatedAt:      time.Now(),
		}
		if err := h.db.InsertEvaluation(rec); err != nil {
			logger.Error("Failed to store golden evaluation",
				zap.String("case_id", tc.ID),
				zap.Error(err),
			)
		}

		result := fiber.Map{
			"case_id":     tc.ID,
			"exchange_id": ex.ID,
			"scores":      scores,
		}
		if overall != nil {
			result["overall_score"] = *overall
			sum += *overall
			scored++
		}
		results = append(results, result)
	}

	resp := fiber.Map{
		"total_cases": len(cases),
		"scored":      scored,
		"results":     results,
	}
	if scored > 0 {
		resp["avg_overall_score"] = sum / float64(scored)
	}

	return c.JSON(resp)
}
