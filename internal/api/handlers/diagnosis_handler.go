package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/raglens/backend/internal/evaluation/diagnosis"
	"github.com/raglens/backend/pkg/logger"
)

type DiagnosisHandler struct {
	agent   *diagnosis.Agent
	applier *diagnosis.Applier
}

func NewDiagnosisHandler(agent *diagnosis.Agent, applier *diagnosis.Applier) *DiagnosisHandler {
	return &DiagnosisHandler{
		agent:   agent,
		applier: applier,
	}
}

func (h *DiagnosisHandler) GetReport(c *fiber.Ctx) error {
	days := c.QueryInt("days", 0)
	minEvaluations := c.QueryInt("min_evaluations", 0)

	report, err := h.agent.GenerateReport(c.Context(), days, minEvaluations)
	if err != nil {
		logger.Error("Failed to generate diagnosis report", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate report",
		})
	}

	return c.JSON(report)
}

func (h *DiagnosisHandler) GetSummary(c *fiber.Ctx) error {
	days := c.QueryInt("days", 0)

	summary, err := h.agent.QuickSummary(days)
	if err != nil {
		logger.Error("Failed to build diagnosis summary", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build summary",
		})
	}

	return c.JSON(summary)
}

// ApplyAction executes a single corrective action from a report.
// auto_safe actions run as-is; needs_approval actions run only when
// the caller sets approved.
func (h *DiagnosisHandler) ApplyAction(c *fiber.Ctx) error {
	var req struct {
		Action   diagnosis.Action `json:"action"`
		Approved bool             `json:"approved"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Action.ID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Action id is required",
		})
	}

	if err := h.applier.Apply(req.Action, req.Approved); err != nil {
		logger.Warn("Action rejected",
			zap.String("action_id", req.Action.ID),
			zap.Bool("approved", req.Approved),
			zap.Error(err),
		)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message":   "Action applied",
		"action_id": req.Action.ID,
	})
}
