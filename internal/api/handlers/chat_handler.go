package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/raglens/backend/internal/conversation"
	"github.com/raglens/backend/internal/rag"
	"github.com/raglens/backend/internal/storage/sqlite"
	"github.com/raglens/backend/pkg/logger"
)

type ChatHandler struct {
	orchestrator *rag.Orchestrator
	db           *sqlite.Client
}

func NewChatHandler(orchestrator *rag.Orchestrator, db *sqlite.Client) *ChatHandler {
	return &ChatHandler{
		orchestrator: orchestrator,
		db:           db,
	}
}

type historyTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (h *ChatHandler) HandleQuery(c *fiber.Ctx) error {
	var req struct {
		SessionID      string        `json:"session_id"`
		Query          string        `json:"query"`
		Provider       string        `json:"provider"`
		TopK           int           `json:"top_k"`
		FilterCategory string        `json:"filter_category"`
		FilterIntent   string        `json:"filter_intent"`
		History        []historyTurn `json:"history"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	history := make([]conversation.Turn, 0, len(req.History))
	for _, turn := range req.History {
		history = append(history, conversation.Turn{Role: turn.Role, Content: turn.Content})
	}

	ex, err := h.orchestrator.Answer(c.Context(), rag.Request{
		SessionID:      req.SessionID,
		Query:          req.Query,
		Provider:       req.Provider,
		TopK:           req.TopK,
		FilterCategory: req.FilterCategory,
		FilterIntent:   req.FilterIntent,
		History:        history,
	})
	if err != nil {
		requestID, _ := c.Locals("requestid").(string)
		logger.Error("Failed to process query",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":      "Failed to process query",
			"request_id": requestID,
		})
	}

	return c.JSON(fiber.Map{
		"query_id":        ex.ID,
		"session_id":      ex.SessionID,
		"response":        ex.ResponseText,
		"sources":         ex.Sources,
		"message_type":    ex.MessageType,
		"needs_retrieval": ex.NeedsRetrieval,
		"provider":        ex.Provider,
		"model":           ex.Model,
		"token_usage": fiber.Map{
			"input_tokens":  ex.TokenUsage.InputTokens,
			"output_tokens": ex.TokenUsage.OutputTokens,
		},
		"latency_ms": ex.LatencyMS,
		"cost":       ex.Cost,
	})
}

func (h *ChatHandler) GetHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	exchanges, err := h.db.ListExchanges(limit)
	if err != nil {
		logger.Error("Failed to list exchanges", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch history",
		})
	}

	return c.JSON(fiber.Map{
		"exchanges": exchanges,
		"count":     len(exchanges),
	})
}

func (h *ChatHandler) GetExchange(c *fiber.Ctx) error {
	id := c.Params("id")

	ex, err := h.db.GetExchange(id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Exchange not found",
		})
	}

	return c.JSON(ex)
}
