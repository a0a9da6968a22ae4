package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/raglens/backend/internal/cache/redis"
	"github.com/raglens/backend/internal/ingestion"
	"github.com/raglens/backend/pkg/logger"
)

type DocumentHandler struct {
	processor *ingestion.Processor
	cache     *redis.Client
}

func NewDocumentHandler(processor *ingestion.Processor, cache *redis.Client) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
		cache:     cache,
	}
}

func (h *DocumentHandler) UploadArticle(c *fiber.Ctx) error {
	var req struct {
		Title    string   `json:"title"`
		Content  string   `json:"content"`
		Category string   `json:"category"`
		Intent   string   `json:"intent"`
		Flags    []string `json:"flags"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Title == "" || req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Title and content are required",
		})
	}

	article, chunkCount, err := h.processor.IngestArticle(c.Context(), ingestion.ArticleInput{
		Title:    req.Title,
		Content:  req.Content,
		Category: req.Category,
		Intent:   req.Intent,
		Flags:    req.Flags,
	})
	if err != nil {
		logger.Error("Failed to ingest article", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to ingest article",
		})
	}

	return c.JSON(fiber.Map{
		"message":    "Article ingested successfully",
		"article_id": article.ID,
		"title":      article.Title,
		"chunks":     chunkCount,
	})
}

// InvalidateCache drops all cached query embeddings. Call after
// switching the embedding model.
func (h *DocumentHandler) InvalidateCache(c *fiber.Ctx) error {
	if h.cache == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Cache is not enabled",
		})
	}

	if err := h.cache.InvalidateEmbeddingCache(c.Context()); err != nil {
		logger.Error("Failed to invalidate embedding cache", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to invalidate cache",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Embedding cache invalidated",
	})
}
