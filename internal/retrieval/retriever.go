// Package retrieval finds knowledge-base chunks relevant to a query.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/raglens/backend/internal/cache/redis"
	"github.com/raglens/backend/internal/metrics"
	"github.com/raglens/backend/internal/provider"
	"github.com/raglens/backend/internal/storage/models"
	"github.com/raglens/backend/internal/vector/milvus"
	"github.com/raglens/backend/pkg/logger"
	"github.com/raglens/backend/pkg/utils"
)

const embeddingCacheTTL = 24 * time.Hour

// Filter narrows a search to a category and/or intent.
type Filter struct {
	Category string
	Intent   string
}

// Client is the retrieval surface the orchestrator depends on.
type Client interface {
	Query(ctx context.Context, text string, topK int, filter Filter) ([]models.Source, error)
}

// Retriever embeds the query and searches the vector store. A nil
// cache disables embedding caching.
type Retriever struct {
	embedder *provider.Embedder
	store    *milvus.Client
	cache    *redis.Client
	log      *zap.Logger
}

func NewRetriever(embedder *provider.Embedder, store *milvus.Client, cache *redis.Client) *Retriever {
	return &Retriever{
		embedder: embedder,
		store:    store,
		cache:    cache,
		log:      logger.Named("retrieval"),
	}
}

func (r *Retriever) Query(ctx context.Context, text string, topK int, filter Filter) ([]models.Source, error) {
	embedding, err := r.embedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	filters := map[string]string{}
	if filter.Category != "" {
		filters["category"] = filter.Category
	}
	if filter.Intent != "" {
		filters["intent"] = filter.Intent
	}

	results, err := r.store.Search(ctx, embedding, topK, filters)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	sources := make([]models.Source, 0, len(results))
	for _, res := range results {
		sources = append(sources, models.Source{
			ID:    res.ChunkID,
			Text:  res.Text,
			Score: float64(res.Score),
			Metadata: map[string]string{
				"article_id": res.ArticleID,
				"category":   res.Category,
				"intent":     res.Intent,
				"flags":      res.Flags,
			},
		})
	}

	r.log.Debug("Retrieval completed",
		zap.Int("top_k", topK),
		zap.Int("results", len(sources)),
	)

	return sources, nil
}

func (r *Retriever) embedText(ctx context.Context, text string) ([]float32, error) {
	if r.cache == nil {
		return r.embedder.Embed(ctx, text)
	}

	hash := utils.HashString(text)

	cached, hit, err := r.cache.GetEmbedding(ctx, hash)
	if err != nil {
		r.log.Warn("Embedding cache lookup failed", zap.Error(err))
	}
	if hit {
		metrics.CacheHits.WithLabelValues("embedding").Inc()
		return cached, nil
	}
	metrics.CacheMisses.WithLabelValues("embedding").Inc()

	embedding, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := r.cache.SetEmbedding(ctx, hash, embedding, embeddingCacheTTL); err != nil {
		r.log.Warn("Embedding cache write failed", zap.Error(err))
	}

	return embedding, nil
}
