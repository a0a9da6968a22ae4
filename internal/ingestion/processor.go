// Package ingestion turns knowledge-base articles into embedded,
// searchable chunks.
package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/raglens/backend/internal/metrics"
	"github.com/raglens/backend/internal/storage/models"
	"github.com/raglens/backend/internal/storage/sqlite"
	"github.com/raglens/backend/internal/vector/milvus"
	"github.com/raglens/backend/pkg/config"
	"github.com/raglens/backend/pkg/logger"
	"github.com/raglens/backend/pkg/utils"
)

// ArticleInput is one knowledge-base article submitted for indexing.
type ArticleInput struct {
	Title    string
	Content  string
	Category string
	Intent   string
	Flags    []string
}

type Processor struct {
	db           *sqlite.Client
	vectorDB     *milvus.Client
	embedder     Embedder
	chunkSize    int
	chunkOverlap int
	log          *zap.Logger
}

// Embedder is the vector interface ingestion needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

func NewProcessor(db *sqlite.Client, vectorDB *milvus.Client, embedder Embedder, cfg config.IngestionConfig) *Processor {
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 500
	}
	chunkOverlap := cfg.ChunkOverlap
	if chunkOverlap <= 0 {
		chunkOverlap = 50
	}

	return &Processor{
		db:           db,
		vectorDB:     vectorDB,
		embedder:     embedder,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		log:          logger.Named("ingestion"),
	}
}

// IngestArticle stores the article, chunks its content, embeds every
// chunk and indexes the vectors. Re-ingesting the same title updates
// the stored article and appends fresh chunks.
func (p *Processor) IngestArticle(ctx context.Context, in ArticleInput) (*models.Article, int, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, 0, fmt.Errorf("article has no content")
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, 0, fmt.Errorf("article has no title")
	}

	articleID := utils.HashString(in.Title)
	now := time.Now()

	article := &models.Article{
		ID:        articleID,
		Title:     in.Title,
		Category:  in.Category,
		Intent:    in.Intent,
		Flags:     in.Flags,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := p.db.InsertArticle(article); err != nil {
		return nil, 0, fmt.Errorf("failed to store article: %w", err)
	}

	chunks := p.chunkText(content)
	p.log.Info("Article chunked",
		zap.String("article_id", articleID),
		zap.Int("chunks", len(chunks)),
	)

	embeddings, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, 0, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(chunks))
	}

	flags := strings.Join(in.Flags, "")

	vectorChunks := make([]milvus.Chunk, 0, len(chunks))
	for i, chunkText := range chunks {
		chunkID := fmt.Sprintf("%s_chunk_%d", articleID, i)

		vectorChunks = append(vectorChunks, milvus.Chunk{
			ID:        chunkID,
			Embedding: embeddings[i],
			Text:      chunkText,
			ArticleID: articleID,
			Category:  in.Category,
			Intent:    in.Intent,
			Flags:     flags,
			Timestamp: now,
		})

		dbChunk := &models.ArticleChunk{
			ID:          chunkID,
			ArticleID:   articleID,
			ChunkIndex:  i,
			Text:        chunkText,
			EmbeddingID: chunkID,
			CreatedAt:   now,
		}
		if err := p.db.InsertChunk(dbChunk); err != nil {
			p.log.Warn("Failed to record chunk", zap.String("chunk_id", chunkID), zap.Error(err))
		}
	}

	if err := p.vectorDB.Insert(ctx, vectorChunks); err != nil {
		return nil, 0, fmt.Errorf("failed to index chunks: %w", err)
	}

	metrics.ArticlesIngested.Inc()
	p.log.Info("Article ingested",
		zap.String("article_id", articleID),
		zap.String("category", in.Category),
		zap.Int("chunks", len(vectorChunks)),
	)

	return article, len(vectorChunks), nil
}

// chunkText splits content into word-aligned windows of roughly
// chunkSize characters, carrying over chunkOverlap/10 words between
// consecutive chunks so sentences that straddle a boundary stay
// searchable.
func (p *Processor) chunkText(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder
	currentSize := 0

	for _, word := range words {
		wordLen := len(word) + 1

		if currentSize+wordLen > p.chunkSize && current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))

			overlapWords := strings.Fields(current.String())
			overlapStart := len(overlapWords) - p.chunkOverlap/10
			if overlapStart < 0 {
				overlapStart = 0
			}
			current.Reset()
			current.WriteString(strings.Join(overlapWords[overlapStart:], " ") + " ")
			currentSize = current.Len()
		}

		current.WriteString(word + " ")
		currentSize += wordLen
	}

	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}

	return chunks
}
