package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/raglens/backend/internal/storage/models"
	"github.com/raglens/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exchanges (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		query_text TEXT NOT NULL,
		message_type TEXT NOT NULL,
		needs_retrieval INTEGER NOT NULL,
		provider TEXT,
		model TEXT,
		response_text TEXT,
		sources TEXT,
		input_tokens INTEGER DEFAULT 0,
		output_tokens INTEGER DEFAULT 0,
		latency_ms INTEGER,
		cost REAL DEFAULT 0,
		filter_category TEXT,
		filter_intent TEXT,
		top_k INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_session ON exchanges(session_id);
	CREATE INDEX IF NOT EXISTS idx_exchanges_created ON exchanges(created_at);
	CREATE INDEX IF NOT EXISTS idx_exchanges_type ON exchanges(message_type);

	CREATE TABLE IF NOT EXISTS evaluations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exchange_id TEXT NOT NULL,
		evaluation_type TEXT NOT NULL,
		scores TEXT NOT NULL,
		overall_score REAL,
		evaluator TEXT,
		has_ground_truth INTEGER DEFAULT 0,
		has_context INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (exchange_id) REFERENCES exchanges(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_evaluations_exchange ON evaluations(exchange_id);
	CREATE INDEX IF NOT EXISTS idx_evaluations_created ON evaluations(created_at);

	CREATE TABLE IF NOT EXISTS golden_test_cases (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		ground_truth TEXT NOT NULL,
		category TEXT,
		intent TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		category TEXT,
		intent TEXT,
		flags TEXT,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_articles_category ON articles(category);

	CREATE TABLE IF NOT EXISTS article_chunks (
		id TEXT PRIMARY KEY,
		article_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		embedding_id TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (article_id) REFERENCES articles(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_article ON article_chunks(article_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertExchange(ex *models.Exchange) error {
	sourcesJSON, _ := json.Marshal(ex.Sources)

	query := `
		INSERT INTO exchanges (id, session_id, query_text, message_type, needs_retrieval,
			provider, model, response_text, sources, input_tokens, output_tokens,
			latency_ms, cost, filter_category, filter_intent, top_k, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	needsRetrieval := 0
	if ex.NeedsRetrieval {
		needsRetrieval = 1
	}

	_, err := c.db.Exec(
		query,
		ex.ID,
		ex.SessionID,
		ex.QueryText,
		ex.MessageType,
		needsRetrieval,
		ex.Provider,
		ex.Model,
		ex.ResponseText,
		string(sourcesJSON),
		ex.TokenUsage.InputTokens,
		ex.TokenUsage.OutputTokens,
		ex.LatencyMS,
		ex.Cost,
		ex.FilterCategory,
		ex.FilterIntent,
		ex.TopK,
		ex.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert exchange: %w", err)
	}

	logger.Debug("Exchange recorded",
		zap.String("exchange_id", ex.ID),
		zap.String("message_type", ex.MessageType),
		zap.Float64("cost", ex.Cost),
	)

	return nil
}

func (c *Client) GetExchange(id string) (*models.Exchange, error) {
	query := `
		SELECT id, session_id, query_text, message_type, needs_retrieval, provider, model,
			response_text, sources, input_tokens, output_tokens, latency_ms, cost,
			filter_category, filter_intent, top_k, created_at
		FROM exchanges WHERE id = ?
	`

	var ex models.Exchange
	var needsRetrieval int
	var sourcesJSON string
	var createdAt int64

	err := c.db.QueryRow(query, id).Scan(
		&ex.ID,
		&ex.SessionID,
		&ex.QueryText,
		&ex.MessageType,
		&needsRetrieval,
		&ex.Provider,
		&ex.Model,
		&ex.ResponseText,
		&sourcesJSON,
		&ex.TokenUsage.InputTokens,
		&ex.TokenUsage.OutputTokens,
		&ex.LatencyMS,
		&ex.Cost,
		&ex.FilterCategory,
		&ex.FilterIntent,
		&ex.TopK,
		&createdAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get exchange: %w", err)
	}

	ex.NeedsRetrieval = needsRetrieval == 1
	ex.CreatedAt = time.Unix(createdAt, 0)
	json.Unmarshal([]byte(sourcesJSON), &ex.Sources)

	return &ex, nil
}

func (c *Client) ListExchanges(limit int) ([]models.Exchange, error) {
	query := `
		SELECT id, session_id, query_text, message_type, response_text, latency_ms, cost, created_at
		FROM exchanges
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []models.Exchange
	for rows.Next() {
		var ex models.Exchange
		var createdAt int64

		err := rows.Scan(&ex.ID, &ex.SessionID, &ex.QueryText, &ex.MessageType,
			&ex.ResponseText, &ex.LatencyMS, &ex.Cost, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		ex.CreatedAt = time.Unix(createdAt, 0)
		exchanges = append(exchanges, ex)
	}

	return exchanges, nil
}

func (c *Client) InsertEvaluation(rec *models.EvaluationRecord) error {
	scoresJSON, _ := json.Marshal(rec.Scores)

	query := `
		INSERT INTO evaluations (exchange_id, evaluation_type, scores, overall_score,
			evaluator, has_ground_truth, has_context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	hasGT := 0
	if rec.HasGroundTruth {
		hasGT = 1
	}
	hasCtx := 0
	if rec.HasContext {
		hasCtx = 1
	}

	var overall interface{}
	if rec.OverallScore != nil {
		overall = *rec.OverallScore
	}

	_, err := c.db.Exec(
		query,
		rec.ExchangeID,
		rec.EvaluationType,
		string(scoresJSON),
		overall,
		rec.Evaluator,
		hasGT,
		hasCtx,
		rec.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert evaluation: %w", err)
	}

	logger.Info("Evaluation stored",
		zap.String("exchange_id", rec.ExchangeID),
		zap.String("evaluation_type", rec.EvaluationType),
	)

	return nil
}

// ListEvaluationsSince returns evaluations joined with their exchange
// fields, oldest first, for aggregation over a time window.
func (c *Client) ListEvaluationsSince(since time.Time) ([]models.EvaluationDetail, error) {
	query := `
		SELECT e.id, e.exchange_id, e.evaluation_type, e.scores, e.overall_score,
			e.evaluator, e.has_ground_truth, e.has_context, e.created_at,
			x.query_text, x.response_text, x.filter_category, x.filter_intent, x.message_type
		FROM evaluations e
		JOIN exchanges x ON x.id = e.exchange_id
		WHERE e.created_at >= ?
		ORDER BY e.created_at ASC
	`

	rows, err := c.db.Query(query, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	var details []models.EvaluationDetail
	for rows.Next() {
		var d models.EvaluationDetail
		var scoresJSON string
		var overall sql.NullFloat64
		var hasGT, hasCtx int
		var createdAt int64

		err := rows.Scan(&d.ID, &d.ExchangeID, &d.EvaluationType, &scoresJSON, &overall,
			&d.Evaluator, &hasGT, &hasCtx, &createdAt,
			&d.QueryText, &d.ResponseText, &d.FilterCategory, &d.FilterIntent, &d.MessageType)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if overall.Valid {
			v := overall.Float64
			d.OverallScore = &v
		}
		d.HasGroundTruth = hasGT == 1
		d.HasContext = hasCtx == 1
		d.CreatedAt = time.Unix(createdAt, 0)
		json.Unmarshal([]byte(scoresJSON), &d.Scores)

		details = append(details, d)
	}

	return details, nil
}

func (c *Client) InsertGoldenCase(tc *models.GoldenTestCase) error {
	query := `
		INSERT INTO golden_test_cases (id, question, ground_truth, category, intent, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			question = excluded.question,
			ground_truth = excluded.ground_truth
	`

	_, err := c.db.Exec(query, tc.ID, tc.Question, tc.GroundTruth, tc.Category, tc.Intent, tc.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert golden test case: %w", err)
	}

	return nil
}

func (c *Client) ListGoldenCases() ([]models.GoldenTestCase, error) {
	query := `SELECT id, question, ground_truth, category, intent, created_at FROM golden_test_cases`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list golden test cases: %w", err)
	}
	defer rows.Close()

	var cases []models.GoldenTestCase
	for rows.Next() {
		var tc models.GoldenTestCase
		var createdAt int64

		err := rows.Scan(&tc.ID, &tc.Question, &tc.GroundTruth, &tc.Category, &tc.Intent, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		tc.CreatedAt = time.Unix(createdAt, 0)
		cases = append(cases, tc)
	}

	return cases, nil
}

func (c *Client) InsertArticle(article *models.Article) error {
	flagsJSON, _ := json.Marshal(article.Flags)

	query := `
		INSERT INTO articles (id, title, category, intent, flags, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			updated_at = excluded.updated_at
	`

	_, err := c.db.Exec(
		query,
		article.ID,
		article.Title,
		article.Category,
		article.Intent,
		string(flagsJSON),
		article.Content,
		article.CreatedAt.Unix(),
		article.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert article: %w", err)
	}

	logger.Debug("Article inserted", zap.String("article_id", article.ID), zap.String("title", article.Title))
	return nil
}

func (c *Client) InsertChunk(chunk *models.ArticleChunk) error {
	query := `INSERT INTO article_chunks (id, article_id, chunk_index, text, embedding_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := c.db.Exec(
		query,
		chunk.ID,
		chunk.ArticleID,
		chunk.ChunkIndex,
		chunk.Text,
		chunk.EmbeddingID,
		chunk.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}

	return nil
}
