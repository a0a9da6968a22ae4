package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raglens/backend/internal/evaluation/scoring"
	"github.com/raglens/backend/internal/storage/models"
	"github.com/raglens/backend/internal/storage/sqlite"
	"github.com/raglens/backend/pkg/logger"
)

func init() {
	if err := logger.Init("error", "console", "stdout"); err != nil {
		panic(err)
	}
}

type fakeEngine struct {
	scores map[string]float64
	err    error
	inputs []scoring.Input
}

func (f *fakeEngine) Score(ctx context.Context, in scoring.Input) (map[string]float64, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

func (f *fakeEngine) ID() string { return "fake-judge" }

func newTestDB(t *testing.T) *sqlite.Client {
	t.Helper()
	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })
	return db
}

func storedExchange(t *testing.T, db *sqlite.Client, id string) *models.Exchange {
	t.Helper()
	ex := &models.Exchange{
		ID:           id,
		SessionID:    "s1",
		QueryText:    "how long do refunds take",
		MessageType:  "question",
		Provider:     "anthropic",
		ResponseText: "Refunds are issued within 30 days.",
		Sources: []models.Source{
			{ID: "c1", Text: "Refunds take up to 30 days.", Score: 0.9},
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, db.InsertExchange(ex))
	return ex
}

func newEvaluationApp(db *sqlite.Client, engine scoring.Engine) *fiber.App {
	h := NewEvaluationHandler(db, nil, engine)
	app := fiber.New()
	app.Post("/api/v1/evaluations/run", h.RunEvaluation)
	app.Get("/api/v1/evaluations", h.ListEvaluations)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, fiber.Map) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	var decoded fiber.Map
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestRunEvaluation(t *testing.T) {
	t.Run("with ground truth", func(t *testing.T) {
		db := newTestDB(t)
		ex := storedExchange(t, db, "ex-1")
		engine := &fakeEngine{scores: map[string]float64{
			"faithfulness":     0.9,
			"answer_relevancy": 0.8,
		}}
		app := newEvaluationApp(db, engine)

		code, body := doJSON(t, app, "POST", "/api/v1/evaluations/run",
			`{"exchange_id":"ex-1","ground_truth":"30 days"}`)

		require.Equal(t, fiber.StatusOK, code)
		assert.Equal(t, ex.ID, body["exchange_id"])
		assert.Equal(t, true, body["has_ground_truth"])
		assert.Contains(t, body, "overall_score")

		require.Len(t, engine.inputs, 1)
		assert.Equal(t, ex.QueryText, engine.inputs[0].Query)
		assert.Equal(t, "30 days", engine.inputs[0].GroundTruth)

		stored, err := db.ListEvaluationsSince(time.Now().Add(-time.Hour))
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, "on_demand", stored[0].EvaluationType)
		assert.True(t, stored[0].HasGroundTruth)
		assert.True(t, stored[0].HasContext)
	})

	t.Run("without ground truth", func(t *testing.T) {
		db := newTestDB(t)
		storedExchange(t, db, "ex-2")
		engine := &fakeEngine{scores: map[string]float64{"faithfulness": 0.7}}
		app := newEvaluationApp(db, engine)

		code, body := doJSON(t, app, "POST", "/api/v1/evaluations/run",
			`{"exchange_id":"ex-2"}`)

		require.Equal(t, fiber.StatusOK, code)
		assert.Equal(t, false, body["has_ground_truth"])

		require.Len(t, engine.inputs, 1)
		assert.Empty(t, engine.inputs[0].GroundTruth)

		stored, err := db.ListEvaluationsSince(time.Now().Add(-time.Hour))
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.False(t, stored[0].HasGroundTruth)
	})

	t.Run("unknown exchange", func(t *testing.T) {
		db := newTestDB(t)
		app := newEvaluationApp(db, &fakeEngine{})

		code, _ := doJSON(t, app, "POST", "/api/v1/evaluations/run",
			`{"exchange_id":"missing"}`)
		assert.Equal(t, fiber.StatusNotFound, code)
	})

	t.Run("missing exchange_id", func(t *testing.T) {
		db := newTestDB(t)
		app := newEvaluationApp(db, &fakeEngine{})

		code, _ := doJSON(t, app, "POST", "/api/v1/evaluations/run", `{}`)
		assert.Equal(t, fiber.StatusBadRequest, code)
	})
}

func TestListEvaluations(t *testing.T) {
	db := newTestDB(t)
	ex := storedExchange(t, db, "ex-1")

	score := 0.8
	recent := &models.EvaluationRecord{
		ExchangeID:     ex.ID,
		EvaluationType: "sampled",
		Scores:         map[string]float64{"faithfulness": 0.8},
		OverallScore:   &score,
		Evaluator:      "fake-judge",
		CreatedAt:      time.Now(),
	}
	old := &models.EvaluationRecord{
		ExchangeID:     ex.ID,
		EvaluationType: "sampled",
		Scores:         map[string]float64{"faithfulness": 0.4},
		Evaluator:      "fake-judge",
		CreatedAt:      time.Now().AddDate(0, 0, -30),
	}
	require.NoError(t, db.InsertEvaluation(recent))
	require.NoError(t, db.InsertEvaluation(old))

	app := newEvaluationApp(db, &fakeEngine{})

	t.Run("window filters old records", func(t *testing.T) {
		code, body := doJSON(t, app, "GET", "/api/v1/evaluations?days=7", "")
		require.Equal(t, fiber.StatusOK, code)
		assert.Equal(t, float64(1), body["count"])
		assert.Equal(t, float64(7), body["days"])
	})

	t.Run("wide window includes both", func(t *testing.T) {
		code, body := doJSON(t, app, "GET", "/api/v1/evaluations?days=60", "")
		require.Equal(t, fiber.StatusOK, code)
		assert.Equal(t, float64(2), body["count"])
	})

	t.Run("invalid days falls back to default", func(t *testing.T) {
		code, body := doJSON(t, app, "GET", "/api/v1/evaluations?days=-3", "")
		require.Equal(t, fiber.StatusOK, code)
		assert.Equal(t, float64(7), body["days"])
	})
}
