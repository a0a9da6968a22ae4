package handlers

import (
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raglens/backend/internal/evaluation/diagnosis"
)

type stubTuner struct {
	topK int
}

func (s *stubTuner) TopK() int     { return s.topK }
func (s *stubTuner) SetTopK(k int) { s.topK = k }

func newDiagnosisApp(tuner diagnosis.Tuner) *fiber.App {
	h := NewDiagnosisHandler(nil, diagnosis.NewApplier(tuner))
	app := fiber.New()
	app.Post("/api/v1/diagnosis/actions/apply", h.ApplyAction)
	return app
}

func TestApplyAction(t *testing.T) {
	action := `{"id":"action_issue_1_llm","action_type":"needs_approval","parameter_changes":{"top_k":{"from":5,"to":7}}}`

	t.Run("needs_approval without approval is rejected", func(t *testing.T) {
		tuner := &stubTuner{topK: 5}
		app := newDiagnosisApp(tuner)

		code, _ := doJSON(t, app, "POST", "/api/v1/diagnosis/actions/apply",
			`{"action":`+action+`,"approved":false}`)

		assert.Equal(t, fiber.StatusBadRequest, code)
		assert.Equal(t, 5, tuner.topK)
	})

	t.Run("needs_approval applies when approved", func(t *testing.T) {
		tuner := &stubTuner{topK: 5}
		app := newDiagnosisApp(tuner)

		code, body := doJSON(t, app, "POST", "/api/v1/diagnosis/actions/apply",
			`{"action":`+action+`,"approved":true}`)

		require.Equal(t, fiber.StatusOK, code)
		assert.Equal(t, "action_issue_1_llm", body["action_id"])
		assert.Equal(t, 7, tuner.topK)
	})

	t.Run("auto_safe applies without approval", func(t *testing.T) {
		tuner := &stubTuner{topK: 5}
		app := newDiagnosisApp(tuner)

		code, _ := doJSON(t, app, "POST", "/api/v1/diagnosis/actions/apply",
			`{"action":{"id":"action_issue_1_1","action_type":"auto_safe","parameter_changes":{"top_k":{"from":5,"to":3}}}}`)

		require.Equal(t, fiber.StatusOK, code)
		assert.Equal(t, 3, tuner.topK)
	})

	t.Run("missing action id is rejected", func(t *testing.T) {
		tuner := &stubTuner{topK: 5}
		app := newDiagnosisApp(tuner)

		code, _ := doJSON(t, app, "POST", "/api/v1/diagnosis/actions/apply",
			`{"approved":true}`)

		assert.Equal(t, fiber.StatusBadRequest, code)
	})
}
