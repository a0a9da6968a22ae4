package validation

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestApp(cfg Config) *fiber.App {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	app := fiber.New()
	app.Use(Middleware(cfg))
	app.Post("/api/v1/chat/query", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	app.Post("/api/v1/documents", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	return app
}

func postJSON(t *testing.T, app *fiber.App, path, body string) int {
	t.Helper()
	req := httptest.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestChatQueryValidation(t *testing.T) {
	app := newTestApp(Config{MaxQueryLength: 50})

	t.Run("valid query passes", func(t *testing.T) {
		code := postJSON(t, app, "/api/v1/chat/query", `{"query":"how do refunds work"}`)
		assert.Equal(t, fiber.StatusOK, code)
	})

	t.Run("missing query rejected", func(t *testing.T) {
		code := postJSON(t, app, "/api/v1/chat/query", `{"session_id":"s1"}`)
		assert.Equal(t, fiber.StatusBadRequest, code)
	})

	t.Run("oversized query rejected", func(t *testing.T) {
		long := `{"query":"` + string(bytes.Repeat([]byte("a"), 60)) + `"}`
		code := postJSON(t, app, "/api/v1/chat/query", long)
		assert.Equal(t, fiber.StatusBadRequest, code)
	})

	t.Run("script injection rejected", func(t *testing.T) {
		code := postJSON(t, app, "/api/v1/chat/query", `{"query":"<script>alert(1)"}`)
		assert.Equal(t, fiber.StatusBadRequest, code)
	})

	t.Run("wrong content type rejected", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/chat/query", bytes.NewBufferString("query=hi"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnsupportedMediaType, resp.StatusCode)
	})
}

func TestDocumentValidation(t *testing.T) {
	app := newTestApp(Config{MaxArticleSize: 100})

	t.Run("valid article passes", func(t *testing.T) {
		code := postJSON(t, app, "/api/v1/documents", `{"title":"Refund policy","content":"Refunds take 30 days."}`)
		assert.Equal(t, fiber.StatusOK, code)
	})

	t.Run("missing title rejected", func(t *testing.T) {
		code := postJSON(t, app, "/api/v1/documents", `{"content":"text"}`)
		assert.Equal(t, fiber.StatusBadRequest, code)
	})

	t.Run("oversized content rejected", func(t *testing.T) {
		body := `{"title":"t","content":"` + string(bytes.Repeat([]byte("b"), 150)) + `"}`
		code := postJSON(t, app, "/api/v1/documents", body)
		assert.Equal(t, fiber.StatusRequestEntityTooLarge, code)
	})
}
