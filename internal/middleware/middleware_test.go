package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return rdb
}

func TestCORS(t *testing.T) {
	app := fiber.New()
	app.Use(CORS(CORSConfig{AllowedSuffix: ".example.com", DevPassword: "letmein"}))
	app.Get("/x", func(c *fiber.Ctx) error { return c.SendString("ok") })

	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "https://portal.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("Origin", "https://evil.test")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)

	req = httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("Origin", "https://evil.test")
	req.Header.Set("dev-password", "letmein")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	req = httptest.NewRequest("OPTIONS", "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestTracing(t *testing.T) {
	app := fiber.New()
	app.Use(Tracing())
	app.Get("/x", func(c *fiber.Ctx) error { return c.SendString(GetTraceID(c)) })

	resp, err := app.Test(httptest.NewRequest("GET", "/x", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_, err = uuid.Parse(string(body))
	assert.NoError(t, err)
	assert.Equal(t, string(body), resp.Header.Get("X-Trace-Id"))

	incoming := uuid.New().String()
	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("X-Trace-Id", incoming)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, incoming, resp.Header.Get("X-Trace-Id"))
}

func TestErrorHandler_RecordsServerErrors(t *testing.T) {
	rdb := setupRedis(t)
	app := fiber.New(fiber.Config{ErrorHandler: NewErrorHandler(rdb)})
	app.Use(Tracing(), RouteLogger(zerolog.Nop()))
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("kaboom") })
	app.Get("/missing", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusNotFound, "nope") })

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "error", out["status"])
	assert.Equal(t, "Internal Server Error", out["error"].(map[string]interface{})["message"])

	resp, err = app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	entries, err := rdb.LRange(context.Background(), KeyErrorLog, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(entries[0]), &entry))
	assert.Equal(t, "kaboom", entry["message"])
	assert.Equal(t, "/boom", entry["path"])
}

func TestHealthMarker(t *testing.T) {
	rdb := setupRedis(t)
	app := fiber.New()
	app.Use(HealthMarker(rdb))
	app.Get("/api/v1/markets", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/api/v1/fail", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusBadGateway) })
	app.Get("/health/json", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/api/v1/markets/:id/live/updates", func(c *fiber.Ctx) error { return c.SendString("ok") })

	for _, p := range []string{"/api/v1/markets", "/api/v1/fail", "/health/json", "/api/v1/markets/1/live/updates"} {
		_, err := app.Test(httptest.NewRequest("GET", p, nil))
		require.NoError(t, err)
	}

	ctx := context.Background()
	total, err := rdb.Get(ctx, KeyReqTotal).Int()
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	failed, err := rdb.Get(ctx, KeyReqErrors).Int()
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
}
