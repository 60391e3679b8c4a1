package router

import (
	"io"
	"net/http/httptest"
	"testing"

	"franchisor-portal/internal/config"
	"franchisor-portal/internal/realtime"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:             "test",
		ClientID:        uuid.New(),
		RealtimeEnabled: true,
		FanoutLimit:     4,
	}
}

func TestCreateApp_WithoutDatabase(t *testing.T) {
	app, deps, err := CreateApp(testConfig())
	require.NoError(t, err)
	defer deps.Close()
	assert.Nil(t, deps.Service)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "go_goroutines")

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/markets", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/health/json", nil))
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-Id"))
}

func TestCreateApp_BadRedisURL(t *testing.T) {
	cfg := testConfig()
	cfg.RedisURL = "::not a url"
	_, _, err := CreateApp(cfg)
	assert.Error(t, err)
}

func TestChangeFeed(t *testing.T) {
	cfg := testConfig()
	pub, sub := changeFeed(cfg, nil)
	assert.IsType(t, &realtime.Hub{}, pub)
	require.IsType(t, realtime.Fanout{}, sub)
	assert.Len(t, sub.(realtime.Fanout), 1)

	cfg.SupabaseURL = "https://demo.supabase.co"
	cfg.SupabaseAnonKey = "anon"
	_, sub = changeFeed(cfg, nil)
	feed := sub.(realtime.Fanout)
	require.Len(t, feed, 2)
	sc, ok := feed[1].(*realtime.SupabaseClient)
	require.True(t, ok)
	assert.Equal(t, "wss://demo.supabase.co/realtime/v1/websocket", sc.URL)

	cfg.RealtimeEnabled = false
	pub, sub = changeFeed(cfg, nil)
	assert.NotNil(t, pub)
	assert.Nil(t, sub)
}

func TestChangeFeed_RedisBus(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	app, deps, err := CreateApp(cfg)
	require.NoError(t, err)
	defer deps.Close()
	require.NotNil(t, deps.Rdb)

	pub, _ := changeFeed(cfg, deps.Rdb)
	assert.IsType(t, &realtime.RedisBus{}, pub)

	resp, err := app.Test(httptest.NewRequest("GET", "/health/errors", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}
