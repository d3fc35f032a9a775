package timingsHandler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	timingsService "detectbench/internal/api/timings/service"
	"detectbench/internal/middleware"
	"detectbench/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	os.Setenv("APP_ENV", "test")
	os.Exit(m.Run())
}

func setup(t *testing.T) (*fiber.App, redis.IRedis) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := redis.NewWithClient(client, 50, logger)

	mw := middleware.New(logger, middleware.Config{})
	h := New(logger, validator.New(), mw, timingsService.New(logger, store))

	app := fiber.New(fiber.Config{JSONEncoder: jsoniter.Marshal, JSONDecoder: jsoniter.Unmarshal})
	h.Start(app.Group("/api/v1"))
	return app, store
}

func get(t *testing.T, app *fiber.App, target string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestGetHistory(t *testing.T) {
	app, store := setup(t)
	ctx := context.Background()
	require.NoError(t, store.PushTiming(ctx, redis.TimingEntry{Strategy: "A", Infer: 0.2, Filename: "a.jpg"}))
	require.NoError(t, store.PushTiming(ctx, redis.TimingEntry{Strategy: "A", Infer: 0.4, Filename: "b.jpg"}))

	status, body := get(t, app, "/api/v1/timings/a?limit=1")

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "A", body["strategy"])
	assert.Equal(t, 2.0, body["count"])
	mean := body["mean"].(map[string]interface{})
	assert.InDelta(t, 0.3, mean["server_infer"], 1e-9)
	recent := body["recent"].([]interface{})
	require.Len(t, recent, 1)
	assert.Equal(t, "b.jpg", recent[0].(map[string]interface{})["filename"])
}

func TestGetHistoryEmpty(t *testing.T) {
	app, _ := setup(t)

	status, body := get(t, app, "/api/v1/timings/C")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0.0, body["count"])
	assert.NotContains(t, body, "recent")
}

func TestGetHistoryUnknownStrategy(t *testing.T) {
	app, _ := setup(t)

	status, body := get(t, app, "/api/v1/timings/Z")

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "unknown strategy", body["error"])
}

func TestGetHistoryBadLimit(t *testing.T) {
	app, _ := setup(t)

	status, _ := get(t, app, "/api/v1/timings/A?limit=5000")

	assert.Equal(t, http.StatusBadRequest, status)
}
