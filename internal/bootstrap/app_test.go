package bootstrap

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *Config {
	return &Config{
		AppEnv:              "test",
		ServerPort:          "0",
		LogLevel:            "error",
		RoomStore:           StoreMemory,
		SessionStore:        StoreMemory,
		KeyPrefix:           "rps:",
		RateLimitMax:        100,
		RateLimitWindow:     time.Second,
		RoomTTL:             time.Hour,
		AbandonedRoomTTL:    24 * time.Hour,
		PresenceFreshWindow: 5 * time.Minute,
		PresenceStaleAfter:  30 * time.Minute,
		SweepInterval:       time.Minute,
		SweepSchedule:       "@every 1m",
		PasswordHashCost:    4,
		CORSAllowedOrigin:   "http://example.test",
	}
}

func serve(app *App, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	app.HttpServer.Handler.ServeHTTP(w, req)
	return w
}

func TestNewAppWithConfig_Memory(t *testing.T) {
	app, err := NewAppWithConfig(memoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { gin.SetMode(gin.TestMode) })

	assert.Nil(t, app.DB)
	assert.Nil(t, app.RedisClient)
	assert.Nil(t, app.AsynqServer, "without Redis the sweep runs in-process")

	w := serve(app, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://example.test", w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(app, http.MethodPost, "/api/rooms", `{"hostId":"h1","hostName":"H","roomName":"R"}`)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = serve(app, http.MethodOptions, "/api/rooms", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestNewAppWithConfig_RedisRoomStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RoomStore = StoreRedis
	cfg.RedisAddr = mr.Addr()
	cfg.RateLimitMax = 2
	cfg.RateLimitWindow = time.Minute

	app, err := NewAppWithConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		gin.SetMode(gin.TestMode)
		_ = app.RedisClient.Close()
	})
	require.NotNil(t, app.AsynqServer)
	require.NotNil(t, app.Scheduler)

	w := serve(app, http.MethodPost, "/api/rooms", `{"hostId":"h1","hostName":"H","roomName":"R"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, mr.Keys())

	// 限流与房间存储共用 Redis
	serve(app, http.MethodGet, "/ping", "")
	w = serve(app, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestNewAppWithConfig_IdentityEnabled(t *testing.T) {
	cfg := memoryConfig()
	cfg.JWTSecret = "secret"
	app, err := NewAppWithConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { gin.SetMode(gin.TestMode) })

	assert.Equal(t, http.StatusUnauthorized, serve(app, http.MethodGet, "/api/rooms/available", "").Code)
	assert.Equal(t, http.StatusOK, serve(app, http.MethodGet, "/api/health", "").Code)
}

func TestLoggerMiddleware_LevelByStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, hook := test.NewNullLogger()
	r := gin.New()
	r.Use(LoggerMiddleware(logger))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for path, level := range map[string]logrus.Level{
		"/ok":   logrus.InfoLevel,
		"/bad":  logrus.WarnLevel,
		"/boom": logrus.ErrorLevel,
	} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
		require.NotNil(t, hook.LastEntry())
		assert.Equal(t, level, hook.LastEntry().Level, path)
		assert.Equal(t, path, hook.LastEntry().Data["path"])
	}
}
