package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fleetwatch/internal/config"
	"fleetwatch/internal/logger"
	"fleetwatch/pkg/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"request_id": GetRequestID(c),
			"username":   c.GetString(UsernameKey),
		})
	})
	r.POST("/echo", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDMiddleware(t *testing.T) {
	r := newEngine(RequestIDMiddleware())

	w := do(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Contains(t, w.Body.String(), generated)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	assert.Equal(t, "abc-123", do(r, req).Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 500))
	assert.Len(t, do(r, req).Header().Get(RequestIDHeader), 36)

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLength))
	assert.Len(t, do(r, req).Header().Get(RequestIDHeader), maxRequestIDLength)
}

func TestRequestIDRejectsUnprintableIDs(t *testing.T) {
	r := newEngine(RequestIDMiddleware())

	for _, id := range []string{"abc 123", "abc\tinjected", "caf\u00e9"} {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(RequestIDHeader, id)
		got := do(r, req).Header().Get(RequestIDHeader)
		assert.NotEqual(t, id, got)
		assert.Len(t, got, 36, "id %q is replaced", id)
	}
}

func TestRequestLoggerCarriesRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := logger.Logger
	logger.Logger = zap.New(core)
	t.Cleanup(func() { logger.Logger = prev })

	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ws", func(c *gin.Context) {
		RequestLogger(c, "ws").Warn("WebSocket upgrade failed")
		c.Status(http.StatusBadRequest)
	})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set(RequestIDHeader, "dash-42")
	do(r, req)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "ws", entries[0].LoggerName)
	assert.Equal(t, "dash-42", entries[0].ContextMap()["request_id"])
}

func TestAuthMiddleware(t *testing.T) {
	r := newEngine(AuthMiddleware("secret"))

	assert.Equal(t, http.StatusUnauthorized, do(r, httptest.NewRequest(http.MethodGet, "/ping", nil)).Code)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, do(r, req).Code)

	token, err := utils.GenerateToken("ops", "", "secret", time.Minute)
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := do(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"ops"`)

	req = httptest.NewRequest(http.MethodGet, "/ping?token="+token, nil)
	assert.Equal(t, http.StatusOK, do(r, req).Code)
}

func TestAuthMiddlewareDisabledWithoutSecret(t *testing.T) {
	r := newEngine(AuthMiddleware(""))
	assert.Equal(t, http.StatusOK, do(r, httptest.NewRequest(http.MethodGet, "/ping", nil)).Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(0.001, 2)
	defer limiter.Stop()
	r := newEngine(RateLimitMiddleware(limiter))

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(r, httptest.NewRequest(http.MethodGet, "/ping", nil)).Code)
	}
	w := do(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	other := httptest.NewRequest(http.MethodGet, "/ping", nil)
	other.RemoteAddr = "10.0.0.9:1234"
	assert.Equal(t, http.StatusOK, do(r, other).Code)
}

func TestRequestSizeLimitMiddleware(t *testing.T) {
	r := newEngine(RequestSizeLimitMiddleware(16))

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"deviceId":"1234567890"}`))
	assert.Equal(t, http.StatusRequestEntityTooLarge, do(r, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"a":1}`))
	assert.Equal(t, http.StatusNoContent, do(r, req).Code)
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	w := do(newEngine(SecurityHeadersMiddleware()), httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestCORSMiddleware(t *testing.T) {
	r := newEngine(CORSMiddleware(&config.CORSConfig{
		AllowedOrigins: []string{"https://dash.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         600,
	}))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	w := do(r, req)
	assert.Equal(t, "https://dash.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	assert.Equal(t, http.StatusForbidden, do(r, req).Code)
}

func TestLoggingMiddlewarePassesThrough(t *testing.T) {
	r := newEngine(RequestIDMiddleware(), LoggingMiddleware())
	assert.Equal(t, http.StatusOK, do(r, httptest.NewRequest(http.MethodGet, "/ping", nil)).Code)
}
