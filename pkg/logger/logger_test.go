package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	previous := log
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(previous) })
	return logs
}

func TestFromContext(t *testing.T) {
	logs := observe(t)

	FromContext(context.Background()).Info("global")
	tagged := GetLogger().With(zap.String("lead_id", "abc"))
	FromContext(WithContext(context.Background(), tagged)).Info("scoped")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Empty(t, entries[0].Context)
	assert.Equal(t, "abc", entries[1].ContextMap()["lead_id"])
}

func TestMiddlewareLevels(t *testing.T) {
	logs := observe(t)

	e := echo.New()
	e.Use(Middleware())
	e.GET("/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/api/leads/:id", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Lead not found"})
	})
	e.GET("/boom", func(c echo.Context) error {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	})

	for _, target := range []string{"/health", "/api/leads/x", "/boom"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set(RequestIDKey, "req-1")
		e.ServeHTTP(httptest.NewRecorder(), req)
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "/api/leads/:id", entries[1].ContextMap()["route"])
	assert.Equal(t, "req-1", entries[1].ContextMap()["request_id"])
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
}
