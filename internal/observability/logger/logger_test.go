package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/larrybwosi/workspace-sub003/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestWithContextAddsOnlyPresentFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	WithContext(context.Background(), base).Info("bare")
	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithWorkspaceID(ctx, "42")
	ctx = obscontext.WithActor(ctx, "workspace_token", "7")
	WithContext(ctx, base).Info("scoped")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Empty(t, entries[0].ContextMap())
	assert.Equal(t, map[string]interface{}{
		"request_id":   "req-1",
		"workspace_id": "42",
		"actor_type":   "workspace_token",
		"actor_id":     "7",
	}, entries[1].ContextMap())
}

func TestAccessLevel(t *testing.T) {
	assert.Equal(t, zapcore.ErrorLevel, accessLevel("/v1/messages", http.StatusBadGateway, ""))
	assert.Equal(t, zapcore.DebugLevel, accessLevel("/health", http.StatusOK, ""))
	assert.Equal(t, zapcore.DebugLevel, accessLevel("/realtime/ws", http.StatusSwitchingProtocols, ""))
	assert.Equal(t, zapcore.DebugLevel, accessLevel("/v1/webhooks/incoming", http.StatusBadRequest, "validation_error"))
	assert.Equal(t, zapcore.InfoLevel, accessLevel("/v1/webhooks/incoming", http.StatusUnauthorized, "authentication_error"))
	assert.Equal(t, zapcore.InfoLevel, accessLevel("/workspaces/:id", http.StatusOK, ""))
}

func TestGinMiddlewareKeepsOrMintsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, obscontext.RequestIDFromContext(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Body.String())
	assert.Equal(t, "abc", w.Header().Get(HeaderRequestID))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Len(t, w.Body.String(), 26)
	assert.Equal(t, w.Body.String(), w.Header().Get(HeaderRequestID))
}

func TestGormTraceLevel(t *testing.T) {
	l := NewGormLogger(DefaultGormLoggerConfig())

	_, ok := l.traceLevel(time.Millisecond, gormlogger.ErrRecordNotFound)
	assert.False(t, ok)

	level, ok := l.traceLevel(time.Millisecond, gorm.ErrDuplicatedKey)
	assert.True(t, ok)
	assert.Equal(t, zapcore.DebugLevel, level)

	level, ok = l.traceLevel(time.Millisecond, errors.New("connection reset"))
	assert.True(t, ok)
	assert.Equal(t, zapcore.ErrorLevel, level)

	level, ok = l.traceLevel(time.Second, nil)
	assert.True(t, ok)
	assert.Equal(t, zapcore.WarnLevel, level)

	_, ok = l.traceLevel(time.Millisecond, nil)
	assert.False(t, ok)

	_, ok = l.LogMode(gormlogger.Silent).(*GormLogger).traceLevel(time.Second, errors.New("x"))
	assert.False(t, ok)
}

func TestGormLoggerDropsBoundParams(t *testing.T) {
	var filter gorm.ParamsFilter = NewGormLogger(GormLoggerConfig{})
	sql, params := filter.ParamsFilter(context.Background(), "SELECT * FROM api_tokens WHERE token_hash = ?", "secret-hash")
	assert.Equal(t, "SELECT * FROM api_tokens WHERE token_hash = ?", sql)
	assert.Empty(t, params)
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL(`SELECT * FROM "messages"`))
	assert.Equal(t, "INSERT", operationFromSQL(`  insert INTO audit_logs (id) VALUES (1)`))
	assert.Equal(t, "OTHER", operationFromSQL("PRAGMA foreign_keys"))
}
