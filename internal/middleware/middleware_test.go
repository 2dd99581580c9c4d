package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	router := gin.New()
	router.Use(CORSMiddleware())
	router.POST("/payments/initiate", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/payments/initiate", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected allow origin *, got %q", got)
	}
}

func TestRequestLogger_LevelsByStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	router := gin.New()
	router.Use(RequestLogger(zap.New(core)))
	router.GET("/payments/status/:transactionId", func(c *gin.Context) {
		_ = c.Error(errors.New("unknown transaction"))
		c.Status(http.StatusBadRequest)
	})
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, target := range []string{"/payments/status/PLT-1", "/health"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}

	if entries[0].Level != zapcore.WarnLevel {
		t.Errorf("expected warn for 400, got %s", entries[0].Level)
	}
	fields := entries[0].ContextMap()
	if fields["transaction_id"] != "PLT-1" {
		t.Errorf("expected transaction_id PLT-1, got %v", fields["transaction_id"])
	}
	if _, ok := fields["errors"]; !ok {
		t.Error("expected errors field")
	}

	if entries[1].Level != zapcore.InfoLevel {
		t.Errorf("expected info for 200, got %s", entries[1].Level)
	}
}

func TestIdempotencyMiddleware_DisabledWithoutRedis(t *testing.T) {
	calls := 0
	router := gin.New()
	router.Use(IdempotencyMiddleware(nil, nil))
	router.POST("/cart", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"n": calls})
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/cart", nil)
		req.Header.Set("Idempotency-Key", "k1")
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	if calls != 2 {
		t.Errorf("expected handler to run twice without redis, ran %d times", calls)
	}
}
