package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	idempotencyHeader   = "Idempotency-Key"
	idempotencyReplayed = "Idempotent-Replayed"
	idempotencyTTL      = 24 * time.Hour
	idempotencyPrefix   = "idempotency:"
	maxIdempotencyKey   = 255
)

// storedResponse is a response replayed for a repeated Idempotency-Key.
type storedResponse struct {
	Status      int             `json:"status"`
	ContentType string          `json:"contentType"`
	Body        json.RawMessage `json:"body"`
}

// bodyRecorder tees the response body into a buffer.
type bodyRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response when a POST is repeated with the same
// Idempotency-Key on the same route. Redis failures fall through to normal processing.
func IdempotencyMiddleware(client *redis.Client, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		if client == nil || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyHeader)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKey {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "Idempotency-Key too long",
				"kind":  "InvalidRequest",
			})
			return
		}

		ctx := c.Request.Context()
		storeKey := idempotencyPrefix + c.FullPath() + ":" + key

		stored, err := loadResponse(ctx, client, storeKey)
		if err != nil && !errors.Is(err, redis.Nil) {
			logger.Warn("idempotency lookup failed", zap.String("key", storeKey), zap.Error(err))
			c.Next()
			return
		}

		if stored != nil {
			c.Header(idempotencyReplayed, "true")
			c.Data(stored.Status, stored.ContentType, stored.Body)
			c.Abort()
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = rec

		c.Next()

		// 5xx responses are not stored so that the client may retry.
		status := c.Writer.Status()
		if status < http.StatusOK || status >= http.StatusInternalServerError {
			return
		}

		resp := storedResponse{
			Status:      status,
			ContentType: c.Writer.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		}
		if err := saveResponse(context.WithoutCancel(ctx), client, storeKey, &resp); err != nil {
			logger.Warn("idempotency store failed", zap.String("key", storeKey), zap.Error(err))
		}
	}
}

func loadResponse(ctx context.Context, client *redis.Client, key string) (*storedResponse, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var resp storedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

func saveResponse(ctx context.Context, client *redis.Client, key string, resp *storedResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	// SetNX keeps the first response if two requests with the same key raced.
	return client.SetNX(ctx, key, data, idempotencyTTL).Err()
}
