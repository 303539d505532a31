package server

import (
	"bytes"
	"net/http"
	"time"

	"auction-sync/internal/repository"
	"auction-sync/utils"

	"github.com/gin-gonic/gin"
)

// IdempotencyHeader names the request header carrying the client's key
const IdempotencyHeader = "Idempotency-Key"

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	utils.Info("HTTP Request", map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	})
}

// bodyRecorder keeps a copy of everything the handler writes
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// IdempotencyMiddleware replays the stored response of a POST that
// repeats an Idempotency-Key, so a retried bid or create is applied once.
// Server errors are not stored and may be retried.
func IdempotencyMiddleware(store repository.IdempotencyStore, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if store == nil || key == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		scoped := c.Request.Method + " " + c.Request.URL.Path + " " + key
		now := time.Now().UTC()

		if rec, ok := store.GetIdempotencyRecord(scoped, now); ok {
			utils.Info("replaying idempotent response", map[string]any{"path": c.Request.URL.Path, "key": key})
			c.Header("Idempotent-Replay", "true")
			c.Data(rec.Status, "application/json; charset=utf-8", rec.Body)
			c.Abort()
			return
		}

		rw := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rw
		c.Next()

		status := rw.Status()
		if status >= http.StatusInternalServerError {
			return
		}
		store.SaveIdempotencyRecord(repository.IdempotencyRecord{
			Key:       scoped,
			Status:    status,
			Body:      append([]byte(nil), rw.body.Bytes()...),
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		})
	}
}
