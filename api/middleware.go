package api

import (
	"net/http"
	"strings"
	"time"

	"vifd/internal/logger"
	"vifd/internal/observability"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditMiddleware logs every request that can change interface state.
func AuditMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if log == nil || c.Request.Method == http.MethodGet {
			return
		}
		log.Info("audit", map[string]any{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"client":   c.ClientIP(),
			"trace_id": c.GetString("trace_id"),
		})
	}
}

func TraceMiddleware(store *observability.TraceStore) gin.HandlerFunc {
	if store == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return func(c *gin.Context) {
		start := time.Now()
		traceID := strings.TrimSpace(c.GetHeader("X-Trace-Id"))
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set("trace_id", traceID)
		c.Header("X-Trace-Id", traceID)
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		store.Add(observability.Trace{
			ID:         traceID,
			Method:     c.Request.Method,
			Path:       path,
			Status:     c.Writer.Status(),
			DurationMs: time.Since(start).Milliseconds(),
			Timestamp:  time.Now().Unix(),
			ClientIP:   c.ClientIP(),
		})
	}
}

type brotliWriter struct {
	gin.ResponseWriter
	bw *brotli.Writer
}

func (w *brotliWriter) Write(p []byte) (int, error) {
	return w.bw.Write(p)
}

func (w *brotliWriter) WriteString(s string) (int, error) {
	return w.bw.Write([]byte(s))
}

// CompressionMiddleware brotli-encodes responses for clients that accept it.
// Websocket upgrades pass through untouched.
func CompressionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Upgrade") != "" || !acceptsBrotli(c.GetHeader("Accept-Encoding")) {
			c.Next()
			return
		}
		c.Header("Content-Encoding", "br")
		c.Header("Vary", "Accept-Encoding")
		bw := brotli.NewWriterLevel(c.Writer, brotli.DefaultCompression)
		c.Writer = &brotliWriter{ResponseWriter: c.Writer, bw: bw}
		defer func() {
			_ = bw.Close()
		}()
		c.Next()
	}
}

func acceptsBrotli(header string) bool {
	for _, part := range strings.Split(header, ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(coding), "br") {
			continue
		}
		return strings.ReplaceAll(strings.TrimSpace(params), " ", "") != "q=0"
	}
	return false
}
