package logger

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	// LoggerKey is the context key for the request-scoped logger
	LoggerKey contextKey = "logger"
	// RequestIDKey is the context key for the request ID
	RequestIDKey contextKey = "request_id"

	requestIDHeader = "X-Request-ID"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, LoggerKey, entry)
}

// FromContext retrieves the logger from context, falling back to the
// standard logger.
func FromContext(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(LoggerKey).(*logrus.Entry); ok {
		return entry
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func ensureRequestID(r *http.Request) string {
	requestID := r.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.New().String()
		r.Header.Set(requestIDHeader, requestID)
	}
	return requestID
}

// WithRequest creates a logger entry describing r.
func WithRequest(logger *logrus.Logger, r *http.Request) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"request_id": ensureRequestID(r),
		"method":     r.Method,
		"path":       r.URL.Path,
		"remote_ip":  getRemoteIP(r),
		"user_agent": r.UserAgent(),
	})
}

// RequestLoggerMiddleware attaches a request-scoped logger and request ID to
// the context, echoes the ID in the response and logs completion.
func RequestLoggerMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := WithRequest(logger, r)
			requestID := r.Header.Get(requestIDHeader)

			ctx := WithLogger(r.Context(), entry)
			ctx = WithRequestID(ctx, requestID)

			w.Header().Set(requestIDHeader, requestID)
			rw := NewResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			entry.WithFields(logrus.Fields{
				"status":      rw.StatusCode(),
				"duration_ms": time.Since(start).Milliseconds(),
			}).Debug("Request completed")
		})
	}
}

// getRemoteIP extracts the client IP considering proxies
func getRemoteIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

// ResponseWriter wraps http.ResponseWriter to capture status code
type ResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// NewResponseWriter creates a new ResponseWriter.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code.
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.ResponseWriter.WriteHeader(code)
		rw.written = true
	}
}

// Write captures that a write has occurred.
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// StatusCode returns the captured status code.
func (rw *ResponseWriter) StatusCode() int {
	return rw.statusCode
}
