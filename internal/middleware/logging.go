package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// RequestLogger logs operational HTTP requests. Health probes are logged
// at debug level only.
type RequestLogger struct {
	logger *slog.Logger
}

// NewRequestLogger creates a request logging middleware.
func NewRequestLogger(logger *slog.Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// Handler returns middleware that logs every request after it completes.
func (m *RequestLogger) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		}
		switch {
		case wrapped.status >= 500:
			m.logger.Warn("request", attrs...)
		case r.URL.Path == "/health":
			m.logger.Debug("request", attrs...)
		default:
			m.logger.Info("request", attrs...)
		}
	})
}

// statusRecorder captures the status code written by the next handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
