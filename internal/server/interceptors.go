package server

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"time"
)

// ErrPanicRecovered indicates an admin API handler panicked and was
// recovered.
var ErrPanicRecovered = errors.New("panic recovered in admin handler")

// LoggingMiddleware returns HTTP middleware that logs every admin API
// request with its method, path, status, and duration.
//
// Log level is Info for 2xx/3xx responses and Warn otherwise.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			duration := time.Since(start)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", duration),
			}

			if rec.status >= http.StatusBadRequest {
				logger.LogAttrs(r.Context(), slog.LevelWarn, "admin request completed with error", attrs...)
			} else {
				logger.LogAttrs(r.Context(), slog.LevelInfo, "admin request completed", attrs...)
			}
		})
	}
}

// RecoveryMiddleware returns HTTP middleware that recovers from panics in
// the wrapped handler. On panic, it logs the panic value and stack trace at
// Error level and responds with 500.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)

					logger.LogAttrs(r.Context(), slog.LevelError, "panic recovered in admin handler",
						slog.String("path", r.URL.Path),
						slog.Any("panic", v),
						slog.String("stack", string(buf[:n])),
					)

					http.Error(w, ErrPanicRecovered.Error(), http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder wraps http.ResponseWriter to capture the status code
// written by the handler, for logging after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
