package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RequestLogger logs one line per request. Server errors are logged at
// error level.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				attrs := []any{
					slog.Group("request",
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("request_id", chimiddleware.GetReqID(r.Context())),
					),
					slog.Group("response",
						slog.Int("status", status),
						slog.Int("bytes", ww.BytesWritten()),
						slog.Duration("latency", time.Since(start)),
					),
				}
				if userID, ok := UserIDFromContext(r.Context()); ok {
					attrs = append(attrs, slog.String("user_id", userID))
				}
				if status >= http.StatusInternalServerError {
					logger.ErrorContext(r.Context(), "server error", attrs...)
					return
				}
				logger.InfoContext(r.Context(), "request completed", attrs...)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
