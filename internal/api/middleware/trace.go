package middleware

import (
	"log/slog"
	"net/http"

	"github.com/mailpilot/mailpilot-api/internal/api/shared"
)

// TraceMiddleware adds a trace ID to the request context. Applied early in
// the middleware chain so every handler and error response can correlate
// with the logs.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shared.SetTraceID(r.Context())

		slog.Debug("request started",
			slog.String("trace_id", shared.GetTraceID(ctx)),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
