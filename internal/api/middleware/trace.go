// Package middleware holds the HTTP middleware of the report API.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/scry-reports/internal/api/shared"
	"github.com/phrazzld/scry-reports/internal/platform/logger"
)

// Trace adds a trace ID to the request context and stores a logger carrying
// it, so handlers can log with logger.FromContext. It should run early in
// the middleware chain.
func Trace(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context())
			traceID := shared.GetTraceID(ctx)

			w.Header().Set("X-Trace-ID", traceID)
			log := base.With(slog.String("trace_id", traceID))
			log.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			next.ServeHTTP(w, r.WithContext(logger.WithContext(ctx, log)))
		})
	}
}
