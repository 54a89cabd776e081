package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/CitizenPortal/pkg/logger"
)

// RequestLogger builds a request-scoped logger carrying correlation_id,
// session_id, trace_id and span_id, and stores it via logger.NewContext.
// Mount it after RequestLogging, Tracing and Session.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if logger.SessionIDFromContext(ctx) == "" {
				if id := r.Header.Get(SessionHeader); id != "" && sessionPattern.MatchString(id) {
					ctx = logger.WithSessionID(ctx, id)
				}
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
