package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/utafrali/CitizenPortal/pkg/logger"
)

const (
	// SessionHeader carries the browser session that owns a cart.
	SessionHeader = "X-Session-ID"
	// SessionCookie is accepted when the header is absent.
	SessionCookie = "portal_session"
)

var sessionPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

// Session requires a well-formed session id on every request and stores it
// in the context for handlers and logging.
func Session() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(SessionHeader)
			if id == "" {
				if c, err := r.Cookie(SessionCookie); err == nil {
					id = c.Value
				}
			}
			if id == "" {
				writeError(w, http.StatusBadRequest, "INVALID_INPUT", "missing session id")
				return
			}
			if !sessionPattern.MatchString(id) {
				writeError(w, http.StatusBadRequest, "INVALID_INPUT", "malformed session id")
				return
			}

			next.ServeHTTP(w, r.WithContext(logger.WithSessionID(r.Context(), id)))
		})
	}
}

// SessionIDFromContext returns the session id set by the Session middleware.
func SessionIDFromContext(ctx context.Context) string {
	return logger.SessionIDFromContext(ctx)
}
