package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/CitizenPortal/pkg/httputil"
	"github.com/utafrali/CitizenPortal/pkg/logger"
)

type contextKeyType string

const bearerTokenKey contextKeyType = "bearer_token"

// WithBearerToken stores the caller's bearer token so outbound calls to the
// order backend can act on the citizen's behalf.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenKey, token)
}

// BearerTokenFromContext returns the token stored by WithBearerToken.
func BearerTokenFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(bearerTokenKey).(string); ok {
		return t
	}
	return ""
}

// Auth extracts a bearer token from the Authorization header and places it
// in the request context. The portal never validates the token itself; the
// order backend does. When the token is a JWT its subject is recorded as the
// citizen ID for logs and events. With required set, a missing or malformed
// header is rejected with 401.
func Auth(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if required {
					writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing authorization header")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			token = strings.TrimSpace(token)
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid authorization header format")
				return
			}

			ctx := WithBearerToken(r.Context(), token)
			if sub := tokenSubject(token); sub != "" {
				ctx = logger.WithCitizenID(ctx, sub)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// tokenSubject reads the "sub" claim without verifying the signature. Opaque
// tokens yield an empty subject.
func tokenSubject(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	httputil.WriteJSON(w, status, httputil.Response{
		Error: &httputil.ErrorResponse{Code: code, Message: message},
	})
}
