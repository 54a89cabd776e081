package middleware

import "net/http"

// CacheControl returns a middleware that sets the Cache-Control header on
// every response. Handlers may still override it before writing.
func CacheControl(directive string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", directive)
			next.ServeHTTP(w, r)
		})
	}
}

// NoStore marks responses as private session data that no cache may keep.
func NoStore() func(http.Handler) http.Handler {
	return CacheControl("no-store")
}
