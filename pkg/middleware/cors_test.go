package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	portalOrigin    = "https://portal.gov.example"
	dashboardOrigin = "https://dashboard.gov.example"
)

func corsResponse(cfg CORSConfig, method, origin string) *httptest.ResponseRecorder {
	h := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	req := httptest.NewRequest(method, "/api/v1/checkout", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// productionPortal mirrors the config the portal builds from CORS_ALLOWED_ORIGINS.
func productionPortal() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{portalOrigin, dashboardOrigin},
		ExposedHeaders: []string{"X-Correlation-ID", "Retry-After"},
		Environment:    "production",
	}
}

// ============================================================================
// Origin resolution
// ============================================================================

func TestCORS_OriginResolution(t *testing.T) {
	tests := []struct {
		name      string
		cfg       CORSConfig
		origin    string
		wantAllow string
		wantVary  string
	}{
		{"prod portal origin", productionPortal(), portalOrigin, portalOrigin, "Origin"},
		{"prod dashboard origin", productionPortal(), dashboardOrigin, dashboardOrigin, "Origin"},
		{"prod foreign origin", productionPortal(), "https://phish.example", "", ""},
		{"prod same-origin request", productionPortal(), "", "", ""},
		{"dev any origin", CORSConfig{Environment: "development"}, "http://localhost:5173", "*", ""},
		{"dev no origin", CORSConfig{Environment: "development"}, "", "*", ""},
		{"prod explicit wildcard", CORSConfig{AllowedOrigins: []string{"*"}, Environment: "production"}, "https://kiosk.example", "*", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := corsResponse(tt.cfg, http.MethodGet, tt.origin)
			assert.Equal(t, tt.wantAllow, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantVary, rec.Header().Get("Vary"))
		})
	}
}

func TestCORS_CredentialedWildcardEchoesOrigin(t *testing.T) {
	cfg := CORSConfig{AllowedOrigins: []string{"*"}, AllowCredentials: true, Environment: "development"}

	rec := corsResponse(cfg, http.MethodGet, portalOrigin)
	assert.Equal(t, portalOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	// Without an Origin there is nothing to echo.
	rec = corsResponse(cfg, http.MethodGet, "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Vary"))
}

func TestCORS_NoCredentialsHeaderUnlessEnabled(t *testing.T) {
	rec := corsResponse(productionPortal(), http.MethodGet, portalOrigin)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

// ============================================================================
// Preflight and header defaults
// ============================================================================

func TestCORS_PreflightShortCircuits(t *testing.T) {
	rec := corsResponse(productionPortal(), http.MethodOptions, portalOrigin)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("Retry-After"), "preflight must not reach the handler")
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "3600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_DefaultsAllowSessionHeader(t *testing.T) {
	rec := corsResponse(productionPortal(), http.MethodOptions, portalOrigin)

	assert.Equal(t,
		"Accept, Authorization, Content-Type, X-Correlation-ID, X-Session-ID",
		rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORS_ExposesRetryAfterOnThrottledCheckout(t *testing.T) {
	rec := corsResponse(productionPortal(), http.MethodPost, portalOrigin)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "X-Correlation-ID, Retry-After", rec.Header().Get("Access-Control-Expose-Headers"))
}

func TestCORS_NoExposeHeaderWhenNoneConfigured(t *testing.T) {
	rec := corsResponse(CORSConfig{Environment: "development"}, http.MethodGet, "")
	assert.Empty(t, rec.Header().Get("Access-Control-Expose-Headers"))
}

func TestCORS_ExplicitSettingsOverrideDefaults(t *testing.T) {
	cfg := productionPortal()
	cfg.AllowedMethods = []string{"GET", "POST"}
	cfg.AllowedHeaders = []string{"Content-Type", "X-Session-ID"}
	cfg.MaxAge = 600

	rec := corsResponse(cfg, http.MethodOptions, portalOrigin)
	assert.Equal(t, "GET, POST", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, X-Session-ID", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestDefaultCORSConfig(t *testing.T) {
	cfg := DefaultCORSConfig()

	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Contains(t, cfg.AllowedHeaders, "X-Session-ID")
	assert.Equal(t, []string{"X-Correlation-ID", "Retry-After"}, cfg.ExposedHeaders)
	assert.False(t, cfg.AllowCredentials)
	assert.Equal(t, "development", cfg.Environment)
}
