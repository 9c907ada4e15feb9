package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestSecurityHeadersMiddleware_SetsFixedHeaders は固定のセキュリティヘッダーが付与されることを検証する。
func TestSecurityHeadersMiddleware_SetsFixedHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	NewSecurityHeadersMiddleware(SecurityHeadersConfig{})(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	want := map[string]string{
		"X-Content-Type-Options":       "nosniff",
		"X-Frame-Options":              "DENY",
		"Referrer-Policy":              "no-referrer",
		"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
		"Cross-Origin-Resource-Policy": "same-site",
		"Cache-Control":                "no-store",
	}
	for header, v := range want {
		if got := w.Header().Get(header); got != v {
			t.Errorf("%s = %q, want %q", header, got, v)
		}
	}
	if got := w.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS should not be set without HTTPS, got %q", got)
	}
}

// TestSecurityHeadersMiddleware_HSTS はHSTSMaxAge指定時にStrict-Transport-Securityが付与されることを検証する。
func TestSecurityHeadersMiddleware_HSTS(t *testing.T) {
	w := httptest.NewRecorder()
	cfg := SecurityHeadersConfig{HSTSMaxAge: 48 * time.Hour}
	NewSecurityHeadersMiddleware(cfg)(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if got, want := w.Header().Get("Strict-Transport-Security"), "max-age=172800; includeSubDomains"; got != want {
		t.Errorf("Strict-Transport-Security = %q, want %q", got, want)
	}
}

// TestSecurityHeadersMiddleware_HandlerOverridesCacheControl はハンドラーがCache-Controlを上書きできることを検証する。
func TestSecurityHeadersMiddleware_HandlerOverridesCacheControl(t *testing.T) {
	w := httptest.NewRecorder()
	sse := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
	})
	NewSecurityHeadersMiddleware(SecurityHeadersConfig{})(sse).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pwa/events", nil))

	if got := w.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", got)
	}
}
