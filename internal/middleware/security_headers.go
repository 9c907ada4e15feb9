package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// SecurityHeadersConfig はセキュリティヘッダーの設定。
type SecurityHeadersConfig struct {
	// HSTSMaxAge が正の場合のみStrict-Transport-Securityを付与する。
	// HTTPSで公開する場合に設定する。
	HSTSMaxAge time.Duration
}

// apiSecurityHeaders はJSON APIとSSEの全レスポンスに付与する固定ヘッダー。
var apiSecurityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cross-Origin-Resource-Policy", "same-site"},
}

// NewSecurityHeadersMiddleware はJSON APIに適したセキュリティヘッダーを付与するミドルウェアを返す。
// Cache-Controlの既定値はno-storeで、SSEなどのハンドラーが必要に応じて上書きする。
func NewSecurityHeadersMiddleware(cfg SecurityHeadersConfig) func(next http.Handler) http.Handler {
	var hsts string
	if cfg.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.FormatInt(int64(cfg.HSTSMaxAge/time.Second), 10) + "; includeSubDomains"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range apiSecurityHeaders {
				h.Set(kv[0], kv[1])
			}
			if hsts != "" {
				h.Set("Strict-Transport-Security", hsts)
			}
			h.Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}
