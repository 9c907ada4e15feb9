package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsMaxAge       = "86400"
)

// ParseAllowedOrigins はカンマ区切りのオリジン指定を正規化して返す。
// 空要素と末尾のスラッシュは取り除く。
func ParseAllowedOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// NewCORSMiddleware はダッシュボードのオリジンに対するCORSミドルウェアを返す。
//
// allowedOriginsはカンマ区切りで複数指定できる。リクエストのOriginが一致した場合のみ
// そのOriginを反射して返す。credentials送信と共存するため、ワイルドカード(*)は使用しない。
// プリフライトリクエストには一致の有無にかかわらず204で応答し、後続へは渡さない。
func NewCORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	allowed := make(map[string]struct{})
	for _, o := range ParseAllowedOrigins(allowedOrigins) {
		allowed[o] = struct{}{}
	}
	allowHeaders := "Content-Type, Authorization, " + csrfHeaderName

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			if _, ok := allowed[origin]; ok && origin != "" {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", allowHeaders)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Max-Age", corsMaxAge)
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
