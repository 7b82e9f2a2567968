package middleware

import (
	"net/http"
	"strings"

	"github.com/samber/lo"
)

const (
	corsAllowMethods  = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders  = "Content-Type, Authorization"
	corsExposeHeaders = "Retry-After"
	corsMaxAge        = "86400"
)

// ParseAllowedOrigins はカンマ区切りのオリジン設定を分割する。
// 前後の空白と末尾のスラッシュは取り除き、空要素は無視する。
func ParseAllowedOrigins(raw string) []string {
	origins := lo.Map(strings.Split(raw, ","), func(o string, _ int) string {
		return strings.TrimSuffix(strings.TrimSpace(o), "/")
	})
	return lo.Uniq(lo.Compact(origins))
}

// NewCORSMiddleware は許可したオリジン（フロントエンド）に対するCORSミドルウェアを返す。
// allowedOriginはカンマ区切りで複数指定でき、"*"はすべてのオリジンを許可する。
// 許可したオリジンのリクエストにだけAccess-Control-Allow-Originを返す。
// 認証はAuthorizationヘッダーのBearerトークンで行うため、Cookieは送信させない。
// プリフライトリクエストには204で応答する。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	origins := ParseAllowedOrigins(allowedOrigin)
	allowAll := lo.Contains(origins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			allowed := origin != "" && (allowAll || lo.Contains(origins, origin))
			if allowed {
				if allowAll {
					h.Set("Access-Control-Allow-Origin", "*")
				} else {
					h.Set("Access-Control-Allow-Origin", origin)
				}
				h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowed {
					h.Set("Access-Control-Allow-Methods", corsAllowMethods)
					h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
					h.Set("Access-Control-Max-Age", corsMaxAge)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
