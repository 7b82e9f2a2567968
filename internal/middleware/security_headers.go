package middleware

import "net/http"

// hstsValue は本番のHTTPSでのみ付与するStrict-Transport-Security。
const hstsValue = "max-age=31536000; includeSubDomains"

// NewSecurityHeadersMiddleware はJSON APIとしてのセキュリティヘッダーを付与するミドルウェアを返す。
// レスポンスには病歴や分析結果が含まれるため、共有キャッシュにもブラウザにも保存させない。
// strictTransportが真の場合はHSTSも付与する。
func NewSecurityHeadersMiddleware(strictTransport bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Cache-Control", "no-store")
			if strictTransport {
				h.Set("Strict-Transport-Security", hstsValue)
			}
			next.ServeHTTP(w, r)
		})
	}
}
