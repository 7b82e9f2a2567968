package middleware

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestParseAllowedOrigins(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"単一", "http://localhost:3000", []string{"http://localhost:3000"}},
		{"複数と空白", " https://app.revoai.app/ , http://localhost:3000,,", []string{"https://app.revoai.app", "http://localhost:3000"}},
		{"重複", "https://a.example.com,https://a.example.com", []string{"https://a.example.com"}},
		{"空", "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseAllowedOrigins(tt.raw); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseAllowedOrigins(%q) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}

func corsRequest(method, origin string) *http.Request {
	req := httptest.NewRequest(method, "/api/symptoms/analyze", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

// 許可したオリジンにはそのオリジンを返し、レート制限のRetry-Afterを公開する
func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	mw := NewCORSMiddleware("https://app.revoai.app, http://localhost:3000")

	handlerCalled := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, corsRequest(http.MethodPost, "http://localhost:3000"))

	if w.Code != http.StatusCreated || !handlerCalled {
		t.Errorf("status = %d, handlerCalled = %v", w.Code, handlerCalled)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Expose-Headers"); got != "Retry-After" {
		t.Errorf("Access-Control-Expose-Headers = %q", got)
	}
	if got := w.Header().Get("Vary"); got != "Origin" {
		t.Errorf("Vary = %q", got)
	}
}

// 許可していないオリジンにはCORSヘッダーを返さないが、処理自体は通す
func TestCORSMiddleware_UnknownOrigin(t *testing.T) {
	mw := NewCORSMiddleware("https://app.revoai.app")

	w := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(w, corsRequest(http.MethodGet, "https://evil.example.com"))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
	}
}

func TestCORSMiddleware_Wildcard(t *testing.T) {
	w := httptest.NewRecorder()
	NewCORSMiddleware("*")(okHandler()).ServeHTTP(w, corsRequest(http.MethodGet, "https://any.example.com"))

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestCORSMiddleware_Preflight_Returns204(t *testing.T) {
	mw := NewCORSMiddleware("http://localhost:3000")

	handlerCalled := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	req := corsRequest(http.MethodOptions, "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if handlerCalled {
		t.Error("next handler should not be called for preflight")
	}
	for header, want := range map[string]string{
		"Access-Control-Allow-Origin":  "http://localhost:3000",
		"Access-Control-Allow-Methods": corsAllowMethods,
		"Access-Control-Allow-Headers": corsAllowHeaders,
		"Access-Control-Max-Age":       corsMaxAge,
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

// Access-Control-Request-Methodの無いOPTIONSはプリフライトではない
func TestCORSMiddleware_PlainOptions_PassesThrough(t *testing.T) {
	handlerCalled := false
	handler := NewCORSMiddleware("http://localhost:3000")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, corsRequest(http.MethodOptions, "http://localhost:3000"))

	if !handlerCalled || w.Code != http.StatusMethodNotAllowed {
		t.Errorf("handlerCalled = %v, status = %d", handlerCalled, w.Code)
	}
}
