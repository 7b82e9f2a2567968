package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/elsaedy55/revoai/internal/model"
)

// testConfig はテスト用の小さなレート設定を返す。
func testConfig(generalBurst, analysisBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    generalBurst,
		AnalysisRate:    1,
		AnalysisBurst:   analysisBurst,
		CleanupInterval: time.Minute,
	}
}

// requestAs はユーザーIDをコンテキストに持つリクエストを生成する。
func requestAs(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/symptoms/analyze", nil)
	return req.WithContext(ContextWithUserID(req.Context(), userID))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// --- API全般 ---

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(testConfig(5, 1))
	defer rl.Stop()

	calls := 0
	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs("user-1"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
	if calls != 5 {
		t.Errorf("handler call count = %d, want 5", calls)
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	rl := NewRateLimiter(testConfig(2, 1))
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestAs("user-limited"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-limited"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retry < 1 {
		t.Errorf("Retry-After = %q", w.Header().Get("Retry-After"))
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != model.ErrCodeRateLimited {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimited)
	}
}

func TestRateLimitMiddleware_IsolatesUsers(t *testing.T) {
	rl := NewRateLimiter(testConfig(1, 1))
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), requestAs("user-a"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-b"))
	if w.Code != http.StatusOK {
		t.Errorf("user-b status = %d, want %d", w.Code, http.StatusOK)
	}
	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestRateLimitMiddleware_NoUserID_Returns401(t *testing.T) {
	rl := NewRateLimiter(testConfig(1, 1))
	defer rl.Stop()

	w := httptest.NewRecorder()
	rl.GeneralMiddleware()(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/test", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// --- 症状分析 ---

// 症状分析の制限はAPI全般の制限と独立している
func TestAnalysisRateLimit_IndependentFromGeneral(t *testing.T) {
	rl := NewRateLimiter(testConfig(10, 1))
	defer rl.Stop()

	general := rl.GeneralMiddleware()(okHandler())
	analysis := rl.AnalysisMiddleware()(okHandler())

	w := httptest.NewRecorder()
	analysis.ServeHTTP(w, requestAs("user-x"))
	if w.Code != http.StatusOK {
		t.Fatalf("first analysis status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	analysis.ServeHTTP(w, requestAs("user-x"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second analysis status = %d, want 429", w.Code)
	}

	w = httptest.NewRecorder()
	general.ServeHTTP(w, requestAs("user-x"))
	if w.Code != http.StatusOK {
		t.Errorf("general status = %d, want 200", w.Code)
	}
	if rl.AnalysisLimiterCount() != 1 {
		t.Errorf("AnalysisLimiterCount = %d, want 1", rl.AnalysisLimiterCount())
	}
}

// --- トークン発行（接続元IP単位） ---

func TestTokenMiddleware_LimitsPerClientIP(t *testing.T) {
	rl := NewRateLimiter(testConfig(1, 1))
	defer rl.Stop()
	handler := rl.TokenMiddleware()(okHandler())

	send := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/token", nil)
		req.RemoteAddr = remoteAddr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	if w := send("198.51.100.7:4000"); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}
	// ポートが違っても同じIPとして数える
	w := send("198.51.100.7:4001")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header should be set")
	}
	if w := send("198.51.100.8:4000"); w.Code != http.StatusOK {
		t.Errorf("other IP status = %d, want 200", w.Code)
	}
	if rl.TokenLimiterCount() != 2 {
		t.Errorf("TokenLimiterCount = %d, want 2", rl.TokenLimiterCount())
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"203.0.113.5:8080", "203.0.113.5"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"no-port", "no-port"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remoteAddr
		req.Header.Set("X-Forwarded-For", "10.0.0.1")
		if got := clientIP(req); got != tt.want {
			t.Errorf("clientIP(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}

// --- クリーンアップ ---

func TestLimiterSet_EvictRemovesIdleEntries(t *testing.T) {
	set := newLimiterSet("general", 1, 1)
	set.get("idle")
	set.get("active")

	set.mu.Lock()
	set.limiters["idle"].lastAccess = time.Now().Add(-time.Hour)
	set.mu.Unlock()

	set.evict(time.Now(), 30*time.Minute)

	if set.len() != 1 {
		t.Fatalf("len = %d, want 1", set.len())
	}
	if _, ok := set.limiters["active"]; !ok {
		t.Error("active entry should remain")
	}
}

// --- 認証ミドルウェアとの組み合わせ ---

func TestRateLimitMiddleware_InChainWithAuthAndCORS(t *testing.T) {
	authenticator := &mockAuthenticator{
		authenticateFn: func(ctx context.Context, bearer string) (*model.Principal, error) {
			return &model.Principal{UserID: "user-chain"}, nil
		},
	}
	rl := NewRateLimiter(testConfig(2, 1))
	defer rl.Stop()

	// CORS -> Auth -> RateLimit -> Handler
	handler := NewCORSMiddleware("http://localhost:3000")(
		NewAuthMiddleware(authenticator)(
			rl.GeneralMiddleware()(okHandler())))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/users/profile", nil)
		req.Header.Set("Authorization", "Bearer token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		want := http.StatusOK
		if i == 2 {
			want = http.StatusTooManyRequests
		}
		if w.Code != want {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, want)
		}
		if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
			t.Errorf("request %d: missing CORS header", i)
		}
	}
}

// --- 設定 ---

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.GeneralBurst != 100 {
		t.Errorf("GeneralBurst = %d, want 100", cfg.GeneralBurst)
	}
	if cfg.AnalysisBurst != 10 {
		t.Errorf("AnalysisBurst = %d, want 10", cfg.AnalysisBurst)
	}
	// 15分で100件 = 9秒に1件
	if got := 1 / float64(cfg.GeneralRate); got < 8.99 || got > 9.01 {
		t.Errorf("general interval = %.2fs, want 9s", got)
	}
	// 1時間で10件 = 360秒に1件
	if got := 1 / float64(cfg.AnalysisRate); got < 359.9 || got > 360.1 {
		t.Errorf("analysis interval = %.2fs, want 360s", got)
	}
}

func TestWriteRateLimitResponse_RetryAfterFromRate(t *testing.T) {
	w := httptest.NewRecorder()
	writeRateLimitResponse(w, DefaultRateLimiterConfig().AnalysisRate)

	if got := w.Header().Get("Retry-After"); got != "360" {
		t.Errorf("Retry-After = %q, want %q", got, "360")
	}
}
