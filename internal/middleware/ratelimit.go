package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/elsaedy55/revoai/internal/model"
)

const (
	generalWindow  = 15 * time.Minute
	analysisWindow = time.Hour
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	AnalysisRate    rate.Limit    // 症状分析のレート（req/sec）
	AnalysisBurst   int           // 症状分析のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// NewRateLimiterConfig はウィンドウあたりの上限回数からレート制限設定を生成する。
// generalは15分あたり、analysisは1時間あたりのリクエスト数。
func NewRateLimiterConfig(general, analysis int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(general) / generalWindow.Seconds()),
		GeneralBurst:    general,
		AnalysisRate:    rate.Limit(float64(analysis) / analysisWindow.Seconds()),
		AnalysisBurst:   analysis,
		CleanupInterval: 5 * time.Minute,
	}
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 100 req/15min/user、症状分析 10 req/hour/user。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return NewRateLimiterConfig(100, 10)
}

// userLimiter はユーザーごとのレートリミッターとアクセス時刻を保持する。
type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は同一設定のユーザー別リミッターの集合。
type limiterSet struct {
	name  string
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*userLimiter
}

func newLimiterSet(name string, limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		name:     name,
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*userLimiter),
	}
}

// get はユーザーのリミッターを取得または作成する。
func (s *limiterSet) get(userID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if ul, exists := s.limiters[userID]; exists {
		ul.lastAccess = now
		return ul.limiter
	}

	limiter := rate.NewLimiter(s.limit, s.burst)
	s.limiters[userID] = &userLimiter{limiter: limiter, lastAccess: now}
	return limiter
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// evict はttlを超えてアクセスの無いエントリを削除する。
func (s *limiterSet) evict(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, ul := range s.limiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(s.limiters, userID)
		}
	}
}

// RateLimiter はユーザーごとのレート制限を管理する。
// API全般、症状分析、認証前のトークン発行（接続元IP単位）の3種類を提供する。
type RateLimiter struct {
	config   RateLimiterConfig
	general  *limiterSet
	analysis *limiterSet
	token    *limiterSet

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:   config,
		general:  newLimiterSet("general", config.GeneralRate, config.GeneralBurst),
		analysis: newLimiterSet("analysis", config.AnalysisRate, config.AnalysisBurst),
		token:    newLimiterSet("token", config.GeneralRate, config.GeneralBurst),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// 認証ミドルウェアの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general)
}

// AnalysisMiddleware は症状分析専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) AnalysisMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.analysis)
}

// TokenMiddleware は認証前のエンドポイント用に、接続元IPごとのレート制限ミドルウェアを返す。
// 上限はAPI全般と同じ。
func (rl *RateLimiter) TokenMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.token.get(ip).Allow() {
				writeRateLimitResponse(w, rl.token.limit)
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("limit_type", rl.token.name),
				)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP はRemoteAddrからポートを除いたアドレスを返す。
// X-Forwarded-Forは詐称できるため参照しない。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimiter) middleware(set *limiterSet) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if !set.get(userID).Allow() {
				writeRateLimitResponse(w, set.limit)
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", set.name),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// AnalysisLimiterCount は現在管理されている症状分析リミッターのエントリ数を返す。
func (rl *RateLimiter) AnalysisLimiterCount() int {
	return rl.analysis.len()
}

// TokenLimiterCount は現在管理されているトークン発行リミッターのエントリ数を返す。
func (rl *RateLimiter) TokenLimiterCount() int {
	return rl.token.len()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからの経過時間が制限ウィンドウとCleanupInterval*2の
// 大きい方を超えたエントリを削除する。ウィンドウ内のエントリを消すと制限がリセットされてしまう。
func (rl *RateLimiter) cleanup() {
	now := time.Now()
	rl.general.evict(now, max(generalWindow, rl.config.CleanupInterval*2))
	rl.analysis.evict(now, max(analysisWindow, rl.config.CleanupInterval*2))
	rl.token.evict(now, max(generalWindow, rl.config.CleanupInterval*2))
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが1つ補充されるまでの秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = max(int(math.Ceil(1.0/float64(r))), 1)
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
