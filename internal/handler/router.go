package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/elsaedy55/revoai/internal/metrics"
	"github.com/elsaedy55/revoai/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator     middleware.Authenticator
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
	Logger            *slog.Logger
	StatusCounter     middleware.StatusCounter
	// ShowErrorDetail が真の場合、500系レスポンスに内部エラーの詳細を含める。
	ShowErrorDetail bool
	// StrictTransport が真の場合、HSTSヘッダーを付与する。
	StrictTransport bool

	// 運用
	DB      Pinger
	Metrics prometheus.Gatherer

	// サービス
	AuthService     AuthServiceInterface
	UserService     UserServiceInterface
	MedicalService  MedicalServiceInterface
	AnalysisService AnalysisServiceInterface
	AdminService    AdminUserServiceInterface
	Analytics       AnalyticsServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → ErrorDetail
//	  → Auth → RateLimit(General) → [RateLimit(Analysis) | RequireAdmin]
//
// /health・/metrics・トークン発行は認証の外に配置する。トークン発行は接続元IP単位で制限する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware(deps.StatusCounter))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.StrictTransport))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusCounter))
	r.Use(ErrorDetailMiddleware(deps.ShowErrorDetail))

	authHandler := NewAuthHandler(deps.AuthService)
	userHandler := NewUserHandler(deps.UserService)
	medicalHandler := NewMedicalHandler(deps.MedicalService)
	analysisHandler := NewAnalysisHandler(deps.AnalysisService)
	adminHandler := NewAdminHandler(deps.AdminService, deps.Analytics)

	// --- 認証不要のルート ---
	if deps.DB != nil {
		r.Get("/health", NewHealthHandler(deps.DB).Health)
	}
	if deps.Metrics != nil {
		r.Handle("/metrics", metrics.Handler(deps.Metrics))
	}

	// Firebase IDトークンを直接受け取るトークン発行。ユーザーが未確定のため接続元IPで制限する
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.TokenMiddleware())
		r.Post("/api/auth/token", authHandler.Token)
		r.Post("/api/auth/admin/login", authHandler.AdminLogin)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Authenticator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/api/auth/register", userHandler.Register)

		r.Route("/api/users", func(r chi.Router) {
			r.Get("/profile", userHandler.GetProfile)
			r.Put("/profile", userHandler.UpdateProfile)
			r.Delete("/me", userHandler.Withdraw)

			r.Post("/conditions", medicalHandler.AddCondition)
			r.Put("/conditions/{id}", medicalHandler.UpdateCondition)
			r.Delete("/conditions/{id}", medicalHandler.DeleteCondition)

			r.Post("/medications", medicalHandler.AddMedication)
			r.Put("/medications/{id}", medicalHandler.UpdateMedication)
			r.Delete("/medications/{id}", medicalHandler.DeleteMedication)

			r.Post("/surgeries", medicalHandler.AddSurgery)
			r.Put("/surgeries/{id}", medicalHandler.UpdateSurgery)
			r.Delete("/surgeries/{id}", medicalHandler.DeleteSurgery)

			r.Get("/recommendations", medicalHandler.Recommendations)
		})

		r.Route("/api/symptoms", func(r chi.Router) {
			// POST /api/symptoms/analyze - 分析専用レート制限を追加
			r.With(deps.RateLimiter.AnalysisMiddleware()).Post("/analyze", analysisHandler.Analyze)
			r.Get("/history", analysisHandler.History)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", analysisHandler.Get)
				r.Delete("/", analysisHandler.Delete)
				r.Put("/recommendations", analysisHandler.UpdateRecommendations)
			})
		})

		// 管理者ルート
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)

			r.Get("/users", adminHandler.ListUsers)
			r.Route("/users/{id}", func(r chi.Router) {
				r.Get("/", adminHandler.GetUser)
				r.Delete("/", adminHandler.DeleteUser)
				r.Put("/status", adminHandler.SetStatus)
				r.Put("/admin", adminHandler.SetAdmin)
			})

			r.Get("/analytics/symptoms", adminHandler.SymptomAnalytics)
		})
	})

	return r
}
