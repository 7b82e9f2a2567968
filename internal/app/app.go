package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/elsaedy55/revoai/internal/analysis"
	"github.com/elsaedy55/revoai/internal/auth"
	"github.com/elsaedy55/revoai/internal/cache"
	"github.com/elsaedy55/revoai/internal/config"
	"github.com/elsaedy55/revoai/internal/database"
	"github.com/elsaedy55/revoai/internal/diagnosis"
	"github.com/elsaedy55/revoai/internal/handler"
	"github.com/elsaedy55/revoai/internal/logger"
	"github.com/elsaedy55/revoai/internal/mail"
	"github.com/elsaedy55/revoai/internal/medical"
	"github.com/elsaedy55/revoai/internal/metrics"
	"github.com/elsaedy55/revoai/internal/middleware"
	"github.com/elsaedy55/revoai/internal/repository"
	"github.com/elsaedy55/revoai/internal/security"
	"github.com/elsaedy55/revoai/internal/user"
	"github.com/elsaedy55/revoai/internal/worker/cleanup"
)

const (
	// mailTimeout はSendGrid呼び出しのタイムアウト。
	mailTimeout = 10 * time.Second
	// cleanupInterval は分析クリーンアップの実行間隔。
	cleanupInterval = 24 * time.Hour
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevelForEnv(cfg.AppEnv)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	if isHelp(args) {
		_, err := io.WriteString(w, Usage())
		return err
	}

	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("env", cfg.AppEnv),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandCreateAdmin:
		return runCreateAdmin(cfg, commandArg(args, 0))
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	return database.Connect(context.Background(), cfg.DatabaseURL)
}

// services はserve・worker・create-adminで共有するドメインサービス群。
type services struct {
	userRepo *repository.PostgresUserRepo
	medical  *medical.Service
	analysis *analysis.Service
	user     *user.Service
	redis    *redis.Client
}

// close は外部接続を閉じる。
func (s *services) close() {
	if s.redis != nil {
		s.redis.Close()
	}
}

// buildServices はリポジトリからドメインサービスまでをワイヤリングする。
// Redisクライアントは初回コマンド実行時に接続するため、ここでは接続しない。
func buildServices(cfg *config.Config, db *sql.DB, guard security.EgressGuard, collector metrics.MetricsCollector) (*services, error) {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	conditionRepo := repository.NewPostgresConditionRepo(db)
	medicationRepo := repository.NewPostgresMedicationRepo(db)
	surgeryRepo := repository.NewPostgresSurgeryRepo(db)
	analysisRepo := repository.NewPostgresAnalysisRepo(db)

	// 2. 外部APIエンドポイントの検証
	if err := guard.ValidateEndpoint(cfg.OpenAIBaseURL, cfg.IsProduction()); err != nil {
		return nil, fmt.Errorf("invalid OPENAI_BASE_URL: %w", err)
	}

	// 3. 外部クライアントの初期化
	sanitizer := security.NewTextSanitizer()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	analysisCache := cache.NewAnalysisCache(redisClient, cfg.AnalysisCacheTTL, slog.Default())

	engineHTTP := guard.NewSafeClient(cfg.EngineTimeout, security.EndpointHost(cfg.OpenAIBaseURL))
	engine := diagnosis.NewClient(engineHTTP, slog.Default(), diagnosis.Options{
		BaseURL:     cfg.OpenAIBaseURL,
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.OpenAIModel,
		Temperature: cfg.OpenAITemperature,
		MaxTokens:   cfg.OpenAIMaxTokens,
		MaxRetries:  diagnosis.DefaultMaxRetries,
	})

	mailClient := mail.NewClient(guard.NewSafeClient(mailTimeout, mail.Host), slog.Default(), cfg.SendGridAPIKey, cfg.SendGridFromEmail)
	if !mailClient.Enabled() {
		slog.Warn("SENDGRID_API_KEY is not set; notification mails are disabled")
	}
	notifier := mail.NewNotifier(userRepo, mailClient, cfg.FrontendURL)

	// 4. ドメインサービスの初期化
	medicalService := medical.NewService(userRepo, conditionRepo, medicationRepo, surgeryRepo, sanitizer)
	analysisService := analysis.NewService(
		medicalService, analysisCache, engine, analysisRepo, notifier,
		sanitizer, collector, slog.Default(),
		analysis.Options{
			EngineTimeout: cfg.EngineTimeout,
			HistoryWindow: cfg.AnalysisCacheTTL,
		},
	)
	userService := user.NewService(userRepo, medicalService, notifier, sanitizer)

	return &services{
		userRepo: userRepo,
		medical:  medicalService,
		analysis: analysisService,
		user:     userService,
		redis:    redisClient,
	}, nil
}

// newRegistry はアプリケーションメトリクスとランタイムメトリクスを登録したレジストリを返す。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. サービスの初期化
	reg, collector := newRegistry()
	svc, err := buildServices(cfg, db, security.NewEgressGuard(), collector)
	if err != nil {
		return err
	}
	defer svc.close()

	// 3. 認証の初期化
	verifier, err := auth.NewFirebaseVerifier(context.Background(), cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
	if err != nil {
		return err
	}
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTExpiresIn)
	authService := auth.NewService(verifier, tokens, svc.userRepo)

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAnalysis))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Authenticator:     authService,
		RateLimiter:       rateLimiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Logger:            slog.Default(),
		StatusCounter:     collector,
		ShowErrorDetail:   !cfg.IsProduction(),
		StrictTransport:   cfg.IsProduction(),

		DB:      db,
		Metrics: reg,

		AuthService:     authService,
		UserService:     svc.user,
		MedicalService:  svc.medical,
		AnalysisService: svc.analysis,
		AdminService:    svc.user,
		Analytics:       svc.analysis,
	})

	// 5. HTTPサーバーの起動
	// WriteTimeoutは診断エンジンのタイムアウトより長くする
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.EngineTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilSignal(server, "API server")
}

// serveUntilSignal はサーバーを起動し、SIGINTまたはSIGTERMでグレースフルシャットダウンする。
func serveUntilSignal(server *http.Server, name string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%s listen error: %w", name, err)
	case <-stop:
	}
	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 保存期間を過ぎた分析を日次で削除し、/metricsでジョブのメトリクスを公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. サービスの初期化
	reg, collector := newRegistry()
	svc, err := buildServices(cfg, db, security.NewEgressGuard(), collector)
	if err != nil {
		return err
	}
	defer svc.close()

	// 3. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(svc.analysis, slog.Default(), cfg.AnalysisRetentionDays)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cleanupInterval),
		slog.Int("retention_days", cleanupJob.RetentionDays),
	)

	// クリーンアップジョブを日次でバックグラウンド実行
	go cleanupJob.Start(ctx, cleanupInterval)

	// メトリクスサーバーをメインgoroutineで実行（ブロッキング）
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     metrics.SetupMetricsRoute(reg),
		ReadTimeout: 15 * time.Second,
	}
	return serveUntilSignal(server, "worker metrics server")
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	status, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if status.Dirty {
		return fmt.Errorf("schema version %d is dirty; fix it manually before retrying", status.Version)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runCreateAdmin は登録済みユーザーに管理者権限を付与する。
// ユーザーは一度Firebaseでログインして行が作成されている必要がある。
func runCreateAdmin(cfg *config.Config, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return usageError(CommandCreateAdmin)
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := buildServices(cfg, db, security.NewEgressGuard(), metrics.Nop{})
	if err != nil {
		return err
	}
	defer svc.close()

	admin, err := svc.user.EnsureAdmin(context.Background(), email)
	if err != nil {
		return fmt.Errorf("failed to grant admin: %w", err)
	}

	slog.Info("admin granted",
		slog.String("user_id", admin.ID),
		slog.String("email", admin.Email),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
