// Package analysis は症状分析パイプラインを提供する。
// 病歴コンテキストの組み立て、キャッシュ参照、診断エンジン呼び出し、
// 結果の永続化、ローカルの重症度判定を1リクエスト内で順に実行する。
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/elsaedy55/revoai/internal/cache"
	"github.com/elsaedy55/revoai/internal/diagnosis"
	"github.com/elsaedy55/revoai/internal/metrics"
	"github.com/elsaedy55/revoai/internal/model"
	"github.com/elsaedy55/revoai/internal/repository"
	"github.com/elsaedy55/revoai/internal/security"
	"github.com/elsaedy55/revoai/internal/severity"
)

const (
	// MaxSymptoms は1回の分析で受け付ける症状数の上限。
	MaxSymptoms = 10
	// PageSize は分析履歴の1ページあたりの件数。
	PageSize = 10

	maxSymptomLength = 200
	maxNotesLength   = 1000
	statsWindow      = 30 * 24 * time.Hour
)

// ContextBuilder は病歴コンテキストを組み立てるインターフェース。
type ContextBuilder interface {
	BuildContext(ctx context.Context, userID string) (*model.MedicalContext, error)
}

// PayloadCache は診断ペイロードのキャッシュ。読み書きの失敗は内部で処理する。
type PayloadCache interface {
	Get(ctx context.Context, userID string, symptoms []string) (*model.DiagnosisPayload, bool)
	Put(ctx context.Context, userID string, symptoms []string, payload *model.DiagnosisPayload)
}

// Engine は診断エンジンのインターフェース。
type Engine interface {
	Diagnose(ctx context.Context, req diagnosis.Request) (*model.DiagnosisPayload, error)
}

// Notifier は分析完了の通知を送るインターフェース。
type Notifier interface {
	NotifyAnalysis(ctx context.Context, userID string, analysis *model.AnalysisResult) error
}

// Options はパイプラインのタイムアウト等の設定。
type Options struct {
	// EngineTimeout は診断エンジン呼び出し全体（再試行を含む）の上限。
	EngineTimeout time.Duration
	// NotifyTimeout は通知送信の上限。リクエストのコンテキストとは独立に適用する。
	NotifyTimeout time.Duration
	// HistoryWindow はキャッシュミス時に過去の分析を再利用する期間。
	HistoryWindow time.Duration
}

// Service は症状分析のサービス層。
type Service struct {
	contexts  ContextBuilder
	cache     PayloadCache
	engine    Engine
	repo      repository.AnalysisRepository
	notifier  Notifier
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	opts      Options
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// notifierがnilの場合は通知を送らない。
func NewService(
	contexts ContextBuilder,
	payloadCache PayloadCache,
	engine Engine,
	repo repository.AnalysisRepository,
	notifier Notifier,
	sanitizer security.TextSanitizer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	opts Options,
) *Service {
	if opts.EngineTimeout <= 0 {
		opts.EngineTimeout = 60 * time.Second
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 30 * time.Second
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = cache.DefaultTTL
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		contexts:  contexts,
		cache:     payloadCache,
		engine:    engine,
		repo:      repo,
		notifier:  notifier,
		sanitizer: sanitizer,
		metrics:   collector,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// Analyze は症状分析パイプラインを実行する。
//
// 診断ペイロードはキャッシュ、直近の同一症状集合の分析、診断エンジンの順に探す。
// エンジンが失敗した場合は何も保存せず*model.EngineErrorを返す。
// 保存に失敗した場合は*model.StorageErrorを返すが、書き込み済みのキャッシュは取り消さない。
// 通知はレスポンスを待たせずに非同期で送る。
func (s *Service) Analyze(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisOutcome, error) {
	symptoms, notes, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	mc, err := s.contexts.BuildContext(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to build medical context: %w", err)
	}

	payload, source, err := s.resolvePayload(ctx, req.UserID, symptoms, notes, mc)
	if err != nil {
		return nil, err
	}

	saved, err := s.repo.Save(ctx, req.UserID, symptoms, notes, payload)
	if err != nil {
		s.metrics.RecordStorageFailure()
		return nil, &model.StorageError{Err: err}
	}

	verdict := severity.Evaluate(saved.Symptoms, saved.Diagnosis)
	s.metrics.RecordAnalysis(source)

	s.logger.Info("symptom analysis completed",
		slog.String("user_id", req.UserID),
		slog.String("analysis_id", saved.ID),
		slog.String("source", source),
		slog.Int("symptom_count", len(symptoms)),
		slog.Bool("is_emergency", verdict.IsEmergency),
	)

	if s.notifier != nil {
		go s.notify(req.UserID, saved)
	}

	return &model.AnalysisOutcome{Analysis: saved, Severity: verdict}, nil
}

// resolvePayload は診断ペイロードと取得元を返す。
func (s *Service) resolvePayload(ctx context.Context, userID string, symptoms []string, notes string, mc *model.MedicalContext) (*model.DiagnosisPayload, string, error) {
	if payload, ok := s.cache.Get(ctx, userID, symptoms); ok {
		return payload, metrics.SourceCache, nil
	}

	since := s.now().Add(-s.opts.HistoryWindow)
	recent, err := s.repo.FindRecentPayload(ctx, userID, cache.SymptomSet(symptoms), since)
	if err != nil {
		// 参照失敗はエンジン呼び出しで補う
		s.logger.Warn("recent analysis lookup failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	if recent != nil {
		s.cache.Put(ctx, userID, symptoms, recent)
		return recent, metrics.SourceHistory, nil
	}

	engineCtx, cancel := context.WithTimeout(ctx, s.opts.EngineTimeout)
	defer cancel()

	start := time.Now()
	payload, err := s.engine.Diagnose(engineCtx, diagnosis.Request{
		Symptoms: symptoms,
		Context:  mc,
		Notes:    notes,
	})
	s.metrics.RecordEngineLatency(time.Since(start))
	if err != nil {
		s.metrics.RecordEngineFailure()
		var engineErr *model.EngineError
		if !errors.As(err, &engineErr) {
			err = &model.EngineError{Err: err}
		}
		return nil, "", err
	}

	s.cache.Put(ctx, userID, symptoms, payload)
	return payload, metrics.SourceEngine, nil
}

// notify はリクエストから切り離したコンテキストで通知を送る。失敗はログに残すだけ。
func (s *Service) notify(userID string, analysis *model.AnalysisResult) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.NotifyTimeout)
	defer cancel()

	if err := s.notifier.NotifyAnalysis(ctx, userID, analysis); err != nil {
		s.metrics.RecordNotificationFailure()
		s.logger.Warn("analysis notification failed",
			slog.String("user_id", userID),
			slog.String("analysis_id", analysis.ID),
			slog.String("error", err.Error()),
		)
	}
}

// validate は症状とメモを検証する。
// 症状は入力どおりの文字列と順序で返す。タグを含む症状は書き換えずに拒否する。
// メモは無害化した値を返す。
func (s *Service) validate(req model.AnalysisRequest) ([]string, string, error) {
	if len(req.Symptoms) == 0 {
		return nil, "", model.NewValidationError("症状を1件以上入力してください")
	}
	if len(req.Symptoms) > MaxSymptoms {
		return nil, "", model.NewValidationError(fmt.Sprintf("症状は%d件以内で入力してください", MaxSymptoms))
	}

	symptoms := make([]string, 0, len(req.Symptoms))
	for i, raw := range req.Symptoms {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return nil, "", model.NewValidationError(fmt.Sprintf("症状%d件目が空です", i+1))
		}
		if s.sanitizer.Sanitize(raw) != trimmed {
			return nil, "", model.NewValidationError(fmt.Sprintf("症状%d件目にHTMLとして解釈される文字列が含まれています", i+1))
		}
		if len([]rune(raw)) > maxSymptomLength {
			return nil, "", model.NewValidationError(fmt.Sprintf("症状%d件目が長すぎます", i+1))
		}
		symptoms = append(symptoms, raw)
	}

	notes := s.sanitizer.Sanitize(req.Notes)
	if len([]rune(notes)) > maxNotesLength {
		return nil, "", model.NewValidationError("メモが長すぎます")
	}
	return symptoms, notes, nil
}

// List はユーザーの分析履歴を新しい順に1ページ分返す。pageは1始まり。
func (s *Service) List(ctx context.Context, userID string, page int) (*model.AnalysisPage, error) {
	if page < 1 {
		page = 1
	}
	analyses, total, err := s.repo.ListByUser(ctx, userID, page, PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	if analyses == nil {
		analyses = []model.AnalysisResult{}
	}
	return &model.AnalysisPage{
		Analyses:   analyses,
		Total:      total,
		Page:       page,
		PageSize:   PageSize,
		TotalPages: TotalPages(total, PageSize),
	}, nil
}

// TotalPages は総件数をページサイズで割った切り上げ値を返す。
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// Get は所有者の分析を1件返す。他ユーザーの分析は存在しないものとして扱う。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.AnalysisResult, error) {
	a, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find analysis: %w", err)
	}
	if a == nil {
		return nil, model.NewAnalysisNotFoundError(id)
	}
	return a, nil
}

// UpdateRecommendations は分析の推奨事項を置き換える。空の項目は取り除く。
func (s *Service) UpdateRecommendations(ctx context.Context, userID, id string, recommendations []string) (*model.AnalysisResult, error) {
	cleaned := security.SanitizeAll(s.sanitizer, recommendations)
	a, err := s.repo.UpdateRecommendations(ctx, userID, id, cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to update recommendations: %w", err)
	}
	if a == nil {
		return nil, model.NewAnalysisNotFoundError(id)
	}
	return a, nil
}

// Delete は所有者の分析を削除する。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	ok, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	if !ok {
		return model.NewAnalysisNotFoundError(id)
	}
	return nil
}

// Stats は期間内の分析統計を返す。
// endが未指定なら現在時刻、startが未指定ならendの30日前を使う。
func (s *Service) Stats(ctx context.Context, start, end time.Time) (*model.AnalysisStats, error) {
	if end.IsZero() {
		end = s.now()
	}
	if start.IsZero() {
		start = end.Add(-statsWindow)
	}
	if start.After(end) {
		return nil, model.NewValidationError("開始日は終了日より前を指定してください")
	}

	stats, err := s.repo.Stats(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate analyses: %w", err)
	}
	return stats, nil
}

// DeleteExpired は保存期間を過ぎた分析を削除し、削除件数を返す。
func (s *Service) DeleteExpired(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.repo.DeleteOlderThan(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired analyses: %w", err)
	}
	if n > 0 {
		s.metrics.RecordAnalysesPurged(n)
	}
	return n, nil
}
