// Package cleanup は症状分析の保存期間管理ジョブを提供する。
// 保存期間（デフォルト365日）を超過した分析を日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays は分析の保存日数のデフォルト値。
const DefaultRetentionDays = 365

// Purger は保存期間を過ぎた分析を削除するインターフェース。
// analysis.Serviceが満たす。
type Purger interface {
	DeleteExpired(ctx context.Context, retention time.Duration) (int64, error)
}

// CleanupJob は保存期間を超過した分析の自動削除ジョブ。
// 冪等で、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	purger        Purger
	logger        *slog.Logger
	RetentionDays int // 分析の保存日数（デフォルト: 365）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionDaysが0以下の場合はDefaultRetentionDaysを使用する。
func NewCleanupJob(purger Purger, logger *slog.Logger, retentionDays int) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &CleanupJob{
		purger:        purger,
		logger:        logger,
		RetentionDays: retentionDays,
	}
}

// Retention は保存期間をtime.Durationで返す。
func (j *CleanupJob) Retention() time.Duration {
	return time.Duration(j.RetentionDays) * 24 * time.Hour
}

// Run は保存期間を超過した分析を1回削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.purger.DeleteExpired(ctx, j.Retention())
	if err != nil {
		j.logger.Error("分析クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("分析クリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("分析クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start はintervalごとにRunを実行する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
// 個々の実行の失敗はログに記録して次の周期を待つ。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("分析クリーンアップを開始しました",
		slog.Duration("interval", interval),
		slog.Int("retention_days", j.RetentionDays),
	)

	// 起動直後に1回実行
	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("分析クリーンアップを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
