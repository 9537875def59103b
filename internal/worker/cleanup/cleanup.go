// Package cleanup は監査ログの自動削除ジョブを提供する。
// 保持期間（デフォルト90日）を超過したauth_eventsを日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays は監査イベントのデフォルト保持日数。
const DefaultRetentionDays = 90

// Pruner は指定時刻より古い監査イベントを削除する。
// repository.AuthEventRepositoryが満たす。
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob は保持期間を超過した監査イベントの自動削除ジョブ。
// 冪等であり、削除対象がない場合もエラーにしない。
type CleanupJob struct {
	pruner        Pruner
	logger        *slog.Logger
	now           func() time.Time
	RetentionDays int
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(pruner Pruner, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		pruner:        pruner,
		logger:        logger,
		now:           time.Now,
		RetentionDays: DefaultRetentionDays,
	}
}

// Cutoff は削除基準時刻を返す。
func (j *CleanupJob) Cutoff() time.Time {
	return j.now().AddDate(0, 0, -j.RetentionDays)
}

// Run は保持期間を超過した監査イベントを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := j.Cutoff()

	deletedCount, err := j.pruner.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("監査ログクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("監査ログクリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("監査ログクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// RunEvery は起動直後に1回実行し、その後intervalごとにRunを繰り返す。
// ctxがキャンセルされるまでブロックする。個々の実行エラーはログに残して継続する。
func (j *CleanupJob) RunEvery(ctx context.Context, interval time.Duration) {
	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
