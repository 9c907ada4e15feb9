// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// ダッシュボードのセッションと端末セッションを日次バッチで削除する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval はジョブの既定の実行間隔。
const DefaultInterval = 24 * time.Hour

// Purger は期限切れの行を削除し、削除件数を返すインターフェース。
// repository.SessionRepository と repository.DeviceSessionRepository が実装する。
type Purger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Target は削除対象のテーブルを表す。Nameはログ出力に使う。
type Target struct {
	Name   string
	Purger Purger
}

// CleanupJob は期限切れセッションの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	targets []Target
	logger  *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(logger *slog.Logger, targets ...Target) *CleanupJob {
	return &CleanupJob{
		targets: targets,
		logger:  logger,
	}
}

// Run は全ての対象から期限切れの行を削除する。
// 1つの対象が失敗しても残りの対象は処理し、失敗をまとめて返す。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	var errs []error
	var total int64
	for _, t := range j.targets {
		n, err := t.Purger.DeleteExpired(ctx)
		if err != nil {
			j.logger.Error("期限切れセッションの削除に失敗しました",
				slog.String("target", t.Name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
			continue
		}
		total += n
		j.logger.Info("期限切れセッションを削除しました",
			slog.String("target", t.Name),
			slog.Int64("deleted_count", n),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("クリーンアップの実行に失敗: %w", errors.Join(errs...))
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", total),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回Runを実行し、以降intervalごとに繰り返す。
// ctxが終了するまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	j.runLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *CleanupJob) runLogged(ctx context.Context) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}
}
