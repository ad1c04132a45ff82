package livesync

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/rglive/internal/model"
)

// Runner は同期サイクル1回分を実行する。
type Runner interface {
	RunOnce(ctx context.Context) (model.ReconciliationResult, error)
}

// Scheduler はサイクルを一定間隔で繰り返し実行する。
// 次のサイクルは前のサイクルの完了から interval 経過後に始まるため、
// サイクルが重なることはない。
type Scheduler struct {
	runner Runner
	logger *slog.Logger
}

// NewScheduler はSchedulerを生成する。
func NewScheduler(runner Runner, logger *slog.Logger) *Scheduler {
	return &Scheduler{runner: runner, logger: logger}
}

// Start は起動直後に1回実行し、その後はコンテキストがキャンセルされるまで繰り返す。
// サイクルの致命的エラーはログに記録して次回へ進む。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	s.logger.Info("ライブ状態同期スケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ライブ状態同期スケジューラを停止しました")
			return
		case <-timer.C:
			if _, err := s.runner.RunOnce(ctx); err != nil {
				s.logger.Error("同期サイクルの実行に失敗しました。次回の実行を待ちます",
					slog.String("error", err.Error()),
					slog.Duration("next_in", interval),
				)
			}
			timer.Reset(interval)
		}
	}
}
