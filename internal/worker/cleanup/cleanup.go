// Package cleanup は取り残されたライブ状態を解除する定期ジョブを提供する。
// 活動停止したメンバーは同期対象から外れるため、配信中フラグが残り続けないよう
// 日次で解除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const (
	resetInactiveMembersSQL = `UPDATE organization SET is_live = false WHERE is_active = false AND is_live = true`
	resetStaleStatusSQL     = `UPDATE live_status SET is_live = false, viewer_count = 0
		 WHERE is_live = true AND last_checked < now() - $1::interval`
)

// StaleStatusJob は取り残された配信中フラグを解除するジョブ。冪等。
type StaleStatusJob struct {
	db     Executor
	logger *slog.Logger
	// StaleAfter はlast_checkedがこれより古い配信中行を解除する閾値（デフォルト: 24時間）。
	StaleAfter time.Duration
}

// NewStaleStatusJob は新しいStaleStatusJobを生成する。
func NewStaleStatusJob(db Executor, logger *slog.Logger) *StaleStatusJob {
	return &StaleStatusJob{
		db:         db,
		logger:     logger,
		StaleAfter: 24 * time.Hour,
	}
}

// Run は活動停止メンバーのis_liveと、更新が途絶えたlive_status行を解除する。
func (j *StaleStatusJob) Run(ctx context.Context) error {
	start := time.Now()

	members, err := j.exec(ctx, resetInactiveMembersSQL)
	if err != nil {
		return fmt.Errorf("活動停止メンバーの配信中フラグ解除に失敗: %w", err)
	}

	interval := fmt.Sprintf("%d seconds", int64(j.StaleAfter.Seconds()))
	rows, err := j.exec(ctx, resetStaleStatusSQL, interval)
	if err != nil {
		return fmt.Errorf("古いライブ状態の解除に失敗: %w", err)
	}

	j.logger.Info("ライブ状態クリーンアップジョブが完了しました",
		slog.Int64("reset_members", members),
		slog.Int64("reset_statuses", rows),
		slog.Duration("stale_after", j.StaleAfter),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

func (j *StaleStatusJob) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		j.logger.Error("ライブ状態クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	return n, nil
}
