// Package livesync はライブ状態の同期サイクルとそのスケジューリングを提供する。
package livesync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rglive/internal/livestatus"
	"github.com/hitoshi/rglive/internal/metrics"
	"github.com/hitoshi/rglive/internal/model"
	"github.com/hitoshi/rglive/internal/report"
	"github.com/hitoshi/rglive/internal/repository"
)

// MemberResolver は照合対象メンバーを解決する。
type MemberResolver interface {
	ResolveMembers(ctx context.Context) ([]model.Member, error)
}

// LiveSource は現在配信中のユーザー一覧を返す。取得失敗時は空スライスを返す。
type LiveSource interface {
	FetchAllLive(ctx context.Context) []model.LiveStreamRecord
}

// VerdictPersister は判定結果を永続化する。
type VerdictPersister interface {
	Persist(ctx context.Context, verdicts []model.LiveStatus) (model.ReconciliationResult, error)
}

// Cycle は1回分の同期処理を実行する。
// ストア確認 → メンバー取得 → ライブ一覧取得 → 照合 → 永続化 → 報告 の順に進み、
// ストア確認またはメンバー取得に失敗した場合はそこで中断する。
type Cycle struct {
	store     repository.Pinger
	members   MemberResolver
	source    LiveSource
	persister VerdictPersister
	metrics   metrics.MetricsCollector
	logger    *slog.Logger

	// out が非nilの場合、判定結果と集計を表形式で出力する。
	out       io.Writer
	maxErrors int
	newID     func() string
}

// CycleConfig はCycleの出力設定。
type CycleConfig struct {
	Out       io.Writer
	MaxErrors int
}

// NewCycle はCycleを生成する。storeとmcはnilでもよい。
func NewCycle(
	store repository.Pinger,
	members MemberResolver,
	source LiveSource,
	persister VerdictPersister,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	cfg CycleConfig,
) *Cycle {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Cycle{
		store:     store,
		members:   members,
		source:    source,
		persister: persister,
		metrics:   mc,
		logger:    logger,
		out:       cfg.Out,
		maxErrors: cfg.MaxErrors,
		newID:     func() string { return uuid.NewString() },
	}
}

// RunOnce は同期サイクルを1回実行する。
// 返すエラーはサイクルを中断させた致命的なものだけで、
// メンバー単位の失敗は集計結果のErrorsに含まれる。
func (c *Cycle) RunOnce(ctx context.Context) (model.ReconciliationResult, error) {
	start := time.Now()
	logger := c.logger.With(slog.String("cycle_id", c.newID()))

	logger.Info("ライブ状態の同期を開始します")

	res, err := c.run(ctx, logger)
	duration := time.Since(start)

	if err != nil {
		c.metrics.RecordCycle(metrics.CycleOutcomeAborted, duration)
		logger.Error("同期サイクルを中断しました",
			slog.String("error", err.Error()),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
		return res, err
	}

	c.metrics.RecordCycle(metrics.CycleOutcomeSuccess, duration)
	c.metrics.SetLiveMembers(res.Live)
	c.metrics.RecordPersistFailures(len(res.Errors))

	logger.Info("ライブ状態の同期が完了しました",
		slog.Int("total", res.Total),
		slog.Int("updated", res.Updated),
		slog.Int("live", res.Live),
		slog.Int("error_count", len(res.Errors)),
		slog.Any("errors", head(res.Errors, c.maxErrors)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	if c.out != nil {
		report.Summary(c.out, res, c.maxErrors)
	}
	return res, nil
}

func (c *Cycle) run(ctx context.Context, logger *slog.Logger) (model.ReconciliationResult, error) {
	empty := model.ReconciliationResult{Errors: []string{}}

	if c.store != nil {
		if err := c.store.PingContext(ctx); err != nil {
			return empty, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
		}
	}

	members, err := c.members.ResolveMembers(ctx)
	if err != nil {
		return empty, err
	}
	c.metrics.RecordMembersResolved(len(members))

	if len(members) == 0 {
		logger.Info("照合対象のメンバーがいません")
		return empty, nil
	}
	logger.Info("照合対象のメンバーを取得しました", slog.Int("member_count", len(members)))

	records := c.source.FetchAllLive(ctx)
	logger.Debug("ライブ一覧を取得しました", slog.Int("live_count", len(records)))

	verdicts := livestatus.Reconcile(members, records)
	for _, v := range verdicts {
		logger.Debug("判定結果",
			slog.Int64("member_id", v.MemberID),
			slog.String("account_id", v.ExternalAccountID),
			slog.Bool("is_live", v.IsLive),
			slog.Int("viewer_count", v.ViewerCountOrZero()),
		)
	}
	if c.out != nil {
		report.Verdicts(c.out, verdicts)
	}

	return c.persister.Persist(ctx, verdicts)
}

func head(s []string, n int) []string {
	if n < 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
