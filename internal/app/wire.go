package app

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/hitoshi/rglive/internal/config"
	"github.com/hitoshi/rglive/internal/livestatus"
	"github.com/hitoshi/rglive/internal/livestatus/push"
	"github.com/hitoshi/rglive/internal/member"
	"github.com/hitoshi/rglive/internal/metrics"
	"github.com/hitoshi/rglive/internal/pandatv"
	"github.com/hitoshi/rglive/internal/repository"
	"github.com/hitoshi/rglive/internal/security"
	"github.com/hitoshi/rglive/internal/worker/livesync"
)

// newLiveSource はPandaTVのライブ一覧クライアントを構築する。
// PANDATV_API_URLが内部ネットワークを指す場合はエラーを返す。
func newLiveSource(cfg *config.Config, mc metrics.MetricsCollector, logger *slog.Logger) (*pandatv.Client, error) {
	guard := security.NewOutboundGuard()
	if err := guard.ValidateEndpoint(cfg.PandaTVAPIURL); err != nil {
		return nil, fmt.Errorf("invalid PANDATV_API_URL: %w", err)
	}

	return pandatv.NewClient(
		guard.NewSafeClient(cfg.StatusAPITimeout),
		security.NewTextSanitizer(),
		mc,
		logger,
		cfg.PandaTVAPIURL,
	), nil
}

// newSink はSINKの設定に応じて判定結果の書き込み先を返す。
func newSink(cfg *config.Config, liveRepo repository.LiveStatusRepository, logger *slog.Logger) livestatus.Sink {
	if cfg.Sink == config.SinkHTTP {
		return push.NewClient(push.Config{
			Endpoint:    cfg.LiveStatusAPIURL,
			Secret:      cfg.LiveStatusAPISecret,
			MaxAttempts: cfg.PushMaxAttempts,
			RetryDelay:  cfg.PushRetryDelay,
			Timeout:     cfg.StatusAPITimeout,
		}, logger)
	}
	return livestatus.NewStoreSink(liveRepo, cfg.PandaTVBaseURL)
}

// newCycle は同期サイクルの全依存関係をワイヤリングする。
func newCycle(cfg *config.Config, db *sql.DB, mc metrics.MetricsCollector, logger *slog.Logger, out io.Writer) (*livesync.Cycle, error) {
	source, err := newLiveSource(cfg, mc, logger)
	if err != nil {
		return nil, err
	}

	memberRepo := repository.NewPostgresMemberRepo(db)
	liveRepo := repository.NewPostgresLiveStatusRepo(db)

	registry := member.NewRegistry(memberRepo, logger)
	persister := livestatus.NewPersister(newSink(cfg, liveRepo, logger), logger)

	logger.Debug("sync cycle wired",
		slog.String("sink", string(cfg.Sink)),
		slog.String("pandatv_api_url", cfg.PandaTVAPIURL),
	)

	return livesync.NewCycle(db, registry, source, persister, mc, logger, livesync.CycleConfig{
		Out:       out,
		MaxErrors: cfg.SummaryMaxErrors,
	}), nil
}
