// Package app はコマンドライン引数を解釈し、各実行モードの依存関係をワイヤリングして起動する。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/hitoshi/rglive/internal/config"
	"github.com/hitoshi/rglive/internal/database"
	"github.com/hitoshi/rglive/internal/handler"
	"github.com/hitoshi/rglive/internal/livestatus"
	"github.com/hitoshi/rglive/internal/logger"
	"github.com/hitoshi/rglive/internal/member"
	"github.com/hitoshi/rglive/internal/metrics"
	"github.com/hitoshi/rglive/internal/middleware"
	"github.com/hitoshi/rglive/internal/report"
	"github.com/hitoshi/rglive/internal/repository"
	"github.com/hitoshi/rglive/internal/worker/cleanup"
	"github.com/hitoshi/rglive/internal/worker/livesync"
)

const (
	cleanupInterval  = 24 * time.Hour
	shutdownTimeout  = 30 * time.Second
	defaultHealthURL = "http://localhost:9090/health"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数のConfigを読み込む。
// --debugが無くてもDEBUG=trueならDebugレベルに切り替える。
func Init(w io.Writer, debug bool) (*config.Config, *slog.Logger, error) {
	log := logger.SetupDefault(w, debug)

	cfg, err := config.Load()
	if err != nil {
		return nil, log, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Debug && !debug {
		log = logger.SetupDefault(w, true)
	}

	return cfg, log, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。ログはwに、表形式の出力は標準出力に書き込む。
// SIGINTまたはSIGTERMを受信するとコンテキストをキャンセルする。
func Run(w io.Writer, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	go func() {
		select {
		case <-stop:
			slog.Info("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	root := newRootCmd(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// newRootCmd はrglive のルートコマンドを生成する。
func newRootCmd(logOut io.Writer) *cobra.Command {
	var opts options

	root := &cobra.Command{
		Use:   "rglive",
		Short: "PandaTVの配信状態をメンバー情報と照合して記録する",
		Long: "rglive はPandaTVのライブ一覧APIを取得し、活動中メンバーの配信状態を判定して保存する。\n" +
			"フラグ無しで1回だけ同期し、--schedule でPOLL_INTERVAL_SECONDSごとに同期し続ける。",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("test") && strings.TrimSpace(opts.testID) == "" {
				return errors.New("--test requires an account id")
			}

			cfg, log, err := Init(logOut, opts.debug)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}

			mode := opts.mode()
			log.Info("starting application",
				slog.String("mode", string(mode)),
				slog.String("sink", string(cfg.Sink)),
				slog.Duration("poll_interval", cfg.PollInterval()),
			)

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			switch mode {
			case ModeList:
				source, err := newLiveSource(cfg, nil, log)
				if err != nil {
					return err
				}
				return runList(ctx, out, source)
			case ModeTest:
				source, err := newLiveSource(cfg, nil, log)
				if err != nil {
					return err
				}
				return runTest(ctx, out, source, opts.testID)
			case ModeSchedule:
				return runSchedule(ctx, cfg, log, out)
			default:
				return runOnce(ctx, cfg, log, out)
			}
		},
	}

	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Debugレベルのログを出力する")
	root.Flags().BoolVar(&opts.schedule, "schedule", false, "POLL_INTERVAL_SECONDSごとに同期し続ける")
	root.Flags().StringVar(&opts.testID, "test", "", "指定したPandaTVアカウントIDの配信状態だけを表示する")
	root.Flags().BoolVar(&opts.list, "list", false, "配信中の全ユーザーを表示する")

	root.AddCommand(
		newMigrateCmd(logOut, &opts),
		newHealthcheckCmd(),
	)

	return root
}

func newMigrateCmd(logOut io.Writer, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "未適用のデータベースマイグレーションを適用する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := Init(logOut, opts.debug)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runMigrate(cfg, log)
		},
	}
}

// newHealthcheckCmd はdistroless環境でのDockerヘルスチェック用サブコマンドを返す。
// フル初期化はせず、METRICS_ADDRだけを参照する。
func newHealthcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "ステータスサーバーの/healthを確認する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHealthcheck(healthcheckURL(os.Getenv("METRICS_ADDR")))
		},
	}
}

// runOnce は同期サイクルを1回実行する。
// サイクルが中断された場合はエラーを返し、プロセスは非ゼロで終了する。
// メンバー単位の失敗は集計に含まれるだけでエラーにはしない。
func runOnce(ctx context.Context, cfg *config.Config, log *slog.Logger, out io.Writer) error {
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	cycle, err := newCycle(cfg, db, nil, log, out)
	if err != nil {
		return err
	}

	if _, err := cycle.RunOnce(ctx); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	return nil
}

// runSchedule はスケジュールモードで起動する。
// 同期サイクルを一定間隔で実行し、並行してステータスサーバーと日次クリーンアップを動かす。
// コンテキストがキャンセルされるとサーバーをグレースフルシャットダウンして戻る。
func runSchedule(ctx context.Context, cfg *config.Config, log *slog.Logger, out io.Writer) error {
	// 起動時にDBへ到達できなくても落とさない。各サイクルが疎通を確認する。
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mc := metrics.NewCollector(reg)

	cycle, err := newCycle(cfg, db, mc, log, out)
	if err != nil {
		return err
	}

	var server *http.Server
	if cfg.MetricsAddr != "" {
		rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), log)
		defer rl.Stop()

		server = &http.Server{
			Addr: cfg.MetricsAddr,
			Handler: handler.NewRouter(&handler.RouterDeps{
				HealthChecker: db,
				LiveStatus:    repository.NewPostgresLiveStatusRepo(db),
				Gatherer:      reg,
				RateLimiter:   rl,
				Logger:        log,
			}),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			log.Info("status server starting", slog.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("status server listen error", slog.String("error", err.Error()))
			}
		}()
	}

	go runCleanup(ctx, cleanup.NewStaleStatusJob(db, log), log)

	log.Info("scheduler starting", slog.Duration("interval", cfg.PollInterval()))
	livesync.NewScheduler(cycle, log).Start(ctx, cfg.PollInterval())

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("status server shutdown failed: %w", err)
		}
	}

	log.Info("scheduler stopped gracefully")
	return nil
}

// runCleanup は起動直後に1回、その後は日次でクリーンアップジョブを実行する。
func runCleanup(ctx context.Context, job *cleanup.StaleStatusJob, log *slog.Logger) {
	if err := job.Run(ctx); err != nil {
		log.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := job.Run(ctx); err != nil {
				log.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}

// runList は配信中の全ユーザーを表示する。取得に失敗した場合は空の一覧になる。
func runList(ctx context.Context, out io.Writer, source livesync.LiveSource) error {
	report.LiveList(out, source.FetchAllLive(ctx))
	return nil
}

// runTest は指定アカウントが現在配信中かどうかを表示する。
// URL形式で渡された場合もアカウントIDに正規化してから照合する。
func runTest(ctx context.Context, out io.Writer, source livesync.LiveSource, raw string) error {
	id, err := member.ExtractAccountID(raw)
	if err != nil {
		return err
	}

	index := livestatus.Index(source.FetchAllLive(ctx))
	if rec, ok := index[id]; ok {
		report.TestResult(out, id, &rec)
		return nil
	}
	report.TestResult(out, id, nil)
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config, log *slog.Logger) error {
	log.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// healthcheckURL はMETRICS_ADDRからローカルの/health URLを組み立てる。
// ":9090"、"0.0.0.0:9090" のどちらの形式でもlocalhostのポートに向ける。
func healthcheckURL(addr string) string {
	if addr == "" {
		return defaultHealthURL
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return defaultHealthURL
	}
	return fmt.Sprintf("http://localhost:%s/health", port)
}

// runHealthcheck はヘルスチェックを実行する。
// /health エンドポイントにHTTPリクエストを送り、200以外はエラーを返す。
func runHealthcheck(url string) error {
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
