// Package dbtest はPostgreSQLを使う統合テストの共通ヘルパーを提供する。
// TEST_DATABASE_URLが設定されていればそのDBを、未設定ならtestcontainersで起動したコンテナを使用する。
package dbtest

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// NewPostgres はクリーンなテスト用データベースへの接続とその接続URLを返す。
// -short指定時、またはDockerが利用できない場合はテストをスキップする。
func NewPostgres(t *testing.T) (*sql.DB, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("統合テストは -short 指定時にスキップします")
	}

	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		db := open(t, url)
		if err := db.Ping(); err != nil {
			t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
		}
		Reset(t, db)
		return db, url
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("rglive_test"),
		postgres.WithUsername("rglive"),
		postgres.WithPassword("rglive"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("postgresコンテナの起動に失敗: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("postgresコンテナの停止に失敗: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("接続URLの取得に失敗: %v", err)
	}

	db := open(t, url)

	// コンテナ起動直後は接続を受け付けないことがあるため短くリトライする
	var pingErr error
	for i := 0; i < 10; i++ {
		if pingErr = db.Ping(); pingErr == nil {
			break
		}
		time.Sleep(time.Duration(100*(1<<uint(i))) * time.Millisecond)
	}
	if pingErr != nil {
		t.Fatalf("テスト用データベースに接続できません: %v", pingErr)
	}

	return db, url
}

// Reset は全テーブルとマイグレーション履歴を削除する。
func Reset(t *testing.T, db *sql.DB) {
	t.Helper()

	_, err := db.Exec(`
		DROP TABLE IF EXISTS live_status CASCADE;
		DROP TABLE IF EXISTS organization CASCADE;
		DROP TABLE IF EXISTS schema_migrations CASCADE;
	`)
	if err != nil {
		t.Fatalf("クリーンアップに失敗: %v", err)
	}
}

func open(t *testing.T, url string) *sql.DB {
	t.Helper()

	db, err := sql.Open("postgres", url)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
