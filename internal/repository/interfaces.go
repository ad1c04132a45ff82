// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/rglive/internal/model"
)

// MemberRepository はorganizationテーブル（メンバー）の永続化インターフェース。
type MemberRepository interface {
	// ListActive は活動中（is_active = true）のメンバーをid昇順で取得する。
	// 重複排除は行わない。
	ListActive(ctx context.Context) ([]model.MemberRow, error)
}

// LiveStatusRepository はlive_statusテーブルの永続化インターフェース。
type LiveStatusRepository interface {
	// Apply は(member_id, platform)をキーとした行の冪等なUPSERTと、
	// メンバー本体のis_live更新を同一トランザクションで行う。
	// 既存行がある場合は全フィールドを上書きする。どちらかが失敗した場合は両方ロールバックされる。
	Apply(ctx context.Context, row *model.LiveStatusRow) error

	// ListOverview は活動中メンバーを指定プラットフォームのライブ状態と結合して返す。
	// unit, position_order, id の順に並ぶ。
	ListOverview(ctx context.Context, platform model.Platform) ([]model.MemberOverview, error)
}

// Pinger はストアの疎通確認インターフェース。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
