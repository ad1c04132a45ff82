package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/rglive/internal/model"
)

// PostgresLiveStatusRepo はPostgreSQLを使用したlive_statusリポジトリ。
type PostgresLiveStatusRepo struct {
	db *sql.DB
}

// NewPostgresLiveStatusRepo はPostgresLiveStatusRepoを生成する。
func NewPostgresLiveStatusRepo(db *sql.DB) *PostgresLiveStatusRepo {
	return &PostgresLiveStatusRepo{db: db}
}

const upsertLiveStatusSQL = `INSERT INTO live_status
	    (member_id, platform, stream_url, thumbnail_url, is_live, viewer_count, last_checked)
	 VALUES ($1, $2, $3, $4, $5, $6, $7)
	 ON CONFLICT (member_id, platform) DO UPDATE SET
	    stream_url = EXCLUDED.stream_url,
	    thumbnail_url = EXCLUDED.thumbnail_url,
	    is_live = EXCLUDED.is_live,
	    viewer_count = EXCLUDED.viewer_count,
	    last_checked = EXCLUDED.last_checked`

// Apply はlive_statusのUPSERTとorganization.is_liveの更新を1トランザクションで行う。
func (r *PostgresLiveStatusRepo) Apply(ctx context.Context, row *model.LiveStatusRow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if err := upsertLiveStatus(ctx, tx, row); err != nil {
		return err
	}
	if err := updateMemberIsLive(ctx, tx, row.MemberID, row.IsLive); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// ListOverview は活動中メンバーを指定プラットフォームのライブ状態と結合して返す。
func (r *PostgresLiveStatusRepo) ListOverview(ctx context.Context, platform model.Platform) ([]model.MemberOverview, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT o.id, o.name, o.unit, o.role, o.is_live,
		        ls.stream_url, ls.thumbnail_url, COALESCE(ls.viewer_count, 0), ls.last_checked
		 FROM organization o
		 LEFT JOIN live_status ls ON ls.member_id = o.id AND ls.platform = $1
		 WHERE o.is_active = true
		 ORDER BY o.unit NULLS LAST, o.position_order, o.id`,
		string(platform),
	)
	if err != nil {
		return nil, fmt.Errorf("メンバーのライブ状態一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var list []model.MemberOverview
	for rows.Next() {
		var (
			m           model.MemberOverview
			unit, role  sql.NullString
			streamURL   sql.NullString
			thumbnail   sql.NullString
			lastChecked sql.NullTime
		)
		if err := rows.Scan(
			&m.ID, &m.Name, &unit, &role, &m.IsLive,
			&streamURL, &thumbnail, &m.ViewerCount, &lastChecked,
		); err != nil {
			return nil, fmt.Errorf("ライブ状態一覧の行の読み取りに失敗しました: %w", err)
		}
		m.Unit = nullStringValue(unit)
		m.Role = nullStringValue(role)
		m.StreamURL = nullStringValue(streamURL)
		m.ThumbnailURL = nullStringValue(thumbnail)
		if lastChecked.Valid {
			t := lastChecked.Time.UTC()
			m.LastChecked = &t
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ライブ状態一覧の走査に失敗しました: %w", err)
	}
	return list, nil
}

func upsertLiveStatus(ctx context.Context, db execer, row *model.LiveStatusRow) error {
	_, err := db.ExecContext(ctx, upsertLiveStatusSQL,
		row.MemberID, string(row.Platform), row.StreamURL,
		nullStringPtr(row.ThumbnailURL), row.IsLive, row.ViewerCount,
		row.LastChecked.UTC(),
	)
	if err != nil {
		return fmt.Errorf("live_statusのUPSERTに失敗しました: %w", err)
	}
	return nil
}

// nullStringPtr はnilまたは空文字列をNULLに変換する。
func nullStringPtr(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullStringValue はNULLをnilに変換する。
func nullStringValue(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
