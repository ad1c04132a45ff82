package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hitoshi/rglive/internal/model"
)

// PostgresMemberRepo はPostgreSQLを使用したメンバーリポジトリ。
type PostgresMemberRepo struct {
	db *sql.DB
}

// NewPostgresMemberRepo はPostgresMemberRepoを生成する。
func NewPostgresMemberRepo(db *sql.DB) *PostgresMemberRepo {
	return &PostgresMemberRepo{db: db}
}

// ListActive は活動中のメンバーをid昇順で取得する。
func (r *PostgresMemberRepo) ListActive(ctx context.Context) ([]model.MemberRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, social_links, is_live
		 FROM organization
		 WHERE is_active = true
		 ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("活動中メンバーの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var members []model.MemberRow
	for rows.Next() {
		var m model.MemberRow
		var rawLinks []byte

		if err := rows.Scan(&m.ID, &m.Name, &rawLinks, &m.IsLive); err != nil {
			return nil, fmt.Errorf("メンバー行の読み取りに失敗しました: %w", err)
		}

		// オブジェクト以外のsocial_linksはリンク無しとして扱い、他のメンバーの処理を続ける
		links, err := decodeSocialLinks(rawLinks)
		if err != nil {
			slog.Warn("social_linksがオブジェクトではないためリンク無しとして扱います",
				slog.Int64("member_id", m.ID),
				slog.String("error", err.Error()),
			)
			links = model.SocialLinks{}
		}
		m.SocialLinks = links

		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("メンバー一覧の走査に失敗しました: %w", err)
	}

	return members, nil
}

// execer は*sql.DBと*sql.Txの共通インターフェース。
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateMemberIsLive(ctx context.Context, db execer, memberID int64, isLive bool) error {
	res, err := db.ExecContext(ctx,
		`UPDATE organization SET is_live = $2 WHERE id = $1`,
		memberID, isLive,
	)
	if err != nil {
		return fmt.Errorf("メンバーのis_live更新に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("メンバー %d が存在しません", memberID)
	}
	return nil
}

// decodeSocialLinks はsocial_links（JSONB）を型付きのマップに変換する。
// 文字列以外の値を持つキーは無視する。NULLは空マップとして扱う。
func decodeSocialLinks(raw []byte) (model.SocialLinks, error) {
	links := model.SocialLinks{}
	if len(raw) == 0 {
		return links, nil
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	for k, v := range generic {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			continue
		}
		links[model.Platform(k)] = s
	}
	return links, nil
}
