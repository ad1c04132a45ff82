// Package member は照合対象メンバーの解決を提供する。
package member

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/rglive/internal/model"
	"github.com/hitoshi/rglive/internal/repository"
)

// Registry は活動中メンバーのうち、対象プラットフォームのアカウントを持つものを解決する。
type Registry struct {
	repo     repository.MemberRepository
	platform model.Platform
	logger   *slog.Logger
}

// NewRegistry はPandaTVを対象とするRegistryを生成する。
func NewRegistry(repo repository.MemberRepository, logger *slog.Logger) *Registry {
	return &Registry{
		repo:     repo,
		platform: model.PlatformPandaTV,
		logger:   logger,
	}
}

// ResolveMembers は活動中メンバーをストアの順序のまま返す。
// アカウント値を持たないメンバーは黙って除外し、正規化できない値を持つメンバーは
// 警告ログを出して除外する。同じアカウントIDを持つメンバーの重複排除は行わない。
// 一覧の取得に失敗した場合はmodel.ErrMemberQueryでラップしたエラーを返す。
func (r *Registry) ResolveMembers(ctx context.Context) ([]model.Member, error) {
	rows, err := r.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrMemberQuery, err)
	}

	members := make([]model.Member, 0, len(rows))
	for _, row := range rows {
		raw, ok := row.SocialLinks.Lookup(r.platform)
		if !ok {
			continue
		}

		id, err := ExtractAccountID(raw)
		if err != nil {
			r.logger.Warn("アカウントIDを解釈できないためメンバーを除外します",
				slog.Int64("member_id", row.ID),
				slog.String("platform", string(r.platform)),
				slog.String("value", raw),
				slog.String("error", err.Error()),
			)
			continue
		}

		members = append(members, model.Member{
			ID:                row.ID,
			ExternalAccountID: id,
			LastKnownLive:     row.IsLive,
		})
	}

	r.logger.Debug("照合対象メンバーを解決しました",
		slog.Int("active_count", len(rows)),
		slog.Int("resolved_count", len(members)),
	)
	return members, nil
}
