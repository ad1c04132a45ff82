package livestatus

import (
	"context"
	"strings"
	"time"

	"github.com/hitoshi/rglive/internal/model"
	"github.com/hitoshi/rglive/internal/repository"
)

// StoreSink は判定結果をPostgreSQLへ直接書き込むSink。
// live_statusのUPSERTとorganization.is_liveの更新を1トランザクションで行う。
type StoreSink struct {
	repo     repository.LiveStatusRepository
	platform model.Platform
	baseURL  string
	now      func() time.Time
}

// NewStoreSink はPandaTV向けのStoreSinkを生成する。
// baseURLは配信ページURLの組み立てに使う（例: https://www.pandalive.co.kr）。
func NewStoreSink(repo repository.LiveStatusRepository, baseURL string) *StoreSink {
	return &StoreSink{
		repo:     repo,
		platform: model.PlatformPandaTV,
		baseURL:  baseURL,
		now:      time.Now,
	}
}

// Write は判定結果1件を書き込む。
func (s *StoreSink) Write(ctx context.Context, v model.LiveStatus) error {
	return s.repo.Apply(ctx, s.row(v))
}

func (s *StoreSink) row(v model.LiveStatus) *model.LiveStatusRow {
	return &model.LiveStatusRow{
		MemberID:     v.MemberID,
		Platform:     s.platform,
		StreamURL:    StreamURL(s.baseURL, v.ExternalAccountID),
		ThumbnailURL: v.ThumbnailURL,
		IsLive:       v.IsLive,
		ViewerCount:  v.ViewerCountOrZero(),
		LastChecked:  s.now().UTC(),
	}
}

// StreamURL は配信ページのURLを返す。
func StreamURL(baseURL, accountID string) string {
	return strings.TrimRight(baseURL, "/") + "/play/" + accountID
}
