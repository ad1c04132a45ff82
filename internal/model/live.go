package model

import "time"

// LiveStreamRecord はライブ一覧APIから取得した配信中ユーザー1件。
// サイクルごとに取得し直し、そのまま永続化はしない。
type LiveStreamRecord struct {
	ExternalAccountID string
	DisplayName       string
	ViewerCount       int
	ThumbnailURL      *string
	Title             *string
}

// LiveStatus は1メンバー1サイクル分の判定結果（verdict）。
// IsLiveがfalseの場合、ViewerCount・ThumbnailURL・Titleは常にnil。
// Errorが空でない場合、上流での解決に失敗したことを示し永続化されない。
type LiveStatus struct {
	MemberID          int64
	ExternalAccountID string
	IsLive            bool
	ViewerCount       *int
	ThumbnailURL      *string
	Title             *string
	Error             string
}

// ViewerCountOrZero は視聴者数を返す。未設定の場合は0。
func (s LiveStatus) ViewerCountOrZero() int {
	if s.ViewerCount == nil {
		return 0
	}
	return *s.ViewerCount
}

// LiveStatusRow はlive_statusテーブルの1行。(MemberID, Platform)で一意。
type LiveStatusRow struct {
	MemberID     int64
	Platform     Platform
	StreamURL    string
	ThumbnailURL *string
	IsLive       bool
	ViewerCount  int
	LastChecked  time.Time
}

// ReconciliationResult は1サイクルの永続化結果の集計。
type ReconciliationResult struct {
	Total   int
	Updated int
	Live    int
	Errors  []string
}

// MemberOverview は状態確認API向けに、活動中メンバーと直近のライブ状態を結合したもの。
// live_statusの行が無いメンバーはStreamURL・LastCheckedがnil。
type MemberOverview struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Unit         *string    `json:"unit"`
	Role         *string    `json:"role"`
	IsLive       bool       `json:"is_live"`
	StreamURL    *string    `json:"stream_url"`
	ThumbnailURL *string    `json:"thumbnail_url"`
	ViewerCount  int        `json:"viewer_count"`
	LastChecked  *time.Time `json:"last_checked"`
}
