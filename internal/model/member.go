// Package model はドメインモデルを定義する。
package model

// Platform は配信プラットフォームの識別子。
// social_linksのキーおよびlive_status.platformの値として使われる。
type Platform string

const (
	// PlatformPandaTV はPandaTV（pandalive.co.kr）を表す。
	PlatformPandaTV Platform = "pandatv"
	// PlatformChzzk はCHZZKを表す。
	PlatformChzzk Platform = "chzzk"
	// PlatformYouTube はYouTubeを表す。
	PlatformYouTube Platform = "youtube"
	// PlatformTwitch はTwitchを表す。
	PlatformTwitch Platform = "twitch"
)

// SocialLinks はプラットフォーム名から保存済みアカウント値への対応表。
// organization.social_links（JSONB）をデコードしたもの。
type SocialLinks map[Platform]string

// Lookup は指定プラットフォームの値を返す。空文字列は未設定として扱う。
func (l SocialLinks) Lookup(p Platform) (string, bool) {
	v, ok := l[p]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// MemberRow はorganizationテーブルから読み出した活動中メンバーの行。
type MemberRow struct {
	ID          int64
	Name        string
	SocialLinks SocialLinks
	IsLive      bool
}

// Member は外部アカウントIDが解決された照合対象のメンバー。
// ExternalAccountIDは常に空でない。
type Member struct {
	ID                int64
	ExternalAccountID string
	LastKnownLive     bool
}
