// Package livestatus はメンバーとライブ一覧の照合、および判定結果の永続化を提供する。
package livestatus

import "github.com/hitoshi/rglive/internal/model"

// Index はライブ一覧をアカウントIDで引ける形にする。
// 同じIDが複数含まれる場合は後のものが優先される。
func Index(records []model.LiveStreamRecord) map[string]model.LiveStreamRecord {
	idx := make(map[string]model.LiveStreamRecord, len(records))
	for _, r := range records {
		idx[r.ExternalAccountID] = r
	}
	return idx
}

// Reconcile はメンバーごとに1件の判定結果を入力順で返す。副作用はない。
// ライブ一覧に含まれるメンバーは配信中となり、視聴者数・サムネイル・タイトルを
// そのまま引き継ぐ。含まれないメンバーはオフラインで、付随フィールドは全て未設定になる。
func Reconcile(members []model.Member, records []model.LiveStreamRecord) []model.LiveStatus {
	idx := Index(records)

	verdicts := make([]model.LiveStatus, 0, len(members))
	for _, m := range members {
		rec, ok := idx[m.ExternalAccountID]
		if !ok {
			verdicts = append(verdicts, model.LiveStatus{
				MemberID:          m.ID,
				ExternalAccountID: m.ExternalAccountID,
				IsLive:            false,
			})
			continue
		}

		viewers := rec.ViewerCount
		verdicts = append(verdicts, model.LiveStatus{
			MemberID:          m.ID,
			ExternalAccountID: m.ExternalAccountID,
			IsLive:            true,
			ViewerCount:       &viewers,
			ThumbnailURL:      copyString(rec.ThumbnailURL),
			Title:             copyString(rec.Title),
		})
	}
	return verdicts
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
