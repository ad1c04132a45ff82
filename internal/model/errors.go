package model

import "errors"

// サイクル全体を中断させる致命的エラー。errors.Isで判定する。
var (
	// ErrStoreUnavailable はストアへの接続を確保できないことを示す。
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrMemberQuery はメンバー一覧の取得に失敗したことを示す。
	ErrMemberQuery = errors.New("member query failed")
	// ErrInvalidAccountID は保存済みの値が正規のアカウントIDとして解釈できないことを示す。
	ErrInvalidAccountID = errors.New("invalid external account id")
)
