package app

import "strings"

// Mode はアプリケーションの実行モードを表す。
type Mode string

const (
	// ModeOnce は同期サイクルを1回だけ実行する。
	ModeOnce Mode = "once"
	// ModeSchedule はPOLL_INTERVAL_SECONDSごとに同期サイクルを実行し続ける。
	ModeSchedule Mode = "schedule"
	// ModeTest は指定アカウントが配信中かどうかだけを表示する。ストアには書き込まない。
	ModeTest Mode = "test"
	// ModeList は配信中の全ユーザーを表示する。ストアには書き込まない。
	ModeList Mode = "list"
)

// options はルートコマンドのフラグ値。
type options struct {
	schedule bool
	testID   string
	list     bool
	debug    bool
}

// mode はフラグから実行モードを決める。
// 複数指定された場合は list → test → schedule の順で優先する。
func (o options) mode() Mode {
	switch {
	case o.list:
		return ModeList
	case strings.TrimSpace(o.testID) != "":
		return ModeTest
	case o.schedule:
		return ModeSchedule
	default:
		return ModeOnce
	}
}
