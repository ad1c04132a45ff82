// Package report はCLI向けの表形式出力を提供する。
package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/hitoshi/rglive/internal/model"
)

// titleMaxLen はライブ一覧で表示するタイトルの最大文字数。
const titleMaxLen = 30

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// Verdicts はメンバーごとの判定結果を出力する。
func Verdicts(w io.Writer, verdicts []model.LiveStatus) {
	t := newTable(w)
	t.AppendHeader(table.Row{"member", "account", "status", "viewers"})
	for _, v := range verdicts {
		status := "offline"
		viewers := ""
		if v.IsLive {
			status = "LIVE"
			viewers = fmt.Sprint(v.ViewerCountOrZero())
		}
		t.AppendRow(table.Row{v.MemberID, v.ExternalAccountID, status, viewers})
	}
	t.Render()
}

// Summary はサイクルの集計結果を出力する。エラーは先頭maxErrors件のみ表示する。
func Summary(w io.Writer, res model.ReconciliationResult, maxErrors int) {
	t := newTable(w)
	t.SetTitle("Sync completed")
	t.AppendRow(table.Row{"Total", res.Total})
	t.AppendRow(table.Row{"Updated", res.Updated})
	t.AppendRow(table.Row{"Live", res.Live})
	if len(res.Errors) > 0 {
		t.AppendRow(table.Row{"Errors", len(res.Errors)})
	}
	t.Render()

	for i, e := range res.Errors {
		if i >= maxErrors {
			fmt.Fprintf(w, "  ... and %d more\n", len(res.Errors)-maxErrors)
			break
		}
		fmt.Fprintf(w, "  - %s\n", e)
	}
}

// LiveList は現在配信中のユーザー一覧を出力する。
func LiveList(w io.Writer, records []model.LiveStreamRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No live streams found")
		return
	}

	t := newTable(w)
	t.SetTitle("PandaTV Live Streams")
	t.AppendHeader(table.Row{"user id", "nickname", "viewers", "title"})
	for _, r := range records {
		title := ""
		if r.Title != nil {
			title = text.Trim(*r.Title, titleMaxLen)
		}
		t.AppendRow(table.Row{r.ExternalAccountID, r.DisplayName, r.ViewerCount, title})
	}
	t.Render()
	fmt.Fprintf(w, "\nTotal: %d live streams\n", len(records))
}

// TestResult は単一ユーザーの確認結果を出力する。recがnilならオフライン。
func TestResult(w io.Writer, accountID string, rec *model.LiveStreamRecord) {
	t := newTable(w)
	t.SetTitle("Result")
	t.AppendRow(table.Row{"User ID", accountID})
	t.AppendRow(table.Row{"Live", rec != nil})
	if rec != nil {
		t.AppendRow(table.Row{"Nickname", rec.DisplayName})
		t.AppendRow(table.Row{"Title", deref(rec.Title)})
		t.AppendRow(table.Row{"Viewers", rec.ViewerCount})
		t.AppendRow(table.Row{"Thumbnail", deref(rec.ThumbnailURL)})
	}
	t.Render()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
