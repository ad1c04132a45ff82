// Package push はWebアプリのライブ状態更新APIへ判定結果を送信するSinkを提供する。
package push

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hitoshi/rglive/internal/model"
)

const apiKeyHeader = "x-api-key"

// Config はClientの設定。
type Config struct {
	Endpoint    string
	Secret      string
	MaxAttempts int
	RetryDelay  time.Duration
	Timeout     time.Duration
}

// Client は判定結果をPOST /api/live-status/update へ送る。
// 通信エラーと5xxはRetryDelay固定間隔で最大MaxAttempts回まで試行する。
type Client struct {
	http     *resty.Client
	endpoint string
	logger   *slog.Logger
}

type updateRequest struct {
	Updates []update `json:"updates"`
}

type update struct {
	MemberID     int64   `json:"member_id"`
	IsLive       bool    `json:"is_live"`
	StreamTitle  *string `json:"stream_title,omitempty"`
	ViewerCount  *int    `json:"viewer_count,omitempty"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
}

type updateResponse struct {
	Success bool           `json:"success"`
	Updated int            `json:"updated"`
	Failed  int            `json:"failed"`
	Results []updateResult `json:"results"`
}

type updateResult struct {
	MemberID int64  `json:"member_id"`
	Success  bool   `json:"success"`
	Error    string `json:"error"`
}

// NewClient はClientを生成する。
func NewClient(cfg Config, logger *slog.Logger) *Client {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	rc := resty.New().
		SetTimeout(timeout).
		SetHeader(apiKeyHeader, cfg.Secret).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(attempts - 1).
		SetRetryWaitTime(delay).
		SetRetryMaxWaitTime(delay).
		SetRetryAfter(func(*resty.Client, *resty.Response) (time.Duration, error) {
			return delay, nil
		}).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || (r != nil && r.StatusCode() >= http.StatusInternalServerError)
		})

	c := &Client{
		http:     rc,
		endpoint: cfg.Endpoint,
		logger:   logger,
	}

	rc.OnAfterResponse(func(_ *resty.Client, r *resty.Response) error {
		if r.Request.Attempt > 1 {
			c.logger.Info("ライブ状態更新APIを再試行しました",
				slog.Int("attempt", r.Request.Attempt),
				slog.Int("http_status", r.StatusCode()),
			)
		}
		return nil
	})

	return c
}

// Write は判定結果1件を送信する。
// 2xx応答でもメンバー単位の結果がsuccess=falseであればエラーとする。
func (c *Client) Write(ctx context.Context, v model.LiveStatus) error {
	body := updateRequest{Updates: []update{toUpdate(v)}}

	var out updateResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post(c.endpoint)
	if err != nil {
		return fmt.Errorf("ライブ状態更新APIの呼び出しに失敗しました: %w", err)
	}
	if res.IsError() {
		return fmt.Errorf("ライブ状態更新APIがステータス %d を返しました", res.StatusCode())
	}

	for _, r := range out.Results {
		if r.MemberID == v.MemberID && !r.Success {
			msg := r.Error
			if msg == "" {
				msg = "update rejected"
			}
			return fmt.Errorf("ライブ状態更新APIが更新を拒否しました: %s", msg)
		}
	}
	return nil
}

func toUpdate(v model.LiveStatus) update {
	u := update{
		MemberID: v.MemberID,
		IsLive:   v.IsLive,
	}
	if v.IsLive {
		u.StreamTitle = v.Title
		u.ViewerCount = v.ViewerCount
		u.ThumbnailURL = v.ThumbnailURL
	}
	return u
}
