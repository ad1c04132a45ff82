// Package pandatv はPandaTV（pandalive.co.kr）のライブ一覧APIクライアントを提供する。
package pandatv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/rglive/internal/metrics"
	"github.com/hitoshi/rglive/internal/model"
	"github.com/hitoshi/rglive/internal/security"
)

const (
	// DefaultEndpoint はライブ一覧APIのエンドポイント。
	DefaultEndpoint = "https://api.pandalive.co.kr/v1/live"
	// maxBodySize はレスポンスボディの読み取り上限。
	maxBodySize = 10 * 1024 * 1024
	userAgent   = "Mozilla/5.0 (compatible; rglive/1.0)"
)

// Client はライブ一覧APIのクライアント。
// 1回の呼び出しで現在配信中の全ユーザーを取得する。
type Client struct {
	httpClient *http.Client
	sanitizer  security.TextSanitizer
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	endpoint   string
}

// NewClient はClientの新しいインスタンスを生成する。
// endpointが空の場合はDefaultEndpointを使用する。
// タイムアウトはhttpClient側で設定する。
func NewClient(
	httpClient *http.Client,
	sanitizer security.TextSanitizer,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	endpoint string,
) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Client{
		httpClient: httpClient,
		sanitizer:  sanitizer,
		metrics:    mc,
		logger:     logger,
		endpoint:   endpoint,
	}
}

type liveListResponse struct {
	Result  bool        `json:"result"`
	Message string      `json:"message"`
	List    []liveEntry `json:"list"`
}

type liveEntry struct {
	UserID   string      `json:"userId"`
	UserNick string      `json:"userNick"`
	User     viewerCount `json:"user"`
	ThumbURL *string     `json:"thumbUrl"`
	Title    *string     `json:"title"`
}

// viewerCount は数値・数値文字列の両方を受け付ける視聴者数。
// 解釈できない値、負数、live_status.viewer_count（INTEGER）に収まらない値は0として扱う。
type viewerCount int

func (v *viewerCount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || n < 0 || n > math.MaxInt32 {
		*v = 0
		return nil
	}
	*v = viewerCount(n)
	return nil
}

// FetchAllLive は現在配信中のユーザー一覧を取得する。
// 通信エラー、2xx以外のステータス、デコード失敗、result != true のいずれの場合も
// エラーではなく空スライスを返す。呼び出し元は全員オフラインとして扱う。
//
// 返すレコードはAPIの値そのものではなく正規化済み。
// タイトルとニックネームはマークアップを除去し、サムネイルURLは前後の空白を除いて空ならnil、
// 視聴者数は0以上MaxInt32以下に収める。userIdが空のエントリは含まない。
func (c *Client) FetchAllLive(ctx context.Context) []model.LiveStreamRecord {
	start := time.Now()

	records, outcome, err := c.fetch(ctx)
	c.metrics.RecordStatusAPIRequest(outcome, time.Since(start))

	if err != nil {
		c.logger.Warn("ライブ一覧の取得に失敗しました。全員オフラインとして扱います",
			slog.String("endpoint", c.endpoint),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
		return []model.LiveStreamRecord{}
	}

	c.logger.Debug("ライブ一覧を取得しました",
		slog.Int("live_count", len(records)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return records
}

func (c *Client) fetch(ctx context.Context) ([]model.LiveStreamRecord, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, metrics.APIOutcomeTransportError, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, metrics.APIOutcomeTransportError, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, metrics.APIOutcomeHTTPError, fmt.Errorf("ライブ一覧APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, metrics.APIOutcomeTransportError, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var payload liveListResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, metrics.APIOutcomeDecodeError, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if !payload.Result {
		msg := payload.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, metrics.APIOutcomeRejected, fmt.Errorf("ライブ一覧APIがresult=falseを返しました: %s", msg)
	}

	return c.toRecords(payload.List), metrics.APIOutcomeOK, nil
}

// toRecords はAPIのエントリをドメインモデルに変換する。userIdが空のエントリは捨てる。
func (c *Client) toRecords(entries []liveEntry) []model.LiveStreamRecord {
	records := make([]model.LiveStreamRecord, 0, len(entries))
	for _, e := range entries {
		if e.UserID == "" {
			continue
		}
		records = append(records, model.LiveStreamRecord{
			ExternalAccountID: e.UserID,
			DisplayName:       c.sanitize(e.UserNick),
			ViewerCount:       int(e.User),
			ThumbnailURL:      nonEmpty(e.ThumbURL),
			Title:             c.sanitizePtr(e.Title),
		})
	}
	return records
}

func (c *Client) sanitize(s string) string {
	if c.sanitizer == nil {
		return s
	}
	return c.sanitizer.SanitizeText(s)
}

func (c *Client) sanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := c.sanitize(*s)
	return &v
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
