// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// サイクルの結果ラベル。
const (
	CycleOutcomeSuccess = "success"
	CycleOutcomeAborted = "aborted"
)

// ライブ一覧API呼び出しの結果ラベル。
const (
	APIOutcomeOK             = "ok"
	APIOutcomeTransportError = "transport_error"
	APIOutcomeHTTPError      = "http_error"
	APIOutcomeDecodeError    = "decode_error"
	APIOutcomeRejected       = "rejected"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ライブ一覧クライアントと同期ワーカーから利用する。
type MetricsCollector interface {
	RecordStatusAPIRequest(outcome string, duration time.Duration)
	RecordMembersResolved(count int)
	RecordCycle(outcome string, duration time.Duration)
	SetLiveMembers(count int)
	RecordPersistFailures(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	apiRequests     *prometheus.CounterVec
	apiLatency      prometheus.Histogram
	membersResolved prometheus.Gauge
	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	liveMembers     prometheus.Gauge
	persistFailures prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rglive_status_api_requests_total",
			Help: "ライブ一覧API呼び出しの結果別合計数",
		}, []string{"outcome"}),
		apiLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rglive_status_api_latency_seconds",
			Help:    "ライブ一覧API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		membersResolved: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rglive_members_resolved",
			Help: "直近サイクルで照合対象となったメンバー数",
		}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rglive_cycles_total",
			Help: "同期サイクルの結果別合計数",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rglive_cycle_duration_seconds",
			Help:    "同期サイクルの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		liveMembers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rglive_live_members",
			Help: "直近サイクルで配信中と判定されたメンバー数",
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rglive_persist_failures_total",
			Help: "メンバー単位の書き込み失敗の合計数",
		}),
	}

	reg.MustRegister(
		c.apiRequests,
		c.apiLatency,
		c.membersResolved,
		c.cycles,
		c.cycleDuration,
		c.liveMembers,
		c.persistFailures,
	)

	return c
}

// RecordStatusAPIRequest はライブ一覧API呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordStatusAPIRequest(outcome string, duration time.Duration) {
	c.apiRequests.WithLabelValues(outcome).Inc()
	c.apiLatency.Observe(duration.Seconds())
}

// RecordMembersResolved は照合対象メンバー数を記録する。
func (c *Collector) RecordMembersResolved(count int) {
	c.membersResolved.Set(float64(count))
}

// RecordCycle はサイクルの結果と所要時間を記録する。
func (c *Collector) RecordCycle(outcome string, duration time.Duration) {
	c.cycles.WithLabelValues(outcome).Inc()
	c.cycleDuration.Observe(duration.Seconds())
}

// SetLiveMembers は配信中メンバー数を記録する。
func (c *Collector) SetLiveMembers(count int) {
	c.liveMembers.Set(float64(count))
}

// RecordPersistFailures は書き込み失敗数を加算する。
func (c *Collector) RecordPersistFailures(count int) {
	c.persistFailures.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。ワンショット実行とテストで使う。
type Nop struct{}

func (Nop) RecordStatusAPIRequest(string, time.Duration) {}
func (Nop) RecordMembersResolved(int)                   {}
func (Nop) RecordCycle(string, time.Duration)           {}
func (Nop) SetLiveMembers(int)                          {}
func (Nop) RecordPersistFailures(int)                   {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
