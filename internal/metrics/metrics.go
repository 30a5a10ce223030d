// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 参加結果のラベル値
const (
	JoinOutcomeJoined   = "joined"
	JoinOutcomeRejoined = "rejoined"
	JoinOutcomeFull     = "full"
	JoinOutcomeNotFound = "not_found"
	JoinOutcomeError    = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層・通知ワーカー・インポートワーカーから利用する。
type MetricsCollector interface {
	RecordJoin(outcome string)
	RecordNotification(channel, result string)
	RecordNotificationDropped()
	RecordAdvice(mode string, success bool)
	RecordImportFetch(success bool, duration time.Duration)
	RecordMatchesImported(count int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	joins                *prometheus.CounterVec
	notifications        *prometheus.CounterVec
	notificationsDropped prometheus.Counter
	advice               *prometheus.CounterVec
	importFetch          *prometheus.CounterVec
	importLatency        prometheus.Histogram
	matchesImported      prometheus.Counter
	httpStatus           *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatpadel_match_joins_total",
			Help: "試合参加リクエストの結果別件数",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatpadel_notifications_total",
			Help: "通知送信のチャネル・結果別件数",
		}, []string{"channel", "result"}),
		notificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatpadel_notifications_dropped_total",
			Help: "キュー満杯で破棄された通知ジョブ数",
		}),
		advice: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatpadel_coach_advice_total",
			Help: "AIコーチ応答のモード・結果別件数",
		}, []string{"mode", "result"}),
		importFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatpadel_import_fetch_total",
			Help: "スケジュールフィード取得の結果別件数",
		}, []string{"result"}),
		importLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatpadel_import_fetch_latency_seconds",
			Help:    "スケジュールフィード取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		matchesImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatpadel_matches_imported_total",
			Help: "フィードから作成された試合の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatpadel_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.joins,
		c.notifications,
		c.notificationsDropped,
		c.advice,
		c.importFetch,
		c.importLatency,
		c.matchesImported,
		c.httpStatus,
	)

	return c
}

// RecordJoin は参加リクエストの結果を記録する。
func (c *Collector) RecordJoin(outcome string) {
	c.joins.WithLabelValues(outcome).Inc()
}

// RecordNotification は通知送信の結果を記録する。
func (c *Collector) RecordNotification(channel, result string) {
	c.notifications.WithLabelValues(channel, result).Inc()
}

// RecordNotificationDropped は破棄された通知ジョブを記録する。
func (c *Collector) RecordNotificationDropped() {
	c.notificationsDropped.Inc()
}

// RecordAdvice はAIコーチ応答の結果を記録する。
func (c *Collector) RecordAdvice(mode string, success bool) {
	c.advice.WithLabelValues(mode, resultLabel(success)).Inc()
}

// RecordImportFetch はフィード取得の結果とレイテンシを記録する。
func (c *Collector) RecordImportFetch(success bool, duration time.Duration) {
	c.importFetch.WithLabelValues(resultLabel(success)).Inc()
	c.importLatency.Observe(duration.Seconds())
}

// RecordMatchesImported は作成された試合数を記録する。
func (c *Collector) RecordMatchesImported(count int) {
	c.matchesImported.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordJoin(string) {}
func (Nop) RecordNotification(string, string) {}
func (Nop) RecordNotificationDropped() {}
func (Nop) RecordAdvice(string, bool) {}
func (Nop) RecordImportFetch(bool, time.Duration) {}
func (Nop) RecordMatchesImported(int) {}
func (Nop) RecordHTTPStatus(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
