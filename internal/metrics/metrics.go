// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ChatOutcomeOK はチャットが成功した場合の結果ラベル。失敗時はエラーコードをラベルにする。
const ChatOutcomeOK = "ok"

// MetricsCollector はメトリクス収集のインターフェース。
// チャットゲートウェイ、決済webhook、ワーカーから利用する。
type MetricsCollector interface {
	RecordChatOutcome(outcome string)
	RecordCreditDebited()
	RecordCreditRefunded()
	RecordProviderLatency(provider string, duration time.Duration)
	RecordLogAppendFailure(role string)
	RecordWebhookEvent(eventType, outcome string)
	RecordCreditsPurchased(credits int)
	RecordPendingExpired(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	chatOutcomes      *prometheus.CounterVec
	creditsDebited    prometheus.Counter
	creditsRefunded   prometheus.Counter
	providerLatency   *prometheus.HistogramVec
	logAppendFailures *prometheus.CounterVec
	webhookEvents     *prometheus.CounterVec
	creditsPurchased  prometheus.Counter
	pendingExpired    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		chatOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aira_chat_requests_total",
			Help: "チャットリクエストの結果別の合計数",
		}, []string{"outcome"}),
		creditsDebited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aira_credits_debited_total",
			Help: "チャットで消費されたクレジットの合計数",
		}),
		creditsRefunded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aira_credits_refunded_total",
			Help: "プロバイダー失敗時に返却されたクレジットの合計数",
		}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aira_provider_latency_seconds",
			Help:    "補完プロバイダー呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"provider"}),
		logAppendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aira_chat_log_append_failures_total",
			Help: "チャットログ追記失敗の合計数",
		}, []string{"role"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aira_webhook_events_total",
			Help: "Stripe webhookイベントの種別・結果別の合計数",
		}, []string{"event_type", "outcome"}),
		creditsPurchased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aira_credits_purchased_total",
			Help: "購入により付与されたクレジットの合計数",
		}),
		pendingExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aira_pending_checkouts_expired_total",
			Help: "期限切れにしたpending購入トランザクションの合計数",
		}),
	}

	reg.MustRegister(
		c.chatOutcomes,
		c.creditsDebited,
		c.creditsRefunded,
		c.providerLatency,
		c.logAppendFailures,
		c.webhookEvents,
		c.creditsPurchased,
		c.pendingExpired,
	)

	return c
}

// RecordChatOutcome はチャットリクエストの結果を記録する。
func (c *Collector) RecordChatOutcome(outcome string) {
	c.chatOutcomes.WithLabelValues(outcome).Inc()
}

// RecordCreditDebited はクレジット消費を記録する。
func (c *Collector) RecordCreditDebited() {
	c.creditsDebited.Inc()
}

// RecordCreditRefunded はクレジット返却を記録する。
func (c *Collector) RecordCreditRefunded() {
	c.creditsRefunded.Inc()
}

// RecordProviderLatency は補完プロバイダー呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(provider string, duration time.Duration) {
	c.providerLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordLogAppendFailure はチャットログ追記失敗を記録する。
func (c *Collector) RecordLogAppendFailure(role string) {
	c.logAppendFailures.WithLabelValues(role).Inc()
}

// RecordWebhookEvent はwebhookイベントの処理結果を記録する。
func (c *Collector) RecordWebhookEvent(eventType, outcome string) {
	c.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordCreditsPurchased は購入で付与したクレジット数を記録する。
func (c *Collector) RecordCreditsPurchased(credits int) {
	c.creditsPurchased.Add(float64(credits))
}

// RecordPendingExpired は期限切れにしたpendingトランザクション数を記録する。
func (c *Collector) RecordPendingExpired(count int64) {
	c.pendingExpired.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Noop はメトリクスを記録しないMetricsCollector。テストやメトリクス未設定時に使用する。
type Noop struct{}

func (Noop) RecordChatOutcome(string)                    {}
func (Noop) RecordCreditDebited()                        {}
func (Noop) RecordCreditRefunded()                       {}
func (Noop) RecordProviderLatency(string, time.Duration) {}
func (Noop) RecordLogAppendFailure(string)               {}
func (Noop) RecordWebhookEvent(string, string)           {}
func (Noop) RecordCreditsPurchased(int)                  {}
func (Noop) RecordPendingExpired(int64)                  {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Noop{}
)
