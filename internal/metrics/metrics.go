// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 診断ペイロードの取得元
const (
	SourceCache   = "cache"
	SourceHistory = "history"
	SourceEngine  = "engine"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 分析パイプライン、HTTPミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordAnalysis(source string)
	RecordEngineLatency(duration time.Duration)
	RecordEngineFailure()
	RecordStorageFailure()
	RecordNotificationFailure()
	RecordHTTPStatus(statusCode int)
	RecordAnalysesPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	analyses       *prometheus.CounterVec
	engineLatency  prometheus.Histogram
	engineFail     prometheus.Counter
	storageFail    prometheus.Counter
	notifyFail     prometheus.Counter
	httpStatus     *prometheus.CounterVec
	analysesPurged prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revoai_analyses_total",
			Help: "診断ペイロードの取得元別の症状分析数",
		}, []string{"source"}),
		engineLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "revoai_engine_latency_seconds",
			Help:    "診断エンジン呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		engineFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "revoai_engine_fail_total",
			Help: "診断エンジン呼び出し失敗の合計数",
		}),
		storageFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "revoai_storage_fail_total",
			Help: "分析結果の保存失敗の合計数",
		}),
		notifyFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "revoai_notification_fail_total",
			Help: "通知メール送信失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revoai_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		analysesPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "revoai_analyses_purged_total",
			Help: "保存期間切れで削除された分析の合計数",
		}),
	}

	reg.MustRegister(
		c.analyses,
		c.engineLatency,
		c.engineFail,
		c.storageFail,
		c.notifyFail,
		c.httpStatus,
		c.analysesPurged,
	)

	return c
}

// RecordAnalysis は完了した分析を取得元ごとに記録する。
func (c *Collector) RecordAnalysis(source string) {
	c.analyses.WithLabelValues(source).Inc()
}

// RecordEngineLatency は診断エンジン呼び出しのレイテンシを記録する。
func (c *Collector) RecordEngineLatency(duration time.Duration) {
	c.engineLatency.Observe(duration.Seconds())
}

// RecordEngineFailure は診断エンジン呼び出しの失敗を記録する。
func (c *Collector) RecordEngineFailure() {
	c.engineFail.Inc()
}

// RecordStorageFailure は分析結果の保存失敗を記録する。
func (c *Collector) RecordStorageFailure() {
	c.storageFail.Inc()
}

// RecordNotificationFailure は通知送信の失敗を記録する。
func (c *Collector) RecordNotificationFailure() {
	c.notifyFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordAnalysesPurged は削除された分析数を記録する。
func (c *Collector) RecordAnalysesPurged(count int64) {
	c.analysesPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// ワーカーコンテナのヘルスチェック用に/healthも応答する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordAnalysis(string)             {}
func (Nop) RecordEngineLatency(time.Duration) {}
func (Nop) RecordEngineFailure()              {}
func (Nop) RecordStorageFailure()             {}
func (Nop) RecordNotificationFailure()        {}
func (Nop) RecordHTTPStatus(int)              {}
func (Nop) RecordAnalysesPurged(int64)        {}
