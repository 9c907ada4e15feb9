// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とHTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordResearchRows(count int)
	RecordResearchDuration(duration time.Duration)
	RecordUploadParseFailure()
	RecordWarehouseLinksAdded(count int)
	RecordLinksDistributed(count int)
	RecordLinksDelivered(count int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	researchRows     prometheus.Counter
	researchDuration prometheus.Histogram
	parseFail        prometheus.Counter
	linksAdded       prometheus.Counter
	linksDistributed prometheus.Counter
	linksDelivered   prometheus.Counter
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		researchRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkdist_research_rows_total",
			Help: "リサーチで読み込んだ行の合計数",
		}),
		researchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkdist_research_duration_seconds",
			Help:    "リサーチ（解析から倉庫保存まで）の処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		parseFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkdist_upload_parse_failures_total",
			Help: "アップロードファイルの解析失敗の合計数",
		}),
		linksAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkdist_warehouse_links_added_total",
			Help: "倉庫に追加されたリンクの合計数",
		}),
		linksDistributed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkdist_links_distributed_total",
			Help: "倉庫からバッチへ分配されたリンクの合計数",
		}),
		linksDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkdist_links_delivered_total",
			Help: "端末へ送信されたリンクの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkdist_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.researchRows,
		c.researchDuration,
		c.parseFail,
		c.linksAdded,
		c.linksDistributed,
		c.linksDelivered,
		c.httpStatus,
	)

	return c
}

// RecordResearchRows はリサーチで読み込んだ行数を記録する。
func (c *Collector) RecordResearchRows(count int) {
	c.researchRows.Add(float64(count))
}

// RecordResearchDuration はリサーチの処理時間を記録する。
func (c *Collector) RecordResearchDuration(duration time.Duration) {
	c.researchDuration.Observe(duration.Seconds())
}

// RecordUploadParseFailure は解析失敗を記録する。
func (c *Collector) RecordUploadParseFailure() {
	c.parseFail.Inc()
}

// RecordWarehouseLinksAdded は倉庫に追加されたリンク数を記録する。
func (c *Collector) RecordWarehouseLinksAdded(count int) {
	c.linksAdded.Add(float64(count))
}

// RecordLinksDistributed はバッチへ分配されたリンク数を記録する。
func (c *Collector) RecordLinksDistributed(count int) {
	c.linksDistributed.Add(float64(count))
}

// RecordLinksDelivered は端末へ送信されたリンク数を記録する。
func (c *Collector) RecordLinksDelivered(count int) {
	c.linksDelivered.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// Acceptヘッダーで要求された場合はOpenMetrics形式で応答する。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
