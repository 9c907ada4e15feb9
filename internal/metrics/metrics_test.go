package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// gatherOne はレジストリから指定名のメトリクスファミリーを取得する。
func gatherOne(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestCounters_Increment は各カウンタが記録値だけ増加することを検証する。
func TestCounters_Increment(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordResearchRows(120)
	c.RecordResearchRows(30)
	c.RecordUploadParseFailure()
	c.RecordWarehouseLinksAdded(7)
	c.RecordLinksDistributed(5)
	c.RecordLinksDelivered(3)

	tests := []struct {
		name string
		want float64
	}{
		{"linkdist_research_rows_total", 150},
		{"linkdist_upload_parse_failures_total", 1},
		{"linkdist_warehouse_links_added_total", 7},
		{"linkdist_links_distributed_total", 5},
		{"linkdist_links_delivered_total", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mf := gatherOne(t, reg, tt.name)
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はステータスコードラベル別に記録されることを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(422)

	mf := gatherOne(t, reg, "linkdist_http_status_total")
	counts := map[string]float64{}
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "status_code" {
				counts[lp.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	if counts["200"] != 2 {
		t.Errorf("status 200 count = %v, want 2", counts["200"])
	}
	if counts["422"] != 1 {
		t.Errorf("status 422 count = %v, want 1", counts["422"])
	}
}

// TestRecordResearchDuration_ObservesHistogram は処理時間が記録されることを検証する。
func TestRecordResearchDuration_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordResearchDuration(150 * time.Millisecond)
	c.RecordResearchDuration(2 * time.Second)

	mf := gatherOne(t, reg, "linkdist_research_duration_seconds")
	h := mf.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample count = %d, want 2", h.GetSampleCount())
	}
	if h.GetSampleSum() < 2.1 || h.GetSampleSum() > 2.2 {
		t.Errorf("sample sum = %v, want ~2.15", h.GetSampleSum())
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat はPrometheusテキスト形式で出力されることを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordLinksDelivered(4)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	body, _ := io.ReadAll(w.Result().Body)
	if !strings.Contains(string(body), "linkdist_links_delivered_total 4") {
		t.Errorf("unexpected body:\n%s", body)
	}
}

// TestCollector_ImplementsMetricsCollectorInterface はインターフェースを満たすことを検証する。
func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	var _ MetricsCollector = (*Collector)(nil)
}

// TestMultipleCollectors_IndependentRegistries は別レジストリ同士が干渉しないことを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	_ = NewCollector(reg2)

	c1.RecordLinksDistributed(9)

	if got := gatherOne(t, reg2, "linkdist_links_distributed_total").GetMetric()[0].GetCounter().GetValue(); got != 0 {
		t.Errorf("reg2 value = %v, want 0", got)
	}
}
