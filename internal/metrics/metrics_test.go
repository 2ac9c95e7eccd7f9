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

// findMetricFamily はGather結果から指定名のメトリクスファミリーを探す。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
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

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	if NewCollector(prometheus.NewRegistry()) == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordChatOutcome_LabelsByOutcome は結果ラベルごとにカウントされることを検証する。
func TestRecordChatOutcome_LabelsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordChatOutcome(ChatOutcomeOK)
	c.RecordChatOutcome(ChatOutcomeOK)
	c.RecordChatOutcome("INSUFFICIENT_CREDITS")

	mf := findMetricFamily(t, reg, "aira_chat_requests_total")
	got := map[string]float64{}
	for _, m := range mf.GetMetric() {
		got[labelValue(m, "outcome")] = m.GetCounter().GetValue()
	}
	if got["ok"] != 2 {
		t.Errorf("ok = %v, want 2", got["ok"])
	}
	if got["INSUFFICIENT_CREDITS"] != 1 {
		t.Errorf("INSUFFICIENT_CREDITS = %v, want 1", got["INSUFFICIENT_CREDITS"])
	}
}

func TestCounters_Increment(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCreditDebited()
	c.RecordCreditDebited()
	c.RecordCreditRefunded()
	c.RecordCreditsPurchased(100)
	c.RecordCreditsPurchased(25)
	c.RecordPendingExpired(3)

	tests := []struct {
		name string
		want float64
	}{
		{"aira_credits_debited_total", 2},
		{"aira_credits_refunded_total", 1},
		{"aira_credits_purchased_total", 125},
		{"aira_pending_checkouts_expired_total", 3},
	}
	for _, tt := range tests {
		mf := findMetricFamily(t, reg, tt.name)
		if got := mf.GetMetric()[0].GetCounter().GetValue(); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRecordProviderLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordProviderLatency("gateway", 1500*time.Millisecond)

	mf := findMetricFamily(t, reg, "aira_provider_latency_seconds")
	m := mf.GetMetric()[0]
	if labelValue(m, "provider") != "gateway" {
		t.Errorf("provider label = %q", labelValue(m, "provider"))
	}
	if m.GetHistogram().GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", m.GetHistogram().GetSampleCount())
	}
	if m.GetHistogram().GetSampleSum() != 1.5 {
		t.Errorf("sample sum = %v, want 1.5", m.GetHistogram().GetSampleSum())
	}
}

func TestRecordLogAppendFailureAndWebhookEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogAppendFailure("assistant")
	c.RecordWebhookEvent("checkout.session.completed", "applied")
	c.RecordWebhookEvent("checkout.session.completed", "duplicate")

	mf := findMetricFamily(t, reg, "aira_chat_log_append_failures_total")
	if labelValue(mf.GetMetric()[0], "role") != "assistant" {
		t.Error("role label should be assistant")
	}

	mf = findMetricFamily(t, reg, "aira_webhook_events_total")
	if len(mf.GetMetric()) != 2 {
		t.Errorf("webhook series = %d, want 2", len(mf.GetMetric()))
	}
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordChatOutcome(ChatOutcomeOK)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `aira_chat_requests_total{outcome="ok"} 1`) {
		t.Errorf("response should contain chat counter, got:\n%s", body)
	}
}

func TestNoop_ImplementsCollector(t *testing.T) {
	var c MetricsCollector = Noop{}
	c.RecordChatOutcome(ChatOutcomeOK)
	c.RecordProviderLatency("mock", time.Second)
}
