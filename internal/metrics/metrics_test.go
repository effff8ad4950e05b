package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveLLM(t *testing.T) {
	m := New()
	m.ObserveLLM("chat", 2*time.Second, 100, 40, nil)
	m.ObserveLLM("chat", time.Second, 10, 0, errors.New("timeout"))

	if got := testutil.ToFloat64(m.llmCalls.WithLabelValues("chat", "ok")); got != 1 {
		t.Fatalf("ok calls = %v", got)
	}
	if got := testutil.ToFloat64(m.llmCalls.WithLabelValues("chat", "error")); got != 1 {
		t.Fatalf("error calls = %v", got)
	}
	if got := testutil.ToFloat64(m.llmTokens.WithLabelValues("chat", "input")); got != 110 {
		t.Fatalf("input tokens = %v", got)
	}
}

func TestObserveProfitLabelsCostSource(t *testing.T) {
	m := New()
	m.ObserveProfit("maize", true)
	m.ObserveProfit("maize", false)
	m.ObserveProfit("maize", false)

	if got := testutil.ToFloat64(m.profitRuns.WithLabelValues("maize", "custom")); got != 2 {
		t.Fatalf("custom = %v", got)
	}
	if got := testutil.ToFloat64(m.profitRuns.WithLabelValues("maize", "default")); got != 1 {
		t.Fatalf("default = %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveRequest("/api/crop/list", "GET", 200, 5*time.Millisecond)
	m.ObserveRequest("", "GET", 404, time.Millisecond)
	m.ObservePrediction("Nakuru")
	m.ObserveEnvDataError()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`mkulima_http_requests_total{method="GET",route="/api/crop/list",status="200"} 1`,
		`mkulima_http_requests_total{method="GET",route="unmatched",status="404"} 1`,
		`mkulima_yield_predictions_total{county="Nakuru"} 1`,
		`mkulima_envdata_errors_total 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
