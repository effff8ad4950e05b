// Package metrics exposes Prometheus counters for requests, predictions and
// language model calls.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	predictions   *prometheus.CounterVec
	profitRuns    *prometheus.CounterVec
	llmCalls      *prometheus.CounterVec
	llmTokens     *prometheus.CounterVec
	llmDuration   *prometheus.HistogramVec
	envDataErrors prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mkulima_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mkulima_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mkulima_yield_predictions_total",
			Help: "Yield predictions served, by county.",
		}, []string{"county"}),
		profitRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mkulima_profit_analyses_total",
			Help: "Profit analyses computed, by crop and cost source.",
		}, []string{"crop", "costs"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mkulima_llm_calls_total",
			Help: "Language model calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mkulima_llm_tokens_total",
			Help: "Language model tokens by operation and direction.",
		}, []string{"op", "direction"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mkulima_llm_call_duration_seconds",
			Help:    "Language model call latency by operation.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"op"}),
		envDataErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mkulima_envdata_errors_total",
			Help: "Environmental data lookups that failed for reasons other than an unknown county.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.predictions, m.profitRuns,
		m.llmCalls, m.llmTokens, m.llmDuration, m.envDataErrors,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObservePrediction(county string) {
	m.predictions.WithLabelValues(county).Inc()
}

func (m *Metrics) ObserveProfit(crop string, usedDefaults bool) {
	costs := "custom"
	if usedDefaults {
		costs = "default"
	}
	m.profitRuns.WithLabelValues(crop, costs).Inc()
}

func (m *Metrics) ObserveLLM(op string, elapsed time.Duration, inputTokens, outputTokens int64, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.llmCalls.WithLabelValues(op, outcome).Inc()
	m.llmDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	m.llmTokens.WithLabelValues(op, "input").Add(float64(inputTokens))
	m.llmTokens.WithLabelValues(op, "output").Add(float64(outputTokens))
}

func (m *Metrics) ObserveEnvDataError() {
	m.envDataErrors.Inc()
}
