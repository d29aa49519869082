package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "litminer"

// Registry holds every collector exported on /metrics.
var Registry = prometheus.NewRegistry()

var (
	LLMRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_requests_total",
		Help:      "Completion requests sent to the LLM gateway by outcome.",
	}, []string{"outcome"})

	LLMDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "llm_request_duration_seconds",
		Help:      "Latency of LLM gateway completions.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
	})

	PubMedRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pubmed_requests_total",
		Help:      "E-utilities requests by operation and outcome.",
	}, []string{"operation", "outcome"})

	FunnelStageSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "funnel_stage_size",
		Help:      "Number of identifiers surviving each funnel stage.",
		Buckets:   []float64{0, 1, 2, 3, 5, 10, 25, 50, 100, 200},
	}, []string{"stage"})

	ExtractionRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "extraction_records_total",
		Help:      "Extracted elements by category and result (accepted, dropped, decode_failure).",
	}, []string{"category", "result"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests served by method and status code.",
	}, []string{"method", "status"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		LLMRequests,
		LLMDuration,
		PubMedRequests,
		FunnelStageSize,
		ExtractionRecords,
		HTTPRequests,
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
