package observability

import (
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/navincodesalot/moonshot/internal/platform/logger"
)

const namespace = "moonshot"

type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	uploads        *prometheus.CounterVec
	uploadBytes    prometheus.Histogram
	pipelineRuns   *prometheus.CounterVec
	pipelineTime   *prometheus.HistogramVec
	pipelineActive prometheus.Gauge
	stageTime      *prometheus.HistogramVec
	schemaFailures *prometheus.CounterVec

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec

	events *prometheus.CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

// Current returns the process-wide metrics, or nil when disabled.
func Current() *Metrics {
	return instance
}

// Init builds the process-wide metrics once when METRICS_ENABLED is set.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("Metrics enabled")
		}
	})
	return instance
}

// New builds metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "api", Name: "requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "api", Name: "request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 120, 600},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "api", Name: "inflight_requests",
			Help: "In-flight API requests.",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "intake", Name: "uploads_total",
			Help: "Video uploads by result.",
		}, []string{"result"}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "intake", Name: "upload_size_bytes",
			Help:    "Size of accepted video uploads.",
			Buckets: prometheus.ExponentialBuckets(1<<20, 2, 10),
		}),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "runs_total",
			Help: "Analysis runs by result.",
		}, []string{"result"}),
		pipelineTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "run_duration_seconds",
			Help:    "End-to-end analysis run time.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		pipelineActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "runs_in_flight",
			Help: "Analysis runs currently executing in this process.",
		}),
		stageTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "stage_duration_seconds",
			Help:    "Duration of each pipeline stage by outcome.",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"stage", "status"}),
		schemaFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "schema_failures_total",
			Help: "Structured outputs rejected by validation, by report kind.",
		}, []string{"kind"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "llm", Name: "requests_total",
			Help: "LLM requests by model/endpoint/status.",
		}, []string{"model", "endpoint", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "llm", Name: "request_duration_seconds",
			Help:    "LLM request latency.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 60, 120, 300},
		}, []string{"model", "endpoint", "status"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "llm", Name: "tokens_total",
			Help: "LLM tokens by model/direction.",
		}, []string{"model", "direction"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "events", Name: "published_total",
			Help: "Report status events by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.uploads, m.uploadBytes,
		m.pipelineRuns, m.pipelineTime, m.pipelineActive, m.stageTime, m.schemaFailures,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.events,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) IncUpload(result string, sizeBytes int64) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
	if result == "ok" && sizeBytes > 0 {
		m.uploadBytes.Observe(float64(sizeBytes))
	}
}

// PipelineStarted marks a run as executing; call the returned func with the outcome.
func (m *Metrics) PipelineStarted() func(result string) {
	if m == nil {
		return func(string) {}
	}
	start := time.Now()
	m.pipelineActive.Inc()
	return func(result string) {
		m.pipelineActive.Dec()
		m.pipelineRuns.WithLabelValues(result).Inc()
		m.pipelineTime.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ObserveStage(stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageTime.WithLabelValues(stage, status).Observe(dur.Seconds())
}

func (m *Metrics) IncSchemaFailure(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.schemaFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = "unknown"
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.llmRequests.WithLabelValues(model, endpoint, status).Inc()
	if dur > 0 {
		m.llmLatency.WithLabelValues(model, endpoint, status).Observe(dur.Seconds())
	}
	if inputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

func (m *Metrics) IncEvent(result string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(result).Inc()
}
