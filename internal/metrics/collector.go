package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raaihank/phi-sentinel/internal/config"
)

// Outcome labels for operations
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeDegraded = "degraded"
)

// Collector owns the engine's Prometheus metrics on a private registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	detections        *prometheus.CounterVec
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	batchItems        *prometheus.CounterVec
	streamChunks      *prometheus.CounterVec
	auditFailures     *prometheus.CounterVec
	degradations      prometheus.Counter
}

// NewCollector registers all metrics. A nil registry creates a private one.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "phi_sentinel"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "engine"
	}

	c := &Collector{
		registry: registry,
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "detections_total",
			Help:      "Accepted detections by kind and source",
		}, []string{"kind", "source"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "operations_total",
			Help:      "Engine operations by name and outcome",
		}, []string{"operation", "outcome"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"operation"}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "batch_items_total",
			Help:      "Batch items by outcome (flagged, clean, failed)",
		}, []string{"outcome"}),
		streamChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stream_chunks_total",
			Help:      "Stream chunks scanned, by whether they were flagged",
		}, []string{"flagged"}),
		auditFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "audit_write_failures_total",
			Help:      "Failed audit writes by store",
		}, []string{"store"}),
		degradations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "entity_backend_degraded_total",
			Help:      "Detections that fell back to pattern-only",
		}),
	}

	registry.MustRegister(
		c.detections,
		c.operations,
		c.operationDuration,
		c.batchItems,
		c.streamChunks,
		c.auditFailures,
		c.degradations,
	)
	return c
}

// RecordOperation counts one engine operation and observes its latency
func (c *Collector) RecordOperation(operation, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.operations.WithLabelValues(operation, outcome).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordDetections adds per-kind counts for one source
func (c *Collector) RecordDetections(source string, kindCounts map[string]int) {
	if c == nil {
		return
	}
	for kind, n := range kindCounts {
		c.detections.WithLabelValues(kind, source).Add(float64(n))
	}
}

// RecordBatch counts item outcomes of one batch
func (c *Collector) RecordBatch(flagged, clean, failed int) {
	if c == nil {
		return
	}
	c.batchItems.WithLabelValues("flagged").Add(float64(flagged))
	c.batchItems.WithLabelValues("clean").Add(float64(clean))
	c.batchItems.WithLabelValues("failed").Add(float64(failed))
}

// RecordStream counts the chunks of one stream scan
func (c *Collector) RecordStream(chunks, flagged int) {
	if c == nil {
		return
	}
	c.streamChunks.WithLabelValues("true").Add(float64(flagged))
	c.streamChunks.WithLabelValues("false").Add(float64(chunks - flagged))
}

// RecordAuditFailure counts one failed audit write
func (c *Collector) RecordAuditFailure(store string) {
	if c == nil {
		return
	}
	c.auditFailures.WithLabelValues(store).Inc()
}

// RecordDegraded counts one pattern-only fallback
func (c *Collector) RecordDegraded() {
	if c == nil {
		return
	}
	c.degradations.Inc()
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
