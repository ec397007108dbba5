package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"estatehub/internal/seed"
	"estatehub/pkg/domain"
)

// Record outcome labels of estatehub_seed_records_total.
const (
	ResultSucceeded   = "succeeded"
	ResultFailed      = "failed"
	ResultPatched     = "patched"
	ResultPatchFailed = "patch_failed"
)

var (
	_ seed.MetricsRecorder = (*PrometheusRecorder)(nil)
	_ seed.Tracer          = (*JSONTraceTracer)(nil)
)

// PrometheusRecorder exports loader measurements on a private registry so
// repeated runs in one process never collide on the default registerer.
type PrometheusRecorder struct {
	registry *prometheus.Registry
	records  *prometheus.CounterVec
	failures *prometheus.CounterVec
	keys     *prometheus.GaugeVec
	phases   *prometheus.HistogramVec
}

// NewPrometheusRecorder constructs a recorder with its collectors registered.
func NewPrometheusRecorder() *PrometheusRecorder {
	r := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estatehub",
			Subsystem: "seed",
			Name:      "records_total",
			Help:      "Snapshot records processed, by entity type and result.",
		}, []string{"entity", "result"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estatehub",
			Subsystem: "seed",
			Name:      "failures_total",
			Help:      "Recoverable record failures, by entity type and error kind.",
		}, []string{"entity", "kind"}),
		keys: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "estatehub",
			Subsystem: "seed",
			Name:      "registry_source_keys",
			Help:      "Source keys registered for the entity type in the last run.",
		}, []string{"entity"}),
		phases: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "estatehub",
			Subsystem: "seed",
			Name:      "phase_duration_seconds",
			Help:      "Time spent per loader phase.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4m
		}, []string{"phase", "entity"}),
	}
	r.registry.MustRegister(r.records, r.failures, r.keys, r.phases)
	return r
}

// ObservePhase implements seed.MetricsRecorder.
func (r *PrometheusRecorder) ObservePhase(phase seed.Phase, entity domain.EntityType, d time.Duration) {
	r.phases.WithLabelValues(phase.String(), string(entity)).Observe(d.Seconds())
}

// RecordOutcome implements seed.MetricsRecorder.
func (r *PrometheusRecorder) RecordOutcome(o seed.LoadOutcome) {
	entity := string(o.Entity)
	r.records.WithLabelValues(entity, ResultSucceeded).Add(float64(o.Succeeded))
	r.records.WithLabelValues(entity, ResultFailed).Add(float64(o.Failed))
	if o.Patched > 0 || o.PatchFailed > 0 {
		r.records.WithLabelValues(entity, ResultPatched).Add(float64(o.Patched))
		r.records.WithLabelValues(entity, ResultPatchFailed).Add(float64(o.PatchFailed))
	}
	for kind, n := range o.ByKind {
		r.failures.WithLabelValues(entity, kind).Add(float64(n))
	}
}

// RecordRegistry implements seed.MetricsRecorder.
func (r *PrometheusRecorder) RecordRegistry(entity domain.EntityType, sourceKeys int) {
	r.keys.WithLabelValues(string(entity)).Set(float64(sourceKeys))
}

// Gatherer exposes the private registry.
func (r *PrometheusRecorder) Gatherer() prometheus.Gatherer { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// WriteToTextfile writes the current metrics for the node exporter textfile
// collector. The file is replaced atomically.
func (r *PrometheusRecorder) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}

// JSONTraceEntry represents a serialized trace span emitted by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer writes one JSON line per loader phase span and retains the
// spans for inspection. Failed spans carry the seed error kind.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer constructs a tracer that writes spans as JSON lines to the writer.
// The tracer retains all encoded spans for later inspection via Entries().
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &JSONTraceTracer{
		enc: enc,
	}
}

// Entries returns a copy of all recorded spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Start implements seed.Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, seed.TraceSpan) {
	span := &jsonTraceSpan{
		tracer:    t,
		operation: operation,
		started:   time.Now().UTC(),
	}
	return ctx, span
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	ended := time.Now().UTC()
	entry := JSONTraceEntry{
		Operation:  s.operation,
		Status:     "success",
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
		entry.Kind = seed.Classify(err).String()
	}

	s.tracer.mu.Lock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
	s.tracer.mu.Unlock()
}
