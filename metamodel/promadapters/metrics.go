// Package promadapters implements metamodel.ContextualMetricsCollector on the Prometheus client.
//
// Metric vectors are registered lazily on first use, with the label names of that first call.
// Later calls with a different label set are fitted to it: missing labels are recorded as ""
// and unknown labels are dropped. The metamodel packages use one label set per metric name.
package promadapters

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/metamodel-go/metamodel"
)

const exemplarTraceID = "trace_id"

var (
	// ErrNilRegistry is returned when NewMetricsCollector receives a nil registry.
	ErrNilRegistry = errors.New("prometheus registry must not be nil")

	// ErrInvalidBuckets is returned for empty or unsorted histogram buckets.
	ErrInvalidBuckets = errors.New("histogram buckets must be non-empty and strictly increasing")
)

// Option configures a MetricsCollector.
type Option func(*MetricsCollector) error

// WithBuckets sets the histogram buckets, in seconds, for every duration metric.
func WithBuckets(buckets ...float64) Option {
	return func(m *MetricsCollector) error {
		if len(buckets) == 0 {
			return ErrInvalidBuckets
		}

		for i := 1; i < len(buckets); i++ {
			if buckets[i] <= buckets[i-1] {
				return ErrInvalidBuckets
			}
		}

		m.buckets = slices.Clone(buckets)

		return nil
	}
}

// WithConstLabels adds labels attached to every metric, e.g. the model name of a CLI run.
func WithConstLabels(labels map[string]string) Option {
	return func(m *MetricsCollector) error {
		m.constLabels = prometheus.Labels(labels)
		return nil
	}
}

// MetricsCollector maps durations to histograms, counters to counters and values to gauges.
type MetricsCollector struct {
	registry    *prometheus.Registry
	buckets     []float64
	constLabels prometheus.Labels

	mu         sync.Mutex
	histograms map[string]*prometheus.HistogramVec
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	labelNames map[string][]string
}

// NewMetricsCollector creates a collector registering its metrics in registry.
func NewMetricsCollector(registry *prometheus.Registry, options ...Option) (*MetricsCollector, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}

	m := &MetricsCollector{
		registry:   registry,
		buckets:    prometheus.DefBuckets,
		histograms: make(map[string]*prometheus.HistogramVec),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		labelNames: make(map[string][]string),
	}

	for _, option := range options {
		if err := option(m); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *MetricsCollector) RecordDuration(name string, duration time.Duration, labels map[string]string) {
	m.RecordDurationContext(context.Background(), name, duration, labels)
}

// RecordDurationContext observes the duration in seconds, with the trace ID as exemplar when sampled.
func (m *MetricsCollector) RecordDurationContext(ctx context.Context, name string, duration time.Duration, labels map[string]string) {
	histogram, fitted := m.histogram(name, labels)
	if histogram == nil {
		return
	}

	observer, err := histogram.GetMetricWith(fitted)
	if err != nil {
		return
	}

	if exemplar := exemplarFrom(ctx); exemplar != nil {
		if eo, ok := observer.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(duration.Seconds(), exemplar)
			return
		}
	}

	observer.Observe(duration.Seconds())
}

func (m *MetricsCollector) IncrementCounter(name string, labels map[string]string) {
	m.IncrementCounterContext(context.Background(), name, labels)
}

// IncrementCounterContext adds one, with the trace ID as exemplar when sampled.
func (m *MetricsCollector) IncrementCounterContext(ctx context.Context, name string, labels map[string]string) {
	counters, fitted := m.counter(name, labels)
	if counters == nil {
		return
	}

	counter, err := counters.GetMetricWith(fitted)
	if err != nil {
		return
	}

	if exemplar := exemplarFrom(ctx); exemplar != nil {
		if ea, ok := counter.(prometheus.ExemplarAdder); ok {
			ea.AddWithExemplar(1, exemplar)
			return
		}
	}

	counter.Inc()
}

func (m *MetricsCollector) RecordValue(name string, value float64, labels map[string]string) {
	m.RecordValueContext(context.Background(), name, value, labels)
}

// RecordValueContext sets the gauge; gauges carry no exemplars.
func (m *MetricsCollector) RecordValueContext(_ context.Context, name string, value float64, labels map[string]string) {
	gauges, fitted := m.gauge(name, labels)
	if gauges == nil {
		return
	}

	if gauge, err := gauges.GetMetricWith(fitted); err == nil {
		gauge.Set(value)
	}
}

func (m *MetricsCollector) histogram(name string, labels map[string]string) (*prometheus.HistogramVec, prometheus.Labels) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.histograms[name]
	if !ok {
		created := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        name,
			Help:        help(name),
			Buckets:     m.buckets,
			ConstLabels: m.constLabels,
		}, m.rememberLabelNames(name, labels))

		registered, err := register(m.registry, created)
		if err != nil {
			return nil, nil
		}

		h = registered
		m.histograms[name] = h
	}

	return h, m.fit(name, labels)
}

func (m *MetricsCollector) counter(name string, labels map[string]string) (*prometheus.CounterVec, prometheus.Labels) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[name]
	if !ok {
		created := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        name,
			Help:        help(name),
			ConstLabels: m.constLabels,
		}, m.rememberLabelNames(name, labels))

		registered, err := register(m.registry, created)
		if err != nil {
			return nil, nil
		}

		c = registered
		m.counters[name] = c
	}

	return c, m.fit(name, labels)
}

func (m *MetricsCollector) gauge(name string, labels map[string]string) (*prometheus.GaugeVec, prometheus.Labels) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.gauges[name]
	if !ok {
		created := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        name,
			Help:        help(name),
			ConstLabels: m.constLabels,
		}, m.rememberLabelNames(name, labels))

		registered, err := register(m.registry, created)
		if err != nil {
			return nil, nil
		}

		g = registered
		m.gauges[name] = g
	}

	return g, m.fit(name, labels)
}

func (m *MetricsCollector) rememberLabelNames(name string, labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)

	m.labelNames[name] = names

	return names
}

// fit shapes labels to the label names the metric was registered with.
func (m *MetricsCollector) fit(name string, labels map[string]string) prometheus.Labels {
	fitted := make(prometheus.Labels, len(m.labelNames[name]))
	for _, k := range m.labelNames[name] {
		fitted[k] = labels[k]
	}

	return fitted
}

// register adopts an identical collector that is already registered, e.g. by a second MetricsCollector.
func register[C prometheus.Collector](registry *prometheus.Registry, c C) (C, error) {
	err := registry.Register(c)
	if err == nil {
		return c, nil
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing, nil
		}
	}

	var zero C

	return zero, err
}

func exemplarFrom(ctx context.Context) prometheus.Labels {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsSampled() {
		return nil
	}

	return prometheus.Labels{exemplarTraceID: sc.TraceID().String()}
}

func help(name string) string {
	return "MetaModel metric " + name
}

var _ metamodel.ContextualMetricsCollector = (*MetricsCollector)(nil)
