// Package instrument provides observability backends for a reago.Model:
// a Prometheus observer for metrics and an OpenTelemetry observer for
// selector-trace spans. Install them with reago.WithObserver, combining
// several with reago.MultiObserver.
package instrument

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/reago-dev/reago/pkg/reago"
)

// MetricsConfig configures the Prometheus observer.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "reago").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for trial-execution duration.
	// Default: prometheus.DefBuckets.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus observer.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the trace-duration histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "reago",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// promObserver implements reago.Observer on Prometheus metrics.
type promObserver struct {
	writesTotal        *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	tracesTotal        prometheus.Counter
	memoHitsTotal      prometheus.Counter
	traceDuration      prometheus.Histogram
	dependencySetSize  prometheus.Histogram
}

// Prometheus creates a metrics observer for a model.
//
// Metrics collected:
//   - reago_cell_writes_total: counter of cell writes by key
//   - reago_notifications_total: counter of listener callbacks run, by key
//   - reago_selector_traces_total: counter of trial executions
//   - reago_selector_memo_hits_total: counter of memoized resolutions
//   - reago_trace_duration_seconds: histogram of trial-execution duration
//   - reago_dependency_set_size: histogram of inferred dependency set sizes
//
// Example:
//
//	m, err := reago.New(record, reago.WithObserver(instrument.Prometheus()))
func Prometheus(opts ...MetricsOption) reago.Observer {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &promObserver{
		writesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "cell_writes_total",
			Help:        "Total number of cell writes",
			ConstLabels: config.ConstLabels,
		}, []string{"key"}),

		notificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "notifications_total",
			Help:        "Total number of listener callbacks run on writes",
			ConstLabels: config.ConstLabels,
		}, []string{"key"}),

		tracesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "selector_traces_total",
			Help:        "Total number of selector trial executions",
			ConstLabels: config.ConstLabels,
		}),

		memoHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "selector_memo_hits_total",
			Help:        "Total number of resolutions served from the dependency memo",
			ConstLabels: config.ConstLabels,
		}),

		traceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "trace_duration_seconds",
			Help:        "Selector trial-execution duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		dependencySetSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dependency_set_size",
			Help:        "Number of keys in inferred dependency sets",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
	}
}

func (p *promObserver) CellWritten(key string) {
	p.writesTotal.WithLabelValues(key).Inc()
}

func (p *promObserver) ListenersNotified(key string, count int) {
	p.notificationsTotal.WithLabelValues(key).Add(float64(count))
}

func (p *promObserver) SelectorTraced(_ string, keys []string, d time.Duration) {
	p.tracesTotal.Inc()
	p.traceDuration.Observe(d.Seconds())
	p.dependencySetSize.Observe(float64(len(keys)))
}

func (p *promObserver) MemoHit(string) {
	p.memoHitsTotal.Inc()
}
