package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for dataflow components.
type Registry struct {
	// Block Metrics
	ItemsPosted        *prometheus.CounterVec
	ItemsDeclined      *prometheus.CounterVec
	ItemsProcessed     *prometheus.CounterVec
	ItemsFailed        *prometheus.CounterVec
	ItemsDropped       *prometheus.CounterVec
	ItemsDiscarded     *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	QueueDepth         *prometheus.GaugeVec
	ActiveWorkers      *prometheus.GaugeVec
	BlockState         *prometheus.GaugeVec
	BackpressureEvents *prometheus.CounterVec

	// Link Metrics
	LinkDeliveries *prometheus.CounterVec

	// Throttle Metrics
	ThrottleWaitDuration *prometheus.HistogramVec
	ThrottleDenied       *prometheus.CounterVec

	// Concurrency Metrics
	ConcurrencyInUse        *prometheus.GaugeVec
	ConcurrencyWaitDuration *prometheus.HistogramVec

	// Feed Metrics
	FeedTicks  *prometheus.CounterVec
	FeedErrors *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by dataflow components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithConfig(Config{Enabled: true, Registry: reg})
}

// NewRegistryWithConfig creates a registry honoring the namespace and
// constant labels in config. A nil Registry uses prometheus.DefaultRegisterer.
func NewRegistryWithConfig(config Config) *Registry {
	reg := config.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if len(config.Labels) > 0 {
		reg = prometheus.WrapRegistererWith(config.Labels, reg)
	}
	ns := config.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}

	factory := promauto.With(reg)
	blockLabels := []string{"block"}

	return &Registry{
		ItemsPosted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "block",
				Name:      "items_posted_total",
				Help:      "Total number of items accepted into a block's input queue",
			},
			blockLabels,
		),

		ItemsDeclined: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "block",
				Name:      "items_declined_total",
				Help:      "Total number of items a block refused because it was full or not accepting",
			},
			blockLabels,
		),

		ItemsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "block",
				Name:      "items_processed_total",
				Help:      "Total number of items the stage function handled successfully",
			},
			blockLabels,
		),

		ItemsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "block",
				Name:      "items_failed_total",
				Help:      "Total number of items whose stage function returned an error or panicked",
			},
			blockLabels,
		),

		ItemsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "block",
				Name:      "items_dropped_total",
				Help:      "Total number of output items no link accepted",
			},
			blockLabels,
		),

		ItemsDiscarded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "block",
				Name:      "items_discarded_total",
				Help:      "Total number of buffered input items abandoned when a block faulted",
			},
			blockLabels,
		),

		ProcessingDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "block",
				Name:      "processing_duration_seconds",
				Help:      "Time spent in the stage function per item",
				Buckets:   prometheus.DefBuckets,
			},
			blockLabels,
		),

		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "block",
				Name:      "queue_depth",
				Help:      "Number of items buffered in a block's input queue",
			},
			blockLabels,
		),

		ActiveWorkers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "block",
				Name:      "active_workers",
				Help:      "Number of workers currently running the stage function",
			},
			blockLabels,
		),

		BlockState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "block",
				Name:      "state",
				Help:      "Lifecycle state: 0 accepting, 1 completing, 2 completed, 3 faulted",
			},
			blockLabels,
		),

		BackpressureEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "backpressure",
				Name:      "events_total",
				Help:      "Total number of times a producer had to wait for space in a block",
			},
			blockLabels,
		),

		LinkDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "link",
				Name:      "deliveries_total",
				Help:      "Total number of items delivered across a link",
			},
			[]string{"source", "target"},
		),

		ThrottleWaitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "throttle",
				Name:      "wait_duration_seconds",
				Help:      "Time a worker spent waiting for throttle approval",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"throttle_type", "throttle_name"},
		),

		ThrottleDenied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "throttle",
				Name:      "denied_total",
				Help:      "Total number of throttle requests that had to be delayed",
			},
			[]string{"throttle_type", "throttle_name"},
		),

		ConcurrencyInUse: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "concurrency",
				Name:      "in_use",
				Help:      "Number of slots currently held in a shared concurrency limiter",
			},
			[]string{"limiter"},
		),

		ConcurrencyWaitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "concurrency",
				Name:      "wait_duration_seconds",
				Help:      "Time spent waiting for a concurrency slot",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"limiter"},
		),

		FeedTicks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "feed",
				Name:      "ticks_total",
				Help:      "Total number of scheduled feed activations",
			},
			[]string{"feed"},
		),

		FeedErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "feed",
				Name:      "errors_total",
				Help:      "Total number of feed activations whose producer failed",
			},
			[]string{"feed"},
		),
	}
}
