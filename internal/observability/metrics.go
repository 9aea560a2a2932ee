package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storm_vtec"

// Metrics holds the Prometheus counters, histograms, and gauges for the VTEC
// decoder service.
type Metrics struct {
	ProductsConsumed prometheus.Counter
	MessagesProduced prometheus.Counter
	ProductErrors    prometheus.Counter
	PipelineRunning  prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Decode and ingest metrics.
	SegmentsRejected prometheus.Counter
	RecordsDecoded   prometheus.Counter
	RecordsPurged    prometheus.Counter
	StoreChanges     *prometheus.CounterVec // labels: action={NEW,CON,EXT,...}
	Diagnostics      *prometheus.CounterVec // labels: kind

	// Localization metrics.
	ConfigCache *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		ProductsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "products_consumed_total",
			Help:      help("Total raw products read from the source topic."),
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      help("Total change summaries and notifications written to the sink topic."),
		}),
		ProductErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "product_errors_total",
			Help:      help("Total products that could not be decoded or ingested."),
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 when the pipeline is active, 0 when shut down."),
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      help("Number of products per batch extracted from Kafka."),
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      help("Duration of a complete batch decode-ingest-publish cycle."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		SegmentsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_rejected_total",
			Help:      help("Product segments skipped as malformed."),
		}),
		RecordsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_decoded_total",
			Help:      help("VTEC records decoded after office filtering."),
		}),
		RecordsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_purged_total",
			Help:      help("VTEC records squeezed out of the store."),
		}),
		StoreChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_changes_total",
			Help:      help("Records written to the VTEC store by action code."),
		}, []string{"action"}),
		Diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      help("Tolerated data problems by kind."),
		}, []string{"kind"}),
		ConfigCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_cache_total",
			Help:      help("Localization composition cache lookups by result."),
		}, []string{"result"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ProductsConsumed,
		m.MessagesProduced,
		m.ProductErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.SegmentsRejected,
		m.RecordsDecoded,
		m.RecordsPurged,
		m.StoreChanges,
		m.Diagnostics,
		m.ConfigCache,
	}
}

// ObserveCache counts a localization cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ConfigCache.WithLabelValues(result).Inc()
}
