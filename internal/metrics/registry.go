// Package metrics exposes the agent's Prometheus instrumentation, following
// the teacher's pkg/metrics registry-per-concern pattern.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "siemagent"

// Registry holds every metric the pipeline updates. Counters are safe for
// concurrent use from any goroutine (prometheus client types already wrap
// atomics internally); callers update the exported fields directly.
//
// Unlike the teacher's Handler(), which serves prometheus.DefaultGatherer,
// Registry registers against its own private *prometheus.Registry. A
// process only ever builds one Registry, but construction happens inside
// Agent.New, which tests build repeatedly in the same binary — a shared
// global registerer would panic on the second construction with a
// duplicate-metric registration error.
type Registry struct {
	reg *prometheus.Registry

	Collected         prometheus.Counter
	Forwarded         prometheus.Counter
	Cached            prometheus.Counter
	Filtered          prometheus.Counter
	DroppedByRetry    prometheus.Counter
	DroppedByAge      prometheus.Counter
	DroppedByCapacity prometheus.Counter

	QueueSize   prometheus.Gauge
	Connected   prometheus.Gauge
	CPUPercent  prometheus.Gauge
	MemoryBytes prometheus.Gauge
	DiskBytes   prometheus.Gauge

	ForwardDuration *prometheus.HistogramVec
	SourceEvents    *prometheus.CounterVec
}

// NewRegistry builds a Registry backed by its own prometheus.Registry,
// registering every metric via promauto.With, matching the teacher's
// promauto-based pkg/metrics/prometheus.go construction style.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		Collected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_collected_total",
			Help: "Total events collected from all source runners.",
		}),
		Forwarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_forwarded_total",
			Help: "Total events successfully forwarded to the remote collector.",
		}),
		Cached: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_cached_total",
			Help: "Total events enqueued into the durable queue.",
		}),
		Filtered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_filtered_total",
			Help: "Total events dropped by source-level filtering rules.",
		}),
		DroppedByRetry: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_dropped_retry_total",
			Help: "Total events evicted from the queue after exceeding maxRetries.",
		}),
		DroppedByAge: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_dropped_age_total",
			Help: "Total events evicted from the queue for exceeding the retention window.",
		}),
		DroppedByCapacity: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_dropped_capacity_total",
			Help: "Total events dropped because the queue was at capacity.",
		}),
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_size",
			Help: "Current number of entries in the durable queue.",
		}),
		Connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connected",
			Help: "1 if the connectivity supervisor reports CONNECTED, else 0.",
		}),
		CPUPercent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "process_cpu_percent",
			Help: "Sampled process CPU utilization percentage.",
		}),
		MemoryBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "process_memory_bytes",
			Help: "Sampled process resident set size in bytes.",
		}),
		DiskBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "working_dir_disk_bytes",
			Help: "On-disk footprint of the agent's working directory.",
		}),
		ForwardDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "forward_duration_seconds",
			Help:    "Latency of forwarder HTTP calls by operation and outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		SourceEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "source_events_total",
			Help: "Events emitted per source runner, by source name and type.",
		}, []string{"source", "type"}),
	}
}

// Handler serves this Registry's metrics in the Prometheus exposition
// format, for mounting at the admin surface's /metrics route.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
