// Package metrics exposes a Prometheus registry over the operations the
// Dispatcher reports and a background sampler of free disk space under the
// blob store's base path.
package metrics

import (
	"net/http"
	"time"

	"github.com/mehdy/anbar/internal/classify"
	"github.com/mehdy/anbar/internal/dispatch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/sirupsen/logrus"
)

// Registry wraps the metrics anbar tracks: per-operation counters and
// latency, and a disk-space gauge sampled periodically.
type Registry struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationErrors   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	diskFreeBytes     prometheus.Gauge
	diskUsedPercent   prometheus.Gauge
}

// New builds a Registry with its own prometheus.Registry, so anbar's
// metrics never collide with the default global registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		registry: reg,
		operationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "anbar",
			Name:      "operations_total",
			Help:      "Total number of dispatched operations by kind.",
		}, []string{"operation"}),
		operationErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "anbar",
			Name:      "operation_errors_total",
			Help:      "Total number of dispatched operations that returned an error, by kind.",
		}, []string{"operation"}),
		operationDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "anbar",
			Name:      "operation_duration_seconds",
			Help:      "Dispatch latency by operation kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		diskFreeBytes: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "anbar",
			Name:      "disk_free_bytes",
			Help:      "Free bytes on the filesystem backing the blob store.",
		}),
		diskUsedPercent: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "anbar",
			Name:      "disk_used_percent",
			Help:      "Percentage of disk space in use on the filesystem backing the blob store.",
		}),
	}
	return m
}

// Hooks adapts the Registry into dispatch.Hooks so the Dispatcher can
// report every call without importing this package's internals.
func (m *Registry) Hooks() dispatch.Hooks {
	return dispatch.Hooks{OnCall: m.observe}
}

func (m *Registry) observe(record dispatch.CallRecord) {
	label := operationLabel(record.Operation)
	m.operationsTotal.WithLabelValues(label).Inc()
	m.operationDuration.WithLabelValues(label).Observe(record.Duration.Seconds())
	if record.Err != nil {
		m.operationErrors.WithLabelValues(label).Inc()
	}
}

func operationLabel(kind classify.Kind) string {
	switch kind {
	case classify.KindListBuckets:
		return "list_buckets"
	case classify.KindListObjects:
		return "list_objects"
	case classify.KindGetObject:
		return "get_object"
	case classify.KindCreateBucket:
		return "create_bucket"
	case classify.KindPutObject:
		return "put_object"
	case classify.KindDeleteBucket:
		return "delete_bucket"
	case classify.KindDeleteObject:
		return "delete_object"
	default:
		return "unknown"
	}
}

// Handler returns the /metrics HTTP handler.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SampleDisk polls disk.Usage(path) every interval, updating the disk
// gauges, until stop is closed.
func (m *Registry) SampleDisk(path string, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sample := func() {
		usage, err := disk.Usage(path)
		if err != nil {
			logrus.WithError(err).Warn("failed to sample disk usage")
			return
		}
		m.diskFreeBytes.Set(float64(usage.Free))
		m.diskUsedPercent.Set(usage.UsedPercent)
	}

	sample()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			sample()
		}
	}
}
