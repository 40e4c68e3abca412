// Package metrics exposes Prometheus gauges/counters/histograms for the
// build-and-deploy pipeline, structured the way the teacher repo's
// internal/metrics/collector.go builds its registry, with metric names
// renamed to the shipline_ domain.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns a private Prometheus registry so each binary (Control
// Plane, Build Worker, Deploy Engine) can expose its own /metrics endpoint
// without clashing with another process's default registry.
type Collector struct {
	registry  *prometheus.Registry
	startTime time.Time

	uptimeSeconds prometheus.Gauge
	queueDepth    prometheus.Gauge
	activeBuilds  prometheus.Gauge

	buildsTotal      *prometheus.CounterVec
	deploymentsTotal *prometheus.CounterVec

	buildDuration  prometheus.Histogram
	deployDuration prometheus.Histogram
}

// NewCollector builds a Collector and registers its metrics on a fresh
// registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry:  registry,
		startTime: time.Now(),

		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shipline_uptime_seconds",
			Help: "Seconds since this process started",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shipline_queue_depth",
			Help: "Number of build jobs currently pending in the queue",
		}),
		activeBuilds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shipline_active_builds",
			Help: "Number of builds currently in the building state",
		}),
		buildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shipline_builds_total",
			Help: "Total number of builds by terminal status",
		}, []string{"status"}),
		deploymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shipline_deployments_total",
			Help: "Total number of deployment activations by outcome",
		}, []string{"status"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shipline_build_duration_seconds",
			Help:    "Duration of build operations in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		deployDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shipline_deploy_duration_seconds",
			Help:    "Duration of deployment activation in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		c.uptimeSeconds, c.queueDepth, c.activeBuilds,
		c.buildsTotal, c.deploymentsTotal,
		c.buildDuration, c.deployDuration,
	)
	return c
}

// Registry returns the collector's Prometheus registry for wiring into an
// HTTP handler via promhttp.HandlerFor.
func (c *Collector) Registry() *prometheus.Registry {
	c.uptimeSeconds.Set(time.Since(c.startTime).Seconds())
	return c.registry
}

// SetQueueDepth records the current pending queue depth.
func (c *Collector) SetQueueDepth(n float64) { c.queueDepth.Set(n) }

// SetActiveBuilds records the current number of in-flight builds.
func (c *Collector) SetActiveBuilds(n float64) { c.activeBuilds.Set(n) }

// ObserveBuildCompletion records a finished build's outcome and duration.
func (c *Collector) ObserveBuildCompletion(status string, duration time.Duration) {
	c.buildsTotal.WithLabelValues(status).Inc()
	c.buildDuration.Observe(duration.Seconds())
}

// ObserveDeployment records a deployment activation's outcome and
// duration.
func (c *Collector) ObserveDeployment(status string, duration time.Duration) {
	c.deploymentsTotal.WithLabelValues(status).Inc()
	c.deployDuration.Observe(duration.Seconds())
}
