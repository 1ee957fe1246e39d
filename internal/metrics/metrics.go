// Package metrics exposes simulation activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coalsim/internal/sim"
)

// Collector counts simulation events and finished runs. It is safe for
// concurrent use, so one collector can observe every replicate of a batch.
type Collector struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
	lineages prometheus.Gauge
	clock    prometheus.Gauge
}

// NewCollector registers its metrics on a private registry so that several
// collectors can coexist in one process.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Simulation events applied, by kind and model.",
		}, []string{"kind", "model"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished simulation runs, by status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall clock duration of simulation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		lineages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lineages",
			Help:      "Lineages in the population of the last observed event.",
		}),
		clock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "simulation_time",
			Help:      "Simulation clock at the last observed event.",
		}),
	}
	c.registry.MustRegister(c.events, c.runs, c.duration, c.lineages, c.clock)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Observe implements sim.Observer.
func (c *Collector) Observe(e sim.EventInfo) {
	c.events.WithLabelValues(e.Kind.String(), string(e.Model)).Inc()
	c.lineages.Set(float64(e.Lineages))
	c.clock.Set(e.Time)
}

func (c *Collector) RecordRun(status sim.Status, elapsed time.Duration) {
	c.runs.WithLabelValues(status.String()).Inc()
	c.duration.Observe(elapsed.Seconds())
}

// WriteTextfile writes the current values in the node exporter textfile
// format.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
