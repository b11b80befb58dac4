package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry            *prometheus.Registry
	rendersTotal        *prometheus.CounterVec
	renderDuration      *prometheus.HistogramVec
	activeRenders       prometheus.Gauge
	pixelsRenderedTotal prometheus.Counter
	processedBytesTotal prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		rendersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snapbooth_worker_renders_total",
			Help: "Total render jobs by filter and final status.",
		}, []string{"filter", "status"}),
		renderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "snapbooth_worker_render_duration_seconds",
			Help:    "Total processing duration for each render job.",
			Buckets: prometheus.DefBuckets,
		}, []string{"filter", "status"}),
		activeRenders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "snapbooth_worker_active_renders",
			Help: "Current number of render jobs being processed.",
		}),
		pixelsRenderedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snapbooth_worker_pixels_rendered_total",
			Help: "Total pixels rendered across all successful jobs.",
		}),
		processedBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snapbooth_worker_processed_bytes_total",
			Help: "Total bytes written under the processed prefix.",
		}),
	}

	registry.MustRegister(
		m.rendersTotal,
		m.renderDuration,
		m.activeRenders,
		m.pixelsRenderedTotal,
		m.processedBytesTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
