package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge

	sessionsStarted prometheus.Counter
	uploadsTotal    *prometheus.CounterVec
	rendersEnqueued prometheus.Counter
	framesReceived  prometheus.Counter
	streamsActive   prometheus.Gauge
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snapbooth_web_requests_total",
			Help: "HTTP requests processed, labelled by route, method, and status code.",
		}, []string{"route", "method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "snapbooth_web_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "snapbooth_web_requests_in_flight",
			Help: "Requests currently being served.",
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snapbooth_web_sessions_started_total",
			Help: "Photo sessions created.",
		}),
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snapbooth_web_uploads_total",
			Help: "Original photo uploads by outcome.",
		}, []string{"outcome"}),
		rendersEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snapbooth_web_renders_enqueued_total",
			Help: "Filter render tasks handed to the queue.",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snapbooth_web_stream_frames_total",
			Help: "Preview frames received over websocket streams.",
		}),
		streamsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "snapbooth_web_streams_active",
			Help: "Open websocket preview streams.",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.inFlight,
		m.sessionsStarted,
		m.uploadsTotal,
		m.rendersEnqueued,
		m.framesReceived,
		m.streamsActive,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Websocket upgrades hijack the connection; the recorder would lose
		// the Hijacker interface, so let them through untouched.
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		m.requestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// routeLabel collapses session IDs out of paths so the metric cardinality
// stays bounded.
func routeLabel(path string) string {
	if path == "/" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "v1" && parts[1] == "sessions" {
		parts[2] = ":id"
	}
	return "/" + strings.Join(parts, "/")
}
