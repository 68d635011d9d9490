// Package metrics owns the Prometheus registry and the collectors the session,
// realtime and HTTP layers report into. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "justice"

// Drop reasons for EventDropped.
const (
	DropNoSubscriber = "no_subscriber"
	DropLagged       = "lagged"
)

type Metrics struct {
	reg *prometheus.Registry

	sessionsCreated   prometheus.Counter
	sessionCollisions prometheus.Counter
	sessionsSwept     prometheus.Counter
	cleanupFailures   prometheus.Counter

	eventsPublished prometheus.Counter
	eventsDropped   *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New builds a private registry with Go runtime and process collectors plus
// the justice collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		reg: reg,
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "created_total",
			Help: "Sessions issued.",
		}),
		sessionCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "collisions_total",
			Help: "Token draws rejected because the hash already existed.",
		}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "swept_total",
			Help: "Expired sessions removed by the cleaner.",
		}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "cleanup_failures_total",
			Help: "Cleaner passes that returned an error or panicked.",
		}),
		eventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "events", Name: "delivered_total",
			Help: "Events queued to a subscriber.",
		}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "events", Name: "dropped_total",
			Help: "Events not delivered, by reason.",
		}, []string{"reason"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method and status class.",
		}, []string{"method", "class"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}

	reg.MustRegister(
		m.sessionsCreated, m.sessionCollisions, m.sessionsSwept, m.cleanupFailures,
		m.eventsPublished, m.eventsDropped,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Gauge registers a gauge whose value is read from fn on every scrape.
func (m *Metrics) Gauge(subsystem, name, help string, fn func() float64) {
	if m == nil || fn == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, fn))
}

func (m *Metrics) SessionCreated() {
	if m != nil {
		m.sessionsCreated.Inc()
	}
}

func (m *Metrics) SessionCollision() {
	if m != nil {
		m.sessionCollisions.Inc()
	}
}

func (m *Metrics) SessionsSwept(n int64) {
	if m != nil && n > 0 {
		m.sessionsSwept.Add(float64(n))
	}
}

func (m *Metrics) CleanupFailed() {
	if m != nil {
		m.cleanupFailures.Inc()
	}
}

func (m *Metrics) EventDelivered() {
	if m != nil {
		m.eventsPublished.Inc()
	}
}

func (m *Metrics) EventDropped(reason string) {
	if m != nil {
		m.eventsDropped.WithLabelValues(reason).Inc()
	}
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status/100)+"xx").Inc()
	m.httpDuration.WithLabelValues(method).Observe(d.Seconds())
}
