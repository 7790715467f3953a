// Package metrics provides Prometheus metrics for the wagering service.
//
// Every Manager method is safe on a nil receiver so components built without
// metrics (tests, the admin CLI) call them unconditionally.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithRegistry sets the registry metrics are registered on and served from.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// WithHistogramBuckets sets custom buckets for latency histograms.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

// Manager owns the collectors.
type Manager struct {
	namespace string
	registry  *prometheus.Registry
	buckets   []float64

	wagersPlaced   *prometheus.CounterVec
	wagersRejected *prometheus.CounterVec
	wagersSettled  *prometheus.CounterVec
	pointsCredited prometheus.Counter
	settlementRuns prometheus.Counter
	roundsEnded    prometheus.Counter
	feedRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// NewManager creates a metrics manager on a private registry unless one is given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "scoracle",
		registry:  prometheus.NewRegistry(),
		buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.init()
	return m
}

func (m *Manager) init() {
	auto := promauto.With(m.registry)

	m.wagersPlaced = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "wagers_placed_total",
		Help:      "Wagers accepted, by kind",
	}, []string{"kind"})

	m.wagersRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "wagers_rejected_total",
		Help:      "Wager placements rejected, by reason",
	}, []string{"reason"})

	m.wagersSettled = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "wagers_settled_total",
		Help:      "Wagers resolved at settlement, by kind and outcome",
	}, []string{"kind", "outcome"})

	m.pointsCredited = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "points_credited_total",
		Help:      "Points credited to league accounts by settlement",
	})

	m.settlementRuns = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "settlement_runs_total",
		Help:      "Settlement poll runs",
	})

	m.roundsEnded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "rounds_ended_total",
		Help:      "Seasonal league rounds closed",
	})

	m.feedRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "feed_requests_total",
		Help:      "Statistics feed requests, by endpoint and status",
	}, []string{"endpoint", "status"})

	m.httpDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   m.buckets,
	}, []string{"route", "method", "status"})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Registry exposes the underlying registry.
func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Manager) WagerPlaced(kind string) {
	if m == nil {
		return
	}
	m.wagersPlaced.WithLabelValues(kind).Inc()
}

func (m *Manager) WagerRejected(reason string) {
	if m == nil {
		return
	}
	m.wagersRejected.WithLabelValues(reason).Inc()
}

// WagerSettled records one resolved wager and the points it paid.
func (m *Manager) WagerSettled(kind, outcome string, credited int64) {
	if m == nil {
		return
	}
	m.wagersSettled.WithLabelValues(kind, outcome).Inc()
	if credited > 0 {
		m.pointsCredited.Add(float64(credited))
	}
}

func (m *Manager) SettlementRun() {
	if m == nil {
		return
	}
	m.settlementRuns.Inc()
}

func (m *Manager) RoundEnded() {
	if m == nil {
		return
	}
	m.roundsEnded.Inc()
}

func (m *Manager) FeedRequest(endpoint string, status int) {
	if m == nil {
		return
	}
	m.feedRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func (m *Manager) HTTPRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
