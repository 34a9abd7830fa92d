package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the service's Prometheus metrics. It owns its registry,
// so tests can build as many collectors as they like without double
// registration panics.
type Collector struct {
	SessionsStarted prometheus.Counter
	TurnsTotal      *prometheus.CounterVec
	OutcomesTotal   *prometheus.CounterVec
	LLMFallbacks    prometheus.Counter
	RateLimitHits   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New builds a Collector with all metrics registered.
func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.SessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bargain",
		Subsystem: "sessions",
		Name:      "started_total",
		Help:      "Negotiation sessions started",
	})

	c.TurnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bargain",
		Subsystem: "turns",
		Name:      "total",
		Help:      "Negotiation turns processed, by engine tactic",
	}, []string{"tactic"})

	c.OutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bargain",
		Subsystem: "sessions",
		Name:      "outcomes_total",
		Help:      "Sessions reaching a terminal state, by state",
	}, []string{"state"})

	c.LLMFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bargain",
		Subsystem: "dialogue",
		Name:      "llm_fallbacks_total",
		Help:      "Turns answered with the deterministic fallback message",
	})

	c.RateLimitHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bargain",
		Subsystem: "api",
		Name:      "rate_limit_hits_total",
		Help:      "Requests rejected by throttling, by kind (ip, cooldown, lock)",
	}, []string{"kind"})

	c.RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bargain",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "path", "status"})

	c.registry.MustRegister(
		c.SessionsStarted,
		c.TurnsTotal,
		c.OutcomesTotal,
		c.LLMFallbacks,
		c.RateLimitHits,
		c.RequestDuration,
	)
	return c
}

// ObserveRequest records one HTTP request for the duration histogram.
// path should be the route pattern, not the raw URL, to keep cardinality
// bounded.
func (c *Collector) ObserveRequest(method, path string, status int, d time.Duration) {
	c.RequestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler serves the /metrics endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
