package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pitchfork_auth"

// Collector groups the session lifecycle counters. A nil *Collector is valid
// and records nothing.
type Collector struct {
	registry *prometheus.Registry

	sessionsIssued prometheus.Counter
	rotations      *prometheus.CounterVec
	logouts        *prometheus.CounterVec
	authChecks     *prometheus.CounterVec
	swept          prometheus.Counter
}

// New creates a Collector on its own registry, including Go runtime and
// process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		sessionsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_issued_total",
			Help:      "Token pairs minted and persisted.",
		}),
		rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_rotations_total",
			Help:      "Refresh token exchanges by result.",
		}, []string{"result"}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logouts_total",
			Help:      "Logout attempts by result.",
		}, []string{"result"}),
		authChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_checks_total",
			Help:      "Bearer token checks by role and result.",
		}, []string{"role", "result"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blacklist_swept_total",
			Help:      "Blacklist entries removed after their token expired.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.sessionsIssued, c.rotations, c.logouts, c.authChecks, c.swept,
	)
	return c
}

func (c *Collector) SessionIssued() {
	if c == nil {
		return
	}
	c.sessionsIssued.Inc()
}

func (c *Collector) Rotation(result string) {
	if c == nil {
		return
	}
	c.rotations.WithLabelValues(result).Inc()
}

func (c *Collector) Logout(result string) {
	if c == nil {
		return
	}
	c.logouts.WithLabelValues(result).Inc()
}

func (c *Collector) TokenCheck(role, result string) {
	if c == nil {
		return
	}
	c.authChecks.WithLabelValues(role, result).Inc()
}

func (c *Collector) Swept(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.swept.Add(float64(n))
}

// Registry exposes the underlying registry for tests and extra collectors.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
