// ABOUTME: Prometheus collectors for session lifecycle and behavior activity.
// ABOUTME: Implements the session observer and serves its own registry over HTTP.

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/tether/internal/behavior"
	"github.com/2389/tether/internal/session"
)

const namespace = "tether"

// Create outcomes for the sessions_created_total result label.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Metrics holds the collectors. It satisfies session.Observer.
type Metrics struct {
	registry *prometheus.Registry

	SessionsLive      prometheus.Gauge
	SessionDrops      prometheus.Counter
	ReconnectAttempts prometheus.Counter
	SessionsCreated   *prometheus.CounterVec
	BehaviorFires     *prometheus.CounterVec
	CommandErrors     *prometheus.CounterVec
}

// New registers every collector on a fresh registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SessionsLive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_live",
			Help:      "Sessions currently connected.",
		}),
		SessionDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_drops_total",
			Help:      "Connections lost by live sessions.",
		}),
		ReconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts scheduled after a drop or failed redial.",
		}),
		SessionsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Create requests by outcome.",
		}, []string{"result"}),
		BehaviorFires: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "behavior_fires_total",
			Help:      "Periodic behavior task runs.",
		}, []string{"task"}),
		CommandErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "behavior_command_errors_total",
			Help:      "Behavior commands the connection rejected.",
		}, []string{"task"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SessionUp(string) {
	m.SessionsLive.Inc()
}

// SessionDown also counts a drop unless the session was terminated on purpose.
func (m *Metrics) SessionDown(_, reason string) {
	m.SessionsLive.Dec()
	if reason != session.ReasonTerminated {
		m.SessionDrops.Inc()
	}
}

func (m *Metrics) ReconnectScheduled(string, time.Duration) {
	m.ReconnectAttempts.Inc()
}

func (m *Metrics) CreateFinished(err error) {
	result := ResultOK
	if err != nil {
		result = ResultFailed
	}
	m.SessionsCreated.WithLabelValues(result).Inc()
}

func (m *Metrics) TaskFired(task behavior.Task) {
	m.BehaviorFires.WithLabelValues(string(task)).Inc()
}

func (m *Metrics) CommandFailed(task behavior.Task, _ error) {
	m.CommandErrors.WithLabelValues(string(task)).Inc()
}

var _ session.Observer = (*Metrics)(nil)
