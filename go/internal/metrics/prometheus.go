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

// Manager is the Prometheus Collector.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	answers          *prometheus.CounterVec
	reconcilePasses  *prometheus.CounterVec
	driftCorrections prometheus.Counter
	timerExpiries    prometheus.Counter
	broadcasts       *prometheus.CounterVec
	commands         *prometheus.CounterVec
	commandLatency   *prometheus.HistogramVec
	activeSessions   prometheus.Gauge
}

// NewManager registers the engine metrics with a fresh registry unless one is
// supplied.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "quiz",
		subsystem:        "session",
		histogramBuckets: prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	factory := promauto.With(m.registry)
	m.answers = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "answers_total",
		Help:      "Answer submissions by outcome and rejection reason.",
	}, []string{"accepted", "reason"})
	m.reconcilePasses = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reconcile_passes_total",
		Help:      "Reconciliation passes by result.",
	}, []string{"result"})
	m.driftCorrections = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tally_drift_corrections_total",
		Help:      "Live tallies overwritten because they diverged from the answer log.",
	})
	m.timerExpiries = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "timer_expiries_total",
		Help:      "Question deadlines that fired.",
	})
	m.broadcasts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "broadcasts_total",
		Help:      "Broadcast deliveries by event type and whether they were dropped.",
	}, []string{"type", "delivered"})
	m.commands = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "commands_total",
		Help:      "Host commands by name and outcome.",
	}, []string{"command", "outcome"})
	m.commandLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "command_duration_seconds",
		Help:      "Host command latency.",
		Buckets:   m.histogramBuckets,
	}, []string{"command"})
	m.activeSessions = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_sessions",
		Help:      "Sessions with a loaded state machine.",
	})
	return m
}

// Registry exposes the registry metrics are served from.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Manager) RecordAnswer(accepted bool, reason string) {
	m.answers.WithLabelValues(strconv.FormatBool(accepted), reason).Inc()
}

func (m *Manager) RecordReconcilePass(result string) {
	m.reconcilePasses.WithLabelValues(result).Inc()
}

func (m *Manager) RecordDriftCorrected() { m.driftCorrections.Inc() }

func (m *Manager) RecordTimerExpired() { m.timerExpiries.Inc() }

func (m *Manager) RecordBroadcast(eventType string, delivered bool) {
	m.broadcasts.WithLabelValues(eventType, strconv.FormatBool(delivered)).Inc()
}

func (m *Manager) RecordCommand(command, outcome string, duration time.Duration) {
	m.commands.WithLabelValues(command, outcome).Inc()
	m.commandLatency.WithLabelValues(command).Observe(duration.Seconds())
}

func (m *Manager) SetActiveSessions(n int) { m.activeSessions.Set(float64(n)) }
