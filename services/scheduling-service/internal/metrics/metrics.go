// Package metrics exposes engine counters on a dedicated Prometheus registry. A nil
// *Metrics is valid and records nothing, which keeps tests free of registry plumbing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	bookings        *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	commitConflicts prometheus.Counter
	slotQueries     prometheus.Counter
	slotLatency     prometheus.Histogram
	emitFailures    *prometheus.CounterVec
	remindersMarked prometheus.Counter
	sweepRuns       *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Book attempts by outcome (ok or error kind).",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_transitions_total",
			Help:      "Applied lifecycle transitions by event.",
		}, []string{"event"}),
		commitConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_conflicts_total",
			Help:      "Commits rejected by the store's overlap or version re-check.",
		}),
		slotQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_queries_total",
			Help:      "Available slot enumerations served.",
		}),
		slotLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slot_query_duration_seconds",
			Help:      "Time to load a day and enumerate its slots.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		emitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_emit_failures_total",
			Help:      "Post-commit notifications that could not be handed off.",
		}, []string{"event_type"}),
		remindersMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_marked_total",
			Help:      "Appointments whose reminder flag flipped to sent.",
		}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_sweep_runs_total",
			Help:      "Reminder sweep runs by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.bookings, m.transitions, m.commitConflicts, m.slotQueries, m.slotLatency,
		m.emitFailures, m.remindersMarked, m.sweepRuns,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Booking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Transition(event string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(event).Inc()
}

func (m *Metrics) CommitConflict() {
	if m == nil {
		return
	}
	m.commitConflicts.Inc()
}

func (m *Metrics) SlotQuery(took time.Duration) {
	if m == nil {
		return
	}
	m.slotQueries.Inc()
	m.slotLatency.Observe(took.Seconds())
}

func (m *Metrics) EmitFailure(eventType string) {
	if m == nil {
		return
	}
	m.emitFailures.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ReminderMarked() {
	if m == nil {
		return
	}
	m.remindersMarked.Inc()
}

func (m *Metrics) SweepRun(result string) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(result).Inc()
}
