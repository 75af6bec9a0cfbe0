// Package metrics exposes Prometheus collectors for the interview service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the interview collectors. A nil *Metrics is valid and records
// nothing.
//
// Metrics:
//   - interview_turns_total{action} - accepted respondent turns by action
//   - interview_collaborator_failures_total - failed generative calls
//   - interview_collaborator_duration_seconds - generative call latency
//   - interview_phase_transitions_total{phase} - phase changes by target phase
//   - interview_snapshots_total{backend,result} - snapshot attempts
//   - interview_reports_total{result} - report requests
//   - interview_active_sessions - sessions held in memory
//   - interview_live_connections - attached WebSocket connections
type Metrics struct {
	TurnsTotal            *prometheus.CounterVec
	CollaboratorFailures  prometheus.Counter
	CollaboratorDuration  prometheus.Histogram
	PhaseTransitionsTotal *prometheus.CounterVec
	SnapshotsTotal        *prometheus.CounterVec
	ReportsTotal          *prometheus.CounterVec
	ActiveSessions        prometheus.Gauge
	LiveConnections       prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg leaves them
// unregistered.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interview_turns_total",
				Help: "Total number of accepted respondent turns",
			},
			[]string{"action"},
		),
		CollaboratorFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "interview_collaborator_failures_total",
				Help: "Total number of failed generative calls",
			},
		),
		CollaboratorDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "interview_collaborator_duration_seconds",
				Help:    "Generative call duration in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
			},
		),
		PhaseTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interview_phase_transitions_total",
				Help: "Total number of phase transitions by target phase",
			},
			[]string{"phase"},
		),
		SnapshotsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interview_snapshots_total",
				Help: "Total number of snapshot attempts",
			},
			[]string{"backend", "result"},
		),
		ReportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interview_reports_total",
				Help: "Total number of report requests by outcome",
			},
			[]string{"result"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "interview_active_sessions",
				Help: "Number of interview sessions held in memory",
			},
		),
		LiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "interview_live_connections",
				Help: "Number of WebSocket connections attached to sessions",
			},
		),
	}
}

// RecordTurn counts an accepted turn.
func (m *Metrics) RecordTurn(action string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(action).Inc()
}

// RecordCollaboratorCall observes one generative call.
func (m *Metrics) RecordCollaboratorCall(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.CollaboratorDuration.Observe(d.Seconds())
	if err != nil {
		m.CollaboratorFailures.Inc()
	}
}

// RecordPhaseTransition counts a move into phase.
func (m *Metrics) RecordPhaseTransition(phase string) {
	if m == nil {
		return
	}
	m.PhaseTransitionsTotal.WithLabelValues(phase).Inc()
}

// RecordSnapshot counts a snapshot attempt against backend.
func (m *Metrics) RecordSnapshot(backend string, ok bool) {
	if m == nil {
		return
	}
	m.SnapshotsTotal.WithLabelValues(backend, result(ok)).Inc()
}

// RecordReport counts a report request. result is "generated", "failed" or
// "refused".
func (m *Metrics) RecordReport(result string) {
	if m == nil {
		return
	}
	m.ReportsTotal.WithLabelValues(result).Inc()
}

// SetActiveSessions sets the in-memory session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// SetLiveConnections sets the attached WebSocket connection gauge.
func (m *Metrics) SetLiveConnections(n int) {
	if m == nil {
		return
	}
	m.LiveConnections.Set(float64(n))
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
