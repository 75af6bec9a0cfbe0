package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordOnInjectedRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordTurn("delegate")
	m.RecordTurn("delegate")
	m.RecordTurn("transition")
	m.RecordCollaboratorCall(150*time.Millisecond, nil)
	m.RecordCollaboratorCall(time.Second, errors.New("timeout"))
	m.RecordPhaseTransition("division")
	m.RecordSnapshot("file", true)
	m.RecordSnapshot("file", false)
	m.RecordReport("refused")
	m.SetActiveSessions(3)

	assert.InDelta(t, 2, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("delegate")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("transition")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CollaboratorFailures), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PhaseTransitionsTotal.WithLabelValues("division")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues("file", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ReportsTotal.WithLabelValues("refused")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.ActiveSessions), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.RecordTurn("delegate")
	m.RecordCollaboratorCall(time.Second, nil)
	m.RecordSnapshot("redis", true)
	m.SetActiveSessions(1)
}
