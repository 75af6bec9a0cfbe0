package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ashureev/math-interviewer/internal/domain"
	"github.com/ashureev/math-interviewer/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type failingRepo struct{}

func (failingRepo) Name() string { return "broken" }
func (failingRepo) SaveSnapshot(context.Context, *domain.SessionRecord) (string, error) {
	return "", errors.New("disk full")
}
func (failingRepo) LoadSnapshot(context.Context, string) (*domain.SessionRecord, error) {
	return nil, errors.New("disk gone")
}
func (failingRepo) Ping(context.Context) error { return nil }
func (failingRepo) Close() error               { return nil }

func TestGatewaySwallowsSnapshotErrors(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())
	g := NewGateway(failingRepo{}, m, nil)
	s := domain.NewSessionState("sess-1", domain.PhaseMultiplication, "q", time.Now())

	location, ok := g.Snapshot(context.Background(), s)
	if ok || location != "" {
		t.Fatalf("expected failed snapshot, got %q, %v", location, ok)
	}
	if got := testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues("broken", "error")); got != 1 {
		t.Fatalf("expected one failed snapshot metric, got %v", got)
	}
}

func TestGatewaySnapshotAndRestore(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	g := NewGateway(fs, nil, nil)

	s := domain.NewSessionState("20261017_101010_cafebabe", domain.PhaseMultiplication, "q", time.Now())
	s.Append(domain.RoleRespondent, "I use partial products", false)
	s.MultiplicationQuestions = 1
	if err := s.Advance(domain.PhaseDivision); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	s.DivisionQuestions = 1

	if _, ok := g.Snapshot(context.Background(), s); !ok {
		t.Fatal("expected snapshot to succeed")
	}
	restored, err := g.Restore(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored.Phase != domain.PhaseDivision || restored.DivisionQuestions != 1 || restored.Len() != 2 {
		t.Fatalf("unexpected restored state: %+v", restored)
	}

	if _, err := g.Restore(context.Background(), "missing"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGatewayExportIsIndentedRecord(t *testing.T) {
	t.Parallel()

	g := NewGateway(failingRepo{}, nil, nil)
	fixed := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	s := domain.NewSessionState("exp-1", domain.PhaseMultiplication, "q", fixed)
	data, err := g.Export(s)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	for _, key := range []string{"session_id", "timestamp", "messages", "phase", "mult_questions", "div_questions"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("export missing %q", key)
		}
	}
	if doc["timestamp"] != "2026-10-17T08:00:00Z" {
		t.Fatalf("unexpected timestamp %v", doc["timestamp"])
	}
	if _, ok := doc["report"]; ok {
		t.Fatal("report must be omitted when absent")
	}
}
