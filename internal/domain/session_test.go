package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewSessionStateHasOpeningTurn(t *testing.T) {
	t.Parallel()

	s := NewSessionState("sess-1", PhaseIntroduction, "hello", time.Now())
	if s.Len() != 1 {
		t.Fatalf("expected 1 turn, got %d", s.Len())
	}
	if s.Transcript[0].Role != RoleAssistant || s.Transcript[0].Content != "hello" {
		t.Fatalf("unexpected opening turn: %+v", s.Transcript[0])
	}
	if s.ReportReady() {
		t.Fatal("new session must not have a report")
	}
}

func TestAppendAssignsPositionIndex(t *testing.T) {
	t.Parallel()

	s := NewSessionState("sess-1", PhaseMultiplication, "q1", time.Now())
	a := s.Append(RoleRespondent, "answer", false)
	b := s.Append(RoleAssistant, "Error: boom", true)

	if a.Index != 1 || b.Index != 2 {
		t.Fatalf("unexpected indexes %d, %d", a.Index, b.Index)
	}
	if !s.Transcript[2].Error {
		t.Fatal("expected error marker to be kept")
	}
}

func TestAdvanceIsMonotonic(t *testing.T) {
	t.Parallel()

	s := NewSessionState("sess-1", PhaseMultiplication, "q1", time.Now())
	if err := s.Advance(PhaseDivision); err != nil {
		t.Fatalf("Advance to division failed: %v", err)
	}
	if err := s.Advance(PhaseMultiplication); !errors.Is(err, ErrPhaseRegression) {
		t.Fatalf("expected ErrPhaseRegression, got %v", err)
	}
	if err := s.Advance(Phase("lunch")); !errors.Is(err, ErrUnknownPhase) {
		t.Fatalf("expected ErrUnknownPhase, got %v", err)
	}
	if s.Phase != PhaseDivision {
		t.Fatalf("phase changed after rejected transitions: %s", s.Phase)
	}
}

func TestRecentTurnsWindow(t *testing.T) {
	t.Parallel()

	s := NewSessionState("sess-1", PhaseMultiplication, "q0", time.Now())
	for i := 0; i < 30; i++ {
		s.Append(RoleRespondent, "a", false)
	}
	got := s.RecentTurns(20)
	if len(got) != 20 {
		t.Fatalf("expected 20 turns, got %d", len(got))
	}
	if got[19].Index != 30 {
		t.Fatalf("expected window to end at the newest turn, got index %d", got[19].Index)
	}
	if len(s.RecentTurns(0)) != s.Len() {
		t.Fatal("non-positive window should return the full transcript")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()

	s := NewSessionState("sess-1", PhaseMultiplication, "q1", time.Now())
	s.Report = &Report{Content: "r"}
	c := s.Clone()
	c.Append(RoleRespondent, "more", false)
	c.Report.Content = "changed"

	if s.Len() != 1 {
		t.Fatalf("clone append leaked into original: %d turns", s.Len())
	}
	if s.Report.Content != "r" {
		t.Fatalf("clone report leaked into original: %q", s.Report.Content)
	}
}

func TestRecordRoundTripKeepsIndexesAndCounters(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	s := NewSessionState("20261017_093000_abcd1234", PhaseMultiplication, "q1", now)
	s.Append(RoleRespondent, "I use area models", false)
	s.Append(RoleAssistant, "Why?", false)
	s.MultiplicationQuestions = 2

	data, err := s.Record(now).MarshalIndented()
	if err != nil {
		t.Fatalf("MarshalIndented failed: %v", err)
	}
	rec, err := DecodeRecord(data)
	if err != nil {
		t.Fatalf("DecodeRecord failed: %v", err)
	}
	got, err := rec.State()
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}

	if got.ID != s.ID || got.Phase != PhaseMultiplication || got.MultiplicationQuestions != 2 {
		t.Fatalf("unexpected restored state: %+v", got)
	}
	for i, turn := range got.Transcript {
		if turn.Index != i {
			t.Fatalf("turn %d restored with index %d", i, turn.Index)
		}
	}
	if got.Transcript[1].Role != RoleRespondent {
		t.Fatalf("expected respondent role, got %q", got.Transcript[1].Role)
	}
}

func TestRecordStateRejectsBadPhase(t *testing.T) {
	t.Parallel()

	rec := &SessionRecord{SessionID: "x", Phase: "recess"}
	if _, err := rec.State(); !errors.Is(err, ErrUnknownPhase) {
		t.Fatalf("expected ErrUnknownPhase, got %v", err)
	}
}
