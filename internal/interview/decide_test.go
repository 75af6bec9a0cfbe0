package interview

import (
	"testing"
	"time"

	"github.com/ashureev/math-interviewer/internal/domain"
	"github.com/ashureev/math-interviewer/internal/protocol"
)

func TestDecide(t *testing.T) {
	t.Parallel()

	withClosing := DefaultSettings()
	withClosing.DivisionThreshold = 3

	cases := []struct {
		name     string
		phase    domain.Phase
		mult     int
		div      int
		settings Settings
		want     ActionKind
		next     domain.Phase
		message  string
	}{
		{"introduction", domain.PhaseIntroduction, 0, 0, DefaultSettings(), ActionSelfIntroduction, domain.PhaseReadyToStart, protocol.SelfIntroduction},
		{"ready", domain.PhaseReadyToStart, 0, 0, DefaultSettings(), ActionOpening, domain.PhaseMultiplication, protocol.MultiplicationOpening},
		{"below threshold", domain.PhaseMultiplication, 4, 0, DefaultSettings(), ActionDelegate, domain.PhaseMultiplication, ""},
		{"at threshold", domain.PhaseMultiplication, 5, 0, DefaultSettings(), ActionTransition, domain.PhaseDivision, protocol.DivisionTransition},
		{"above threshold", domain.PhaseMultiplication, 9, 0, DefaultSettings(), ActionTransition, domain.PhaseDivision, protocol.DivisionTransition},
		{"division open ended", domain.PhaseDivision, 5, 40, DefaultSettings(), ActionDelegate, domain.PhaseDivision, ""},
		{"division below closing", domain.PhaseDivision, 5, 2, withClosing, ActionDelegate, domain.PhaseDivision, ""},
		{"division closing", domain.PhaseDivision, 5, 3, withClosing, ActionClosing, domain.PhaseDone, protocol.Closing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := domain.NewSessionState("s", tc.phase, "open", time.Now())
			s.MultiplicationQuestions = tc.mult
			s.DivisionQuestions = tc.div

			got := Decide(s, tc.settings)
			if got.Kind != tc.want {
				t.Fatalf("Decide kind = %s, want %s", got.Kind, tc.want)
			}
			if got.Next != tc.next {
				t.Fatalf("Decide next = %s, want %s", got.Next, tc.next)
			}
			if got.Message != tc.message {
				t.Fatalf("Decide message = %q, want %q", got.Message, tc.message)
			}
		})
	}
}

func TestDecideDoesNotMutate(t *testing.T) {
	t.Parallel()

	s := domain.NewSessionState("s", domain.PhaseMultiplication, "open", time.Now())
	s.MultiplicationQuestions = 5
	before := s.Clone()

	Decide(s, DefaultSettings())
	if s.Phase != before.Phase || s.MultiplicationQuestions != before.MultiplicationQuestions ||
		s.DivisionQuestions != before.DivisionQuestions || s.Len() != before.Len() {
		t.Fatalf("Decide mutated state: %+v", s)
	}
}
