package domain

import "fmt"

// Phase is the section of the interview a session is currently in.
type Phase string

const (
	// PhaseIntroduction waits for the respondent to introduce themselves.
	PhaseIntroduction Phase = "introduction"
	// PhaseReadyToStart follows the interviewer's self-introduction.
	PhaseReadyToStart Phase = "ready_to_start"
	// PhaseMultiplication is Part I of the interview.
	PhaseMultiplication Phase = "multiplication"
	// PhaseDivision is Part II of the interview.
	PhaseDivision Phase = "division"
	// PhaseDone accepts no further respondent turns.
	PhaseDone Phase = "done"
)

var phaseRank = map[Phase]int{
	PhaseIntroduction:   0,
	PhaseReadyToStart:   1,
	PhaseMultiplication: 2,
	PhaseDivision:       3,
	PhaseDone:           4,
}

var phaseDisplay = map[Phase]string{
	PhaseIntroduction:   "Introduction - Participant Info",
	PhaseReadyToStart:   "Ready to Begin",
	PhaseMultiplication: "Part I - Multiplication",
	PhaseDivision:       "Part II - Division",
	PhaseDone:           "Interview Complete",
}

// ParsePhase validates a serialized phase name.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if _, ok := phaseRank[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPhase, s)
	}
	return p, nil
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	_, ok := phaseRank[p]
	return ok
}

// Before reports whether p comes strictly earlier than other in the interview.
func (p Phase) Before(other Phase) bool {
	return phaseRank[p] < phaseRank[other]
}

// DisplayName returns the human readable stage label.
func (p Phase) DisplayName() string {
	if name, ok := phaseDisplay[p]; ok {
		return name
	}
	return string(p)
}
