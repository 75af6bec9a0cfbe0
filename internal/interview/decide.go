package interview

import (
	"github.com/ashureev/math-interviewer/internal/domain"
	"github.com/ashureev/math-interviewer/internal/protocol"
)

// ActionKind is what the interviewer does with a respondent turn.
type ActionKind string

const (
	ActionSelfIntroduction ActionKind = "self_introduction"
	ActionOpening          ActionKind = "opening"
	ActionTransition       ActionKind = "transition"
	ActionClosing          ActionKind = "closing"
	ActionDelegate         ActionKind = "delegate"
)

// Scripted reports whether the action replies with a fixed message.
func (k ActionKind) Scripted() bool {
	return k != ActionDelegate
}

// Action is the decision for one turn.
type Action struct {
	Kind ActionKind
	// Message is the scripted reply; empty for ActionDelegate.
	Message string
	// Next is the phase after the turn.
	Next domain.Phase
}

// Decide picks the action for the next respondent turn from the state before
// that turn is applied. It is pure and is never called once the session is
// done.
func Decide(s *domain.SessionState, settings Settings) Action {
	settings = settings.withDefaults()

	switch {
	case s.Phase == domain.PhaseIntroduction:
		return Action{Kind: ActionSelfIntroduction, Message: protocol.SelfIntroduction, Next: domain.PhaseReadyToStart}
	case s.Phase == domain.PhaseReadyToStart:
		return Action{Kind: ActionOpening, Message: protocol.MultiplicationOpening, Next: domain.PhaseMultiplication}
	case insertTransition(s, settings):
		return Action{Kind: ActionTransition, Message: protocol.DivisionTransition, Next: domain.PhaseDivision}
	case settings.DivisionThreshold > 0 &&
		s.Phase == domain.PhaseDivision &&
		s.DivisionQuestions >= settings.DivisionThreshold:
		return Action{Kind: ActionClosing, Message: protocol.Closing, Next: domain.PhaseDone}
	default:
		return Action{Kind: ActionDelegate, Next: s.Phase}
	}
}

func insertTransition(s *domain.SessionState, settings Settings) bool {
	return s.Phase == domain.PhaseMultiplication &&
		s.MultiplicationQuestions >= settings.MultiplicationThreshold &&
		s.DivisionQuestions == 0
}

// apply commits the counter and phase effects of a scripted action.
func (a Action) apply(s *domain.SessionState) error {
	if err := s.Advance(a.Next); err != nil {
		return err
	}
	switch a.Kind {
	case ActionOpening:
		s.MultiplicationQuestions = 1
	case ActionTransition:
		s.DivisionQuestions = 1
	}
	return nil
}

// countDelegated increments the counter of the current phase after a
// successful model reply.
func countDelegated(s *domain.SessionState) {
	switch s.Phase {
	case domain.PhaseMultiplication:
		s.MultiplicationQuestions++
	case domain.PhaseDivision:
		s.DivisionQuestions++
	}
}
