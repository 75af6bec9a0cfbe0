// Package domain contains core domain types for the interview service.
package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownPhase is returned when a phase name is not recognized.
	ErrUnknownPhase = errors.New("unknown phase")
	// ErrPhaseRegression is returned for a transition that would move backwards.
	ErrPhaseRegression = errors.New("phase transition must move forward")
)

// Role identifies who authored a turn.
type Role string

const (
	// RoleAssistant marks turns written by the interviewer.
	RoleAssistant Role = "assistant"
	// RoleRespondent marks turns written by the interviewed teacher. It is
	// serialized as "user" to line up with chat-completion roles.
	RoleRespondent Role = "user"
)

// Turn is one message of the interview transcript.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Error   bool   `json:"error,omitempty"`
	// Index is the turn's position in the transcript. It is rebuilt from
	// position when a transcript is loaded.
	Index int `json:"-"`
}

// SessionState is the unit of identity and persistence for one interview.
type SessionState struct {
	ID                      string
	CreatedAt               time.Time
	UpdatedAt               time.Time
	Transcript              []Turn
	Phase                   Phase
	MultiplicationQuestions int
	DivisionQuestions       int
	Report                  *Report
}

// NewSessionState creates a session whose transcript holds the opening turn.
func NewSessionState(id string, phase Phase, opening string, now time.Time) *SessionState {
	s := &SessionState{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Phase:     phase,
	}
	s.Append(RoleAssistant, opening, false)
	return s
}

// Append adds a turn to the end of the transcript and returns it.
func (s *SessionState) Append(role Role, content string, isError bool) Turn {
	t := Turn{
		Role:    role,
		Content: content,
		Error:   isError,
		Index:   len(s.Transcript),
	}
	s.Transcript = append(s.Transcript, t)
	s.UpdatedAt = time.Now()
	return t
}

// Len returns the number of turns in the transcript.
func (s *SessionState) Len() int {
	return len(s.Transcript)
}

// RecentTurns returns the last n turns of the transcript.
func (s *SessionState) RecentTurns(n int) []Turn {
	if n <= 0 || n >= len(s.Transcript) {
		return s.Transcript
	}
	return s.Transcript[len(s.Transcript)-n:]
}

// Advance moves the session to next. Moving to the current phase is a no-op.
func (s *SessionState) Advance(next Phase) error {
	if !next.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPhase, next)
	}
	if next.Before(s.Phase) {
		return fmt.Errorf("%w: %s -> %s", ErrPhaseRegression, s.Phase, next)
	}
	s.Phase = next
	return nil
}

// ReportReady reports whether a report has been generated.
func (s *SessionState) ReportReady() bool {
	return s.Report != nil
}

// Clone returns a deep copy that can be serialized outside the session lock.
func (s *SessionState) Clone() *SessionState {
	c := *s
	c.Transcript = make([]Turn, len(s.Transcript))
	copy(c.Transcript, s.Transcript)
	if s.Report != nil {
		r := *s.Report
		c.Report = &r
	}
	return &c
}
