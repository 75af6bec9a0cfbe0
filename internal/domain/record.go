package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// SessionRecord is the persisted form of a session, shared by snapshots and
// exports.
type SessionRecord struct {
	SessionID     string    `json:"session_id"`
	Timestamp     string    `json:"timestamp"`
	Messages      []Turn    `json:"messages"`
	Phase         string    `json:"phase"`
	MultQuestions int       `json:"mult_questions"`
	DivQuestions  int       `json:"div_questions"`
	CreatedAt     time.Time `json:"created_at,omitzero"`
	Report        *Report   `json:"report,omitempty"`
}

// Record captures the session at ts.
func (s *SessionState) Record(ts time.Time) *SessionRecord {
	c := s.Clone()
	return &SessionRecord{
		SessionID:     c.ID,
		Timestamp:     ts.Format(time.RFC3339),
		Messages:      c.Transcript,
		Phase:         string(c.Phase),
		MultQuestions: c.MultiplicationQuestions,
		DivQuestions:  c.DivisionQuestions,
		CreatedAt:     c.CreatedAt,
		Report:        c.Report,
	}
}

// State rebuilds a session from the record.
func (r *SessionRecord) State() (*SessionState, error) {
	if r.SessionID == "" {
		return nil, fmt.Errorf("session record has no session_id")
	}
	phase, err := ParsePhase(r.Phase)
	if err != nil {
		return nil, err
	}
	if r.MultQuestions < 0 || r.DivQuestions < 0 {
		return nil, fmt.Errorf("session record %s has negative question counts", r.SessionID)
	}

	transcript := make([]Turn, len(r.Messages))
	for i, m := range r.Messages {
		m.Index = i
		transcript[i] = m
	}

	updated, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		updated = time.Now()
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = updated
	}

	var report *Report
	if r.Report != nil {
		rep := *r.Report
		report = &rep
	}

	return &SessionState{
		ID:                      r.SessionID,
		CreatedAt:               created,
		UpdatedAt:               updated,
		Transcript:              transcript,
		Phase:                   phase,
		MultiplicationQuestions: r.MultQuestions,
		DivisionQuestions:       r.DivQuestions,
		Report:                  report,
	}, nil
}

// MarshalIndented renders the record the way exported files are written.
func (r *SessionRecord) MarshalIndented() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// DecodeRecord parses a serialized session record.
func DecodeRecord(data []byte) (*SessionRecord, error) {
	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session record: %w", err)
	}
	return &rec, nil
}
