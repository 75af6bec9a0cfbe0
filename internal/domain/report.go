package domain

import "time"

// Report is a synthesized interview summary in markdown.
type Report struct {
	Content     string    `json:"content"`
	GeneratedAt time.Time `json:"generated_at"`
	// Failed is set when the document explains a generation error instead of
	// summarizing the interview.
	Failed bool `json:"failed,omitempty"`
}
