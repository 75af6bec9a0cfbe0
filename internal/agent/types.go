// Package agent implements the generative collaborator used by the interviewer.
package agent

import (
	"errors"
	"time"
)

var (
	// ErrEmptyOutput is returned when the model produced no text.
	ErrEmptyOutput = errors.New("model returned an empty response")
	// ErrMissingAPIKey is returned when no model credentials are configured.
	ErrMissingAPIKey = errors.New("model API key is not set")
)

// Chat roles understood by the collaborator.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the ordered conversation sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single generation call.
type Request struct {
	Messages []Message
	// Zero values fall back to the client's configured defaults.
	Temperature float32
	MaxTokens   int
}

// Config holds collaborator configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultConfig returns default collaborator configuration.
func DefaultConfig() Config {
	return Config{
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		MaxTokens:   800,
		Timeout:     60 * time.Second,
	}
}
