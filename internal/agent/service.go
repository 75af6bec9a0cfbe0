package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Service runs generation calls to completion. Fragments are concatenated in
// order and only the complete text is returned to the caller.
type Service struct {
	generator Generator
	timeout   time.Duration
	logger    *slog.Logger
}

// NewService wraps a generator with a per-call timeout.
func NewService(generator Generator, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Service{
		generator: generator,
		timeout:   timeout,
		logger:    logger,
	}
}

// Name returns the underlying generator's name.
func (s *Service) Name() string {
	return s.generator.Name()
}

// Collect consumes the whole completion for req. onFragment, if set, sees
// each fragment as it arrives. Errors, timeouts, cancellation and empty output
// all return an error and no text.
func (s *Service) Collect(ctx context.Context, req Request, onFragment func(string)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var b strings.Builder
	fragments := 0
	for frag, err := range s.generator.Generate(ctx, req) {
		if err != nil {
			return "", err
		}
		fragments++
		b.WriteString(frag)
		if onFragment != nil {
			onFragment(frag)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("generation interrupted after %d fragments: %w", fragments, err)
	}

	text := b.String()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyOutput
	}
	return text, nil
}

// Complete is Collect without fragment callbacks.
func (s *Service) Complete(ctx context.Context, req Request) (string, error) {
	return s.Collect(ctx, req, nil)
}
