package agent

import (
	"context"
	"iter"
)

// Generator produces a completion for an ordered message list. Text is
// delivered as a finite sequence of fragments; a provider that answers in one
// block yields once. Any error ends the sequence.
type Generator interface {
	Generate(ctx context.Context, req Request) iter.Seq2[string, error]

	// Name identifies the provider and model in logs.
	Name() string
}

// Ensure OpenAIClient implements Generator.
var _ Generator = (*OpenAIClient)(nil)
