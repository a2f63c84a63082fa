package ai

import (
	"context"
	"errors"
)

var (
	// ErrNoProvider is returned by a cascade with no strategies configured.
	ErrNoProvider = errors.New("no AI provider configured")
	// ErrExhausted means every strategy failed.
	ErrExhausted = errors.New("all AI providers failed")
	// ErrPartialStream means a stream broke after emitting output.
	ErrPartialStream = errors.New("AI stream interrupted")
	// ErrUnusable wraps a Validate rejection.
	ErrUnusable = errors.New("unusable AI answer")
	errEmpty         = errors.New("empty completion")
)

// Options tune one completion.
type Options struct {
	// JSON asks the provider to answer with a JSON document only.
	JSON      bool
	MaxTokens int
	// Validate, when set, is run by the cascade on each completion. A rejected
	// answer counts as a failed attempt and the next strategy is tried.
	Validate func(text string) error
}

// Provider is one model of one AI vendor. Implementations must be safe for
// concurrent use.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
	// Stream delivers text chunks to onChunk as they are generated.
	Stream(ctx context.Context, prompt string, opts Options, onChunk func(string) error) error
}
