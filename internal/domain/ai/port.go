package ai

import "context"

// Backend is a text-completion service consulted for a verdict.
type Backend interface {
	// Name returns the model identifier recorded on analyzed events.
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}
