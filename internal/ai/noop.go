package ai

import "context"

// NoopProvider is returned when no provider is configured. Every call
// fails with ErrNoProvider so the pipeline surfaces a clear error
// instead of a nil dereference.
type NoopProvider struct{}

func (n *NoopProvider) Name() string { return "none" }

func (n *NoopProvider) IsAvailable(ctx context.Context) bool { return false }

func (n *NoopProvider) Chat(ctx context.Context, system, user string, maxTokens int) (*ChatResponse, error) {
	return nil, ErrNoProvider
}

func (n *NoopProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, ErrNoProvider
}

func (n *NoopProvider) Dimensions() int { return 0 }
