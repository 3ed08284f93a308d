// Package ai abstracts the language-model providers used for duplicate
// verification, ranking, and embeddings.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dhruvparmar372/ossgard-sub002/internal/config"
)

// ErrNoProvider is returned when a call reaches a provider that is not
// configured.
var ErrNoProvider = errors.New("ai: no provider configured")

// ChatResponse is one model completion plus its token accounting.
type ChatResponse struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// ChatProvider abstracts chat-completion calls to a language model.
// To add a new provider:
//  1. Create a file in internal/ai/ (e.g. mymodel.go)
//  2. Implement ChatProvider
//  3. Register in newSingle()
type ChatProvider interface {
	// Name returns the provider identifier (e.g. "openai", "ollama").
	Name() string

	// IsAvailable verifies the provider is reachable and configured.
	IsAvailable(ctx context.Context) bool

	// Chat sends a system and user message and returns the completion.
	Chat(ctx context.Context, system, user string, maxTokens int) (*ChatResponse, error)
}

// EmbeddingProvider turns texts into dense vectors.
type EmbeddingProvider interface {
	// Name returns the provider identifier.
	Name() string

	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the width of the vectors Embed returns.
	Dimensions() int
}

// New returns the configured ChatProvider. With fallback providers
// configured it returns a chain that fails over between them with
// circuit breaker protection.
func New(cfg config.AIConfig) (ChatProvider, error) {
	primary, err := newSingle(cfg.Provider, cfg)
	if err != nil {
		return nil, err
	}

	if len(cfg.Fallback) == 0 {
		return primary, nil
	}

	chain := []ChatProvider{primary}
	for _, name := range cfg.Fallback {
		p, err := newSingle(name, cfg)
		if err != nil {
			slog.Warn("ai: failed to create fallback provider, skipping", "provider", name, "error", err)
			continue
		}
		chain = append(chain, p)
	}

	if len(chain) == 1 {
		return primary, nil
	}
	return NewChain(chain), nil
}

// NewEmbedder returns the configured EmbeddingProvider. EmbedProvider
// empty falls back to the chat provider name.
func NewEmbedder(cfg config.AIConfig) (EmbeddingProvider, error) {
	name := cfg.EmbedProvider
	if name == "" {
		name = cfg.Provider
	}
	switch name {
	case "", "none":
		return &NoopProvider{}, nil
	case "openai":
		if cfg.OpenAIKey == "" {
			return &NoopProvider{}, nil
		}
		return NewOpenAI(cfg)
	case "ollama":
		return NewOllama(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q (supported: openai, ollama)", name)
	}
}

func newSingle(provider string, cfg config.AIConfig) (ChatProvider, error) {
	switch provider {
	case "", "none":
		return &NoopProvider{}, nil
	case "openai":
		if cfg.OpenAIKey == "" {
			return &NoopProvider{}, nil
		}
		return NewOpenAI(cfg)
	case "ollama":
		return NewOllama(cfg)
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return &NoopProvider{}, nil
		}
		return NewAnthropic(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported AI provider %q (supported: openai, ollama, anthropic)", provider)
	}
}
