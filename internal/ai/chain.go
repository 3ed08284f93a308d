package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	failureThreshold = 3
	resetTimeout     = 2 * time.Minute
)

type circuitBreaker struct {
	mu           sync.Mutex
	failures     int
	lastFailedAt time.Time
	state        string
}

func newCircuitBreaker() *circuitBreaker {
	return &circuitBreaker{
		state: "closed",
	}
}

func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == "closed" {
		return true
	}

	if cb.state == "open" {
		if time.Since(cb.lastFailedAt) >= resetTimeout {
			cb.state = "half-open"
			return true
		}
		return false
	}

	return true
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.state = "closed"
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailedAt = time.Now()

	if cb.failures >= failureThreshold {
		cb.state = "open"
		slog.Debug("ai: circuit breaker opened", "failures", cb.failures)
	}
}

func (cb *circuitBreaker) trip() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = "open"
	cb.lastFailedAt = time.Now()
}

// ChainProvider fails over between chat providers in order, with a
// circuit breaker per provider so a dead one is skipped quickly.
type ChainProvider struct {
	providers []ChatProvider
	breakers  map[string]*circuitBreaker
	mu        sync.RWMutex
	current   string
	fallback  bool
}

// NewChain builds a ChainProvider trying providers in the given order.
func NewChain(providers []ChatProvider) *ChainProvider {
	breakers := make(map[string]*circuitBreaker)
	for _, p := range providers {
		breakers[p.Name()] = newCircuitBreaker()
	}

	current := ""
	if len(providers) > 0 {
		current = providers[0].Name()
	}

	return &ChainProvider{
		providers: providers,
		breakers:  breakers,
		current:   current,
	}
}

func (c *ChainProvider) Name() string { return "chain" }

func (c *ChainProvider) IsAvailable(ctx context.Context) bool {
	for _, p := range c.providers {
		if p.IsAvailable(ctx) {
			return true
		}
	}
	return false
}

func (c *ChainProvider) Chat(ctx context.Context, system, user string, maxTokens int) (*ChatResponse, error) {
	var lastErr error
	var usedFallback bool

	for _, p := range c.providers {
		if !c.breakers[p.Name()].allow() {
			slog.Debug("ai: circuit open, skipping provider", "provider", p.Name())
			continue
		}

		result, err := p.Chat(ctx, system, user, maxTokens)
		if err == nil {
			c.breakers[p.Name()].recordSuccess()
			c.mu.Lock()
			c.current = p.Name()
			c.fallback = usedFallback
			c.mu.Unlock()

			if usedFallback {
				slog.Info("ai: provider succeeded after failover", "provider", p.Name())
			}
			return result, nil
		}

		if isRetriableError(err) {
			c.breakers[p.Name()].recordFailure()
		} else if isAuthError(err) {
			c.breakers[p.Name()].recordFailure()
			c.breakers[p.Name()].trip()
			slog.Warn("ai: auth error, opening circuit", "provider", p.Name(), "error", err)
		}

		slog.Warn("ai: provider failed, trying next", "provider", p.Name(), "error", err)
		lastErr = err
		usedFallback = true
	}

	return nil, fmt.Errorf("all AI providers failed; last error: %w", lastErr)
}

// CurrentProvider reports which provider served the last successful
// call and whether it was a fallback.
func (c *ChainProvider) CurrentProvider() (provider string, fallback bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.fallback
}

func isRetriableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "status 429") || strings.Contains(errStr, "error 429"):
		return true
	case strings.Contains(errStr, "status 5") || strings.Contains(errStr, "error 5"):
		return true
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "connection refused"):
		return true
	case strings.Contains(errStr, "status 401") || strings.Contains(errStr, "status 403"):
		return false
	case strings.Contains(errStr, "status 4"):
		return false
	default:
		return true
	}
}

func isAuthError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "401") || strings.Contains(errStr, "403")
}
