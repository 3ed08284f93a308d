package githost

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"time"

	gogithub "github.com/google/go-github/v68/github"
)

const (
	gateMaxAttempts = 4
	gateBackoffBase = 500 * time.Millisecond
	lowQuotaWarn    = 100
)

// Gate bounds concurrent API calls and retries the transient failures
// GitHub is known for. Rate-limit headers are tracked for visibility
// only; the retry policy does not preemptively throttle.
type Gate struct {
	sem chan struct{}

	mu        sync.Mutex
	remaining int
	reset     time.Time
}

// NewGate creates a gate allowing maxConcurrent in-flight calls.
func NewGate(maxConcurrent int) *Gate {
	if maxConcurrent < 1 {
		maxConcurrent = 4
	}
	return &Gate{sem: make(chan struct{}, maxConcurrent), remaining: -1}
}

// Do runs call under the concurrency gate, retrying transient errors
// with exponential backoff.
func (g *Gate) Do(ctx context.Context, call func() (*gogithub.Response, error)) error {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-g.sem }()

	var err error
	for attempt := 1; attempt <= gateMaxAttempts; attempt++ {
		var resp *gogithub.Response
		resp, err = call()
		g.observe(resp)
		if err == nil {
			return nil
		}
		if !transient(resp, err) || attempt == gateMaxAttempts {
			return err
		}
		delay := gateBackoffBase << uint(attempt-1)
		delay += time.Duration(rand.Int63n(int64(delay)/4 + 1))
		slog.Warn("host call failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Remaining returns the last observed rate-limit quota, or -1 when no
// response has carried the header yet.
func (g *Gate) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remaining
}

func (g *Gate) observe(resp *gogithub.Response) {
	if resp == nil {
		return
	}
	g.mu.Lock()
	g.remaining = resp.Rate.Remaining
	g.reset = resp.Rate.Reset.Time
	reset := g.reset
	g.mu.Unlock()

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < lowQuotaWarn {
		slog.Warn("host rate limit running low",
			"remaining", resp.Rate.Remaining, "resets_at", reset.Format(time.RFC3339))
	}
}

// transient reports whether the failure is worth retrying: secondary
// rate limits, gateway hiccups, and plain network errors.
func transient(resp *gogithub.Response, err error) bool {
	if resp != nil {
		switch resp.StatusCode {
		case 429, 502, 503, 504:
			return true
		}
	}
	var rle *gogithub.RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	var arle *gogithub.AbuseRateLimitError
	if errors.As(err, &arle) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	return false
}
