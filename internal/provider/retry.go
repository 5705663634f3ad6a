package provider

import (
	"context"
	"errors"
	"time"
)

// RetryConfig controls retry behavior for a wrapped provider.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 mean a single attempt.
	MaxAttempts int

	// Backoff is the delay before the second attempt; it doubles on each
	// further attempt. Zero retries immediately.
	Backoff time.Duration

	// ShouldRetry decides whether err is worth another attempt.
	// Defaults to IsRetryable.
	ShouldRetry func(error) bool
}

// WithRetry wraps p so that Complete, and the connection phase of Stream,
// are retried on transient errors. Mid-stream errors are never retried
// because part of the response has already been delivered.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	if p == nil {
		return nil
	}
	return &retryProvider{next: p, cfg: cfg}
}

type retryProvider struct {
	next Provider
	cfg  RetryConfig
}

func (r *retryProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	var resp CompletionResponse
	err := r.do(ctx, func() error {
		var err error
		resp, err = r.next.Complete(ctx, req)
		return err
	})
	return resp, err
}

func (r *retryProvider) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	var ch <-chan StreamChunk
	err := r.do(ctx, func() error {
		var err error
		ch, err = r.next.Stream(ctx, req)
		return err
	})
	return ch, err
}

func (r *retryProvider) ContextWindowSize() int { return r.next.ContextWindowSize() }
func (r *retryProvider) ModelName() string      { return r.next.ModelName() }

// SupportedRoles forwards the wrapped provider's role mapping, if any.
func (r *retryProvider) SupportedRoles() []MessageRole {
	if rm, ok := r.next.(RoleMapper); ok {
		return rm.SupportedRoles()
	}
	return []MessageRole{MessageRoleSystem, MessageRoleUser, MessageRoleAssistant, MessageRoleToolResponse}
}

// HealthCheck forwards to the wrapped provider. Providers without a
// health probe are reported healthy.
func (r *retryProvider) HealthCheck(ctx context.Context) error {
	if hc, ok := r.next.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (r *retryProvider) do(ctx context.Context, call func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	attempts := max(r.cfg.MaxAttempts, 1)
	delay := r.cfg.Backoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if attempt == attempts || !r.shouldRetry(ctx, lastErr) {
			break
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}
	}
	return lastErr
}

func (r *retryProvider) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if r.cfg.ShouldRetry != nil {
		return r.cfg.ShouldRetry(err)
	}
	return IsRetryable(err)
}
