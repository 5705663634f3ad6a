// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/kurisu/squadagent/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Set the Func fields to control behavior. Unset Complete/Stream funcs panic
// on call; unset metadata funcs return zero-ish defaults.
// All methods are safe for concurrent use.
type MockProvider struct {
	CompleteFunc func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	StreamFunc   func(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error)
	Roles        []provider.MessageRole

	mu       sync.Mutex
	requests []provider.CompletionRequest
}

// Complete delegates to CompleteFunc and records the request.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.record(req)
	return m.CompleteFunc(ctx, req)
}

// Stream delegates to StreamFunc and records the request.
func (m *MockProvider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	m.record(req)
	return m.StreamFunc(ctx, req)
}

// ContextWindowSize returns a fixed window.
func (m *MockProvider) ContextWindowSize() int { return 8192 }

// ModelName returns "mock".
func (m *MockProvider) ModelName() string { return "mock" }

// SupportedRoles returns Roles, or every role when Roles is empty.
func (m *MockProvider) SupportedRoles() []provider.MessageRole {
	if len(m.Roles) == 0 {
		return []provider.MessageRole{
			provider.MessageRoleSystem,
			provider.MessageRoleUser,
			provider.MessageRoleAssistant,
			provider.MessageRoleToolResponse,
		}
	}
	return m.Roles
}

// Requests returns a copy of every request received so far.
func (m *MockProvider) Requests() []provider.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]provider.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockProvider) record(req provider.CompletionRequest) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
}

// Scripted returns a MockProvider whose Complete returns each reply in turn.
// Once the replies are exhausted the last one is repeated.
func Scripted(replies ...string) *MockProvider {
	var (
		mu sync.Mutex
		i  int
	)
	m := &MockProvider{}
	m.CompleteFunc = func(_ context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(replies) == 0 {
			return provider.CompletionResponse{FinishReason: provider.FinishReasonStop}, nil
		}
		r := replies[min(i, len(replies)-1)]
		i++
		return provider.CompletionResponse{Content: r, FinishReason: provider.FinishReasonStop}, nil
	}
	m.StreamFunc = func(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
		resp, err := m.CompleteFunc(ctx, req)
		if err != nil {
			return nil, err
		}
		ch := make(chan provider.StreamChunk, 2)
		ch <- provider.StreamChunk{Content: resp.Content}
		ch <- provider.StreamChunk{FinishReason: resp.FinishReason}
		close(ch)
		return ch, nil
	}
	return m
}

// Interface guards.
var (
	_ provider.Provider   = (*MockProvider)(nil)
	_ provider.RoleMapper = (*MockProvider)(nil)
)
