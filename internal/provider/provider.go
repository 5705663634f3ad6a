// Package provider defines the Provider interface for communicating with LLMs,
// the role-tagged message model shared by every adapter, and a bounded retry
// wrapper for transient failures.
package provider

import "context"

// ServiceName is the AppContext service under which the configured
// provider module publishes itself.
const ServiceName = "llm.provider"

// Provider is the interface for communicating with an LLM.
// Concrete implementations live in separate packages (e.g., provider.openai_compatible)
// and typically also implement core.Module for lifecycle management.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Stream sends a completion request and returns a channel of chunks.
	// Initial connection errors are returned directly. Mid-stream errors
	// are delivered via StreamChunk.Err. Implementations must stop sending
	// and close the channel once ctx is done.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// ContextWindowSize returns the maximum context window in tokens.
	ContextWindowSize() int

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}

// RoleMapper is an optional interface for providers whose API lacks some of
// the roles used internally. SupportedRoles lists the roles the API accepts;
// everything else is remapped by RemapRoles before the request is sent.
type RoleMapper interface {
	SupportedRoles() []MessageRole
}

// HealthChecker is an optional interface for providers that can probe
// their backend without spending tokens.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
