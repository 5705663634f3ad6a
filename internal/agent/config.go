package agent

import (
	"time"

	"github.com/kurisu/squadagent/internal/sandbox"
)

// Default values for LoopConfig.
const (
	DefaultMaxIterations   = 6
	DefaultMaxParseRetries = 3
	DefaultMaxErrorRetries = 5
	DefaultLoopThreshold   = 3
	DefaultTokenBudget     = 0 // 0 means unlimited.
	DefaultTimeout         = 10 * time.Minute
	DefaultMaxTokens       = 1500
)

// LoopConfig controls the behavior of the agent loop.
type LoopConfig struct {
	// MaxIterations is the maximum number of Thought/Code/Observation cycles
	// per turn. Reaching it ends the turn as incomplete.
	MaxIterations int

	// MaxParseRetries is how many consecutive unparseable model outputs are
	// tolerated. One more fails the run.
	MaxParseRetries int

	// MaxErrorRetries is how many consecutive failed executions are
	// tolerated. One more fails the run.
	MaxErrorRetries int

	// LoopThreshold is how many consecutive steps may repeat the same tool
	// call (name + args) before the loop is considered stuck.
	LoopThreshold int

	// TokenBudget is the cumulative token limit (input + output) per turn.
	// Zero means unlimited.
	TokenBudget int

	// Timeout is the maximum wall-clock duration of one turn.
	Timeout time.Duration

	// AuthorizedImports lists the modules code may import.
	AuthorizedImports []string

	// Stream requests token streaming from the provider.
	Stream bool

	// MaxTokens caps each model completion.
	MaxTokens int

	// Temperature is passed through to the provider when set.
	Temperature *float64
}

// withDefaults returns a copy with zero fields replaced by defaults.
func (c LoopConfig) withDefaults() LoopConfig {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.MaxParseRetries <= 0 {
		c.MaxParseRetries = DefaultMaxParseRetries
	}
	if c.MaxErrorRetries <= 0 {
		c.MaxErrorRetries = DefaultMaxErrorRetries
	}
	if c.LoopThreshold <= 0 {
		c.LoopThreshold = DefaultLoopThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.AuthorizedImports == nil {
		c.AuthorizedImports = sandbox.DefaultAuthorizedImports
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	return c
}
