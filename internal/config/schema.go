// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for squadagent.
package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kurisu/squadagent/internal/tools"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Agent     AgentConfig     `yaml:"agent"`
	Tools     tools.Config    `yaml:"tools"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Bots      BotsConfig      `yaml:"bots"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "provider.anthropic").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// AgentConfig tunes the agent loop and its sandbox. Zero values fall back
// to the loop defaults.
type AgentConfig struct {
	MaxIterations     int           `yaml:"max_iterations"`
	MaxParseRetries   int           `yaml:"max_parse_retries"`
	MaxErrorRetries   int           `yaml:"max_error_retries"`
	LoopThreshold     int           `yaml:"loop_threshold"`
	TokenBudget       int           `yaml:"token_budget"`
	MaxTokens         int           `yaml:"max_tokens"`
	Temperature       *float64      `yaml:"temperature"`
	StepTimeout       time.Duration `yaml:"step_timeout"`
	RunTimeout        time.Duration `yaml:"run_timeout"`
	MaxExecutionSteps uint64        `yaml:"max_execution_steps"`
	AuthorizedImports []string      `yaml:"authorized_imports"`
	SystemPromptFile  string        `yaml:"system_prompt_file"`
	Stream            bool          `yaml:"stream"`
}

// SessionsConfig controls the live session cache and idle pruning.
type SessionsConfig struct {
	CacheSize     int           `yaml:"cache_size"`
	MaxIdle       time.Duration `yaml:"max_idle"`
	PruneSchedule string        `yaml:"prune_schedule"`
}

// BotsConfig configures the retrieval bots.
type BotsConfig struct {
	// MemoryTokens bounds each chat bot conversation buffer.
	MemoryTokens int `yaml:"memory_tokens"`
	// MaxConversations caps how many chat buffers are kept.
	MaxConversations int `yaml:"max_conversations"`
}

// TelemetryConfig enables Prometheus metrics and OTLP tracing.
type TelemetryConfig struct {
	Metrics      bool              `yaml:"metrics"`
	OTLPEndpoint string            `yaml:"otlp_endpoint"`
	Insecure     bool              `yaml:"insecure"`
	ServiceName  string            `yaml:"service_name"`
	Headers      map[string]string `yaml:"headers,omitempty"`
}

// Default values applied by Defaults.
const (
	DefaultCacheSize   = 256
	DefaultMaxIdle     = 24 * time.Hour
	DefaultServiceName = "squadagent"
)

// Defaults fills zero values that are not owned by another package.
func (c *Config) Defaults() {
	if c.Sessions.CacheSize <= 0 {
		c.Sessions.CacheSize = DefaultCacheSize
	}
	if c.Sessions.MaxIdle == 0 {
		c.Sessions.MaxIdle = DefaultMaxIdle
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = DefaultServiceName
	}
}
