package openaicompat

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kurisu/squadagent/internal/provider"
)

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	BaseURL       string            `yaml:"base_url"`
	APIKey        string            `yaml:"api_key"`
	APIKeyEnv     string            `yaml:"api_key_env"`
	Model         string            `yaml:"model"`
	ContextWindow int               `yaml:"context_window"`
	MaxTokens     int               `yaml:"max_tokens"`
	Headers       map[string]string `yaml:"headers"`
	Timeout       time.Duration     `yaml:"timeout"`

	// Roles lists the message roles the endpoint accepts. Others are
	// rewritten to user before sending. Defaults to system, user and
	// assistant.
	Roles []string    `yaml:"roles"`
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig controls retries of rate-limited or unavailable requests.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// defaults sets default values for unset fields.
func (c *Config) defaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.ContextWindow == 0 {
		c.ContextWindow = 4096
	}
	if c.BaseURL != "" {
		c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	}
	if c.APIKey == "" && c.APIKeyEnv != "" {
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
	if len(c.Roles) == 0 {
		c.Roles = []string{"system", "user", "assistant"}
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.Backoff == 0 {
		c.Retry.Backoff = time.Second
	}
}

// validate returns an error if required fields are missing.
func (c *Config) validate() error {
	if c.BaseURL == "" {
		return errMissingField("base_url")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("provider.openai_compatible: base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("provider.openai_compatible: base_url scheme must be http or https, got %q", u.Scheme)
	}
	if c.Model == "" {
		return errMissingField("model")
	}
	if c.ContextWindow < 0 {
		return fmt.Errorf("provider.openai_compatible: context_window must not be negative")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("provider.openai_compatible: max_tokens must not be negative")
	}
	for _, r := range c.Roles {
		switch provider.MessageRole(r) {
		case provider.MessageRoleSystem, provider.MessageRoleUser,
			provider.MessageRoleAssistant, provider.MessageRoleToolResponse:
		default:
			return fmt.Errorf("provider.openai_compatible: unknown role %q", r)
		}
	}
	return nil
}

func (c *Config) supportedRoles() []provider.MessageRole {
	out := make([]provider.MessageRole, len(c.Roles))
	for i, r := range c.Roles {
		out[i] = provider.MessageRole(r)
	}
	return out
}

// errMissingField returns a validation error for a missing required field.
func errMissingField(field string) error {
	return fmt.Errorf("provider.openai_compatible: %s is required", field)
}
