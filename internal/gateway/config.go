package gateway

import (
	"errors"
	"time"
)

// DefaultExamples are the prompts offered to new users.
var DefaultExamples = []string{
	"What is on top of the Notre Dame building?",
	"Tell me what's on top of the Notre Dame building, and draw a picture of it.",
	"Draw a picture of whatever is on top of the Notre Dame building.",
}

// Config holds HTTP gateway configuration.
type Config struct {
	Bind            string        `yaml:"bind"`
	Auth            AuthConfig    `yaml:"auth"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MessagesPerMinute limits turns per session. Negative disables the limit.
	MessagesPerMinute int `yaml:"messages_per_minute"`

	// Burst is the number of turns a session may submit at once.
	Burst int `yaml:"burst"`

	// MaxBodyBytes caps request bodies and WebSocket frames.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// Examples are served at GET /api/examples.
	Examples []string `yaml:"examples"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	// Turns stream for as long as the agent runs.
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 15 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.MessagesPerMinute == 0 {
		c.MessagesPerMinute = 30
	}
	if c.Burst <= 0 {
		c.Burst = 3
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 64 << 10
	}
	if c.Examples == nil {
		c.Examples = DefaultExamples
	}
}

func (c *Config) validate() error {
	if (c.Auth.BasicUser == "") != (c.Auth.BasicPass == "") {
		return errors.New("gateway: auth.basic_user and auth.basic_pass must be set together")
	}
	return nil
}

// AuthConfig configures authentication for the API and admin endpoints.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}
