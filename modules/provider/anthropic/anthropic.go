// Package anthropic implements the provider.anthropic module, bridging the
// agent loop to the Anthropic Messages API for completions and streaming.
package anthropic

import (
	"errors"
	"log/slog"
	"net/http"
	"os"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"gopkg.in/yaml.v3"

	"github.com/kurisu/squadagent/internal/core"
	"github.com/kurisu/squadagent/internal/provider"
	"github.com/kurisu/squadagent/internal/security"
)

func init() {
	core.RegisterModule(&Anthropic{})
}

// Interface guards.
var (
	_ core.Module            = (*Anthropic)(nil)
	_ core.Configurable      = (*Anthropic)(nil)
	_ core.Provisioner       = (*Anthropic)(nil)
	_ core.Validator         = (*Anthropic)(nil)
	_ provider.Provider      = (*Anthropic)(nil)
	_ provider.RoleMapper    = (*Anthropic)(nil)
	_ provider.HealthChecker = (*Anthropic)(nil)
)

// Anthropic is the provider.anthropic module.
type Anthropic struct {
	config        Config
	client        *sdkanthropic.Client
	logger        *slog.Logger
	contextWindow int
}

// ModuleInfo implements core.Module.
func (a *Anthropic) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.anthropic",
		New: func() core.Module { return &Anthropic{} },
	}
}

// Configure implements core.Configurable.
func (a *Anthropic) Configure(node *yaml.Node) error {
	if err := node.Decode(&a.config); err != nil {
		return err
	}
	a.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (a *Anthropic) Provision(ctx *core.AppContext) error {
	a.config.defaults()
	a.logger = ctx.Logger

	apiKey := a.config.resolveAPIKey(os.LookupEnv)
	if r, ok := core.Service[*security.Redactor](ctx, security.ServiceRedactor); ok && apiKey != "" {
		r.AddLiteral(apiKey)
	}

	opts := []option.RequestOption{
		option.WithHTTPClient(&http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: a.config.Timeout},
		}),
		// Retries happen in provider.WithRetry so they are counted once.
		option.WithMaxRetries(0),
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if a.config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(a.config.BaseURL))
	}
	client := sdkanthropic.NewClient(opts...)
	a.client = &client

	a.contextWindow = a.config.contextWindowForModel()

	ctx.RegisterService(provider.ServiceName, provider.WithRetry(a, provider.RetryConfig{
		MaxAttempts: a.config.Retry.MaxAttempts,
		Backoff:     a.config.Retry.Backoff,
	}))
	a.logger.Info("provider ready", "model", a.config.Model, "context_window", a.contextWindow)
	return nil
}

// Validate implements core.Validator.
func (a *Anthropic) Validate() error {
	if a.config.Model == "" {
		return errors.New("provider.anthropic: model must not be empty")
	}
	if a.config.MaxTokens < 0 {
		return errors.New("provider.anthropic: max_tokens must not be negative")
	}
	if a.client == nil {
		return errors.New("provider.anthropic: client not initialized (Provision not called)")
	}
	return nil
}

// ContextWindowSize implements provider.Provider.
func (a *Anthropic) ContextWindowSize() int {
	return a.contextWindow
}

// ModelName implements provider.Provider.
func (a *Anthropic) ModelName() string {
	return a.config.Model
}

// SupportedRoles implements provider.RoleMapper. Observations arrive as
// user turns.
func (a *Anthropic) SupportedRoles() []provider.MessageRole {
	return []provider.MessageRole{provider.MessageRoleSystem, provider.MessageRoleUser, provider.MessageRoleAssistant}
}
