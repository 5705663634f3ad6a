package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/kurisu/squadagent/internal/core"
	"github.com/kurisu/squadagent/internal/cron"
	"github.com/kurisu/squadagent/internal/tools"
)

// providerNamespace is the module namespace of model providers.
const providerNamespace = "provider"

// Validate checks the structural validity of a Config. It verifies the
// version field, that every module ID is registered, that exactly one
// provider module is configured, and the agent, tools and sessions
// sections. All problems are reported together.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	providers := 0
	for id := range cfg.Modules {
		info, ok := core.LookupModule(id)
		if !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
			continue
		}
		if info.ID.Namespace() == providerNamespace {
			providers++
		}
	}
	if len(cfg.Modules) > 0 && providers != 1 {
		var compiled []string
		for _, info := range core.ModulesIn(providerNamespace) {
			compiled = append(compiled, string(info.ID))
		}
		errs = append(errs, fmt.Errorf("config: exactly one provider module must be configured, found %d (available: %s)",
			providers, strings.Join(compiled, ", ")))
	}

	errs = append(errs, validateAgent(cfg.Agent)...)
	errs = append(errs, validateTools(cfg.Tools)...)
	errs = append(errs, validateSessions(cfg.Sessions)...)

	return errors.Join(errs...)
}

func validateAgent(a AgentConfig) []error {
	var errs []error
	for name, v := range map[string]int{
		"max_iterations":    a.MaxIterations,
		"max_parse_retries": a.MaxParseRetries,
		"max_error_retries": a.MaxErrorRetries,
		"loop_threshold":    a.LoopThreshold,
		"token_budget":      a.TokenBudget,
		"max_tokens":        a.MaxTokens,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("config: agent.%s must not be negative, got %d", name, v))
		}
	}
	if a.StepTimeout < 0 || a.RunTimeout < 0 {
		errs = append(errs, errors.New("config: agent timeouts must not be negative"))
	}
	if a.Temperature != nil && (*a.Temperature < 0 || *a.Temperature > 2) {
		errs = append(errs, fmt.Errorf("config: agent.temperature %v out of range [0, 2]", *a.Temperature))
	}
	if a.SystemPromptFile != "" {
		if _, err := os.Stat(a.SystemPromptFile); err != nil {
			errs = append(errs, fmt.Errorf("config: agent.system_prompt_file: %w", err))
		}
	}
	return errs
}

func validateTools(t tools.Config) []error {
	var errs []error
	seen := make(map[string]bool)
	for _, name := range t.Enabled {
		if !slices.Contains(tools.Names, name) {
			errs = append(errs, fmt.Errorf("config: tools.enabled: unknown tool %q", name))
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("config: tools.enabled: %q listed twice", name))
		}
		seen[name] = true
	}
	if seen[tools.NameWebSearch] && t.WebSearch.Endpoint == "" {
		errs = append(errs, errors.New("config: tools.web_search.endpoint is required when web_search is enabled"))
	}
	return errs
}

func validateSessions(s SessionsConfig) []error {
	var errs []error
	if s.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("config: sessions.cache_size must not be negative, got %d", s.CacheSize))
	}
	if s.PruneSchedule != "" {
		if err := cron.ParseSchedule(s.PruneSchedule); err != nil {
			errs = append(errs, fmt.Errorf("config: sessions.prune_schedule: %w", err))
		}
	}
	return errs
}
