package tools

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/kurisu/squadagent/internal/security"
	"github.com/kurisu/squadagent/internal/squad"
	"github.com/kurisu/squadagent/internal/tool"
)

var (
	// ErrUnknownTool is returned when the config enables a tool that does
	// not exist.
	ErrUnknownTool = errors.New("tools: unknown tool")

	// ErrMissingDependency is returned when an enabled tool lacks the
	// collaborator or setting it needs.
	ErrMissingDependency = errors.New("tools: missing dependency")
)

// Names lists every tool this package can build.
var Names = []string{NameSquadRetriever, NameSquadQuery, NameImageGenerator, NameWebSearch}

// Config selects and configures tools.
type Config struct {
	Enabled        []string                 `yaml:"enabled"`
	ImageGenerator ImageGeneratorConfig     `yaml:"image_generator"`
	WebSearch      WebSearchConfig          `yaml:"web_search"`
	URLFilter      security.URLFilterConfig `yaml:"url_filter"`
}

// EnabledOrDefault returns the enabled tool names, squad_retriever alone
// when none is configured.
func (c Config) EnabledOrDefault() []string {
	if len(c.Enabled) == 0 {
		return []string{NameSquadRetriever}
	}
	return c.Enabled
}

// Deps are the collaborators tools are built from.
type Deps struct {
	Retriever squad.Retriever
	Querier   Querier
	DataDir   string
	Logger    *slog.Logger
}

// Build creates the enabled tools in configuration order.
func Build(cfg Config, deps Deps) ([]tool.Tool, error) {
	filter := security.NewURLFilter(cfg.URLFilter)

	var out []tool.Tool
	for _, name := range cfg.EnabledOrDefault() {
		switch name {
		case NameSquadRetriever:
			if deps.Retriever == nil {
				return nil, fmt.Errorf("%w: %s needs a retriever", ErrMissingDependency, name)
			}
			out = append(out, NewSquadRetriever(deps.Retriever))
		case NameSquadQuery:
			if deps.Querier == nil {
				return nil, fmt.Errorf("%w: %s needs a query engine", ErrMissingDependency, name)
			}
			out = append(out, NewSquadQuery(deps.Querier))
		case NameImageGenerator:
			out = append(out, NewImageGenerator(cfg.ImageGenerator, deps.DataDir, filter))
		case NameWebSearch:
			if cfg.WebSearch.Endpoint == "" {
				return nil, fmt.Errorf("%w: %s needs tools.web_search.endpoint", ErrMissingDependency, name)
			}
			out = append(out, NewWebSearch(cfg.WebSearch, filter, deps.Logger))
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
		}
	}
	return out, nil
}

// Register builds the enabled tools and adds them to reg.
func Register(reg *tool.Registry, cfg Config, deps Deps) error {
	built, err := Build(cfg, deps)
	if err != nil {
		return err
	}
	for _, t := range built {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}
