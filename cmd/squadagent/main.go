// Package main is the entry point for the squadagent CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kurisu/squadagent/internal/core"
	"github.com/kurisu/squadagent/pkg/app"

	_ "github.com/kurisu/squadagent/internal/gateway"
	_ "github.com/kurisu/squadagent/modules/provider/anthropic"
	_ "github.com/kurisu/squadagent/modules/provider/openai_compatible"
	_ "github.com/kurisu/squadagent/modules/store/sqlite"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

// globalFlags are shared by every command that builds the app.
type globalFlags struct {
	config   string
	dataDir  string
	logLevel string
}

func rootCmd() *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:           "squadagent",
		Short:         "A code-acting agent that answers questions over a SQuAD index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.config, "config", "c", "", "path to configuration file")
	root.PersistentFlags().StringVar(&g.dataDir, "data-dir", "", "persistent data directory (default $XDG_DATA_HOME/squadagent)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "minimum log level: debug, info, warn, error")

	root.AddCommand(
		versionCmd(),
		startCmd(&g),
		askCmd(&g),
		chatCmd(&g),
		indexCmd(&g),
		configCmd(&g),
		mcpCmd(&g),
		serviceCmd(&g),
	)
	return root
}

// params turns the global flags into app.Params.
func (g *globalFlags) params(headless bool) (app.Params, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.logLevel)); err != nil {
		return app.Params{}, fmt.Errorf("invalid --log-level %q: %w", g.logLevel, err)
	}
	return app.Params{
		ConfigPath: g.config,
		DataDir:    g.dataDir,
		LogLevel:   level,
		Headless:   headless,
		Version:    version,
	}, nil
}

// build wires the app for a command. Headless apps never bind the
// gateway port.
func (g *globalFlags) build(ctx context.Context, headless bool) (*app.App, error) {
	p, err := g.params(headless)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, p)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "squadagent %s (commit: %s, built: %s)\n", version, commit, date)
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range core.Modules() {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func startCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the gateway and every configured module",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := g.params(false)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context(), p)
		},
	}
}
