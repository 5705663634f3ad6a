package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kurisu/squadagent/internal/config"
	"github.com/kurisu/squadagent/internal/squad"
	"github.com/kurisu/squadagent/modules/store/sqlite"
	"github.com/kurisu/squadagent/pkg/app"
)

func indexCmd(g *globalFlags) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "index <dataset.json>",
		Short: "Rebuild the SQuAD full-text index from a dataset file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if dbPath == "" {
				dataDir := g.dataDir
				if dataDir == "" {
					dataDir = app.DefaultDataDir()
				}
				dbPath = sqlite.DefaultPath(dataDir)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			records, err := squad.LoadDataset(f)
			if err != nil {
				return err
			}

			db, err := sqlite.Open(ctx, dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			if err := db.Index().Build(ctx, records); err != nil {
				return err
			}
			n, err := db.Index().Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d records into %s\n", n, dbPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "database file (default <data-dir>/squadagent.db)")
	return cmd
}

func configCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and wire every module without serving",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				g.config = args[0]
			}
			a, err := g.build(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK: %s\n", a.ConfigPath)
			fmt.Fprintf(out, "  model: %s (context %d tokens)\n", a.Provider.ModelName(), a.Provider.ContextWindowSize())
			for _, id := range config.Resolve(a.Config) {
				fmt.Fprintf(out, "  module %s\n", id)
			}
			return nil
		},
	})
	return cmd
}
