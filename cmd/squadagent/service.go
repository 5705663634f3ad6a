package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/kurisu/squadagent/pkg/app"
)

// program adapts the app lifecycle to the OS service manager. Start must
// not block, so the app runs on its own goroutine until Stop cancels it.
type program struct {
	params app.Params
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	a, err := app.Build(ctx, p.params)
	if err != nil {
		cancel()
		return err
	}
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() { p.done <- a.Run(ctx) }()
	return nil
}

func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

// serviceConfig describes the installed unit. The config path is made
// absolute because service managers start with a different working
// directory.
func serviceConfig(g *globalFlags) (*service.Config, error) {
	args := []string{"service", "run", "--log-level", g.logLevel}
	if g.config != "" {
		abs, err := filepath.Abs(g.config)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", abs)
	}
	if g.dataDir != "" {
		abs, err := filepath.Abs(g.dataDir)
		if err != nil {
			return nil, err
		}
		args = append(args, "--data-dir", abs)
	}
	return &service.Config{
		Name:        "squadagent",
		DisplayName: "squadagent",
		Description: "Code-acting question answering agent with an HTTP gateway",
		Arguments:   args,
		Option:      service.KeyValue{"UserService": true},
	}, nil
}

func newService(g *globalFlags) (service.Service, error) {
	p, err := g.params(false)
	if err != nil {
		return nil, err
	}
	cfg, err := serviceConfig(g)
	if err != nil {
		return nil, err
	}
	return service.New(&program{params: p}, cfg)
}

func serviceCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install, remove or run squadagent as a system service",
	}
	action := func(use, short string, fn func(service.Service) error, done string) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, err := newService(g)
				if err != nil {
					return err
				}
				if err := fn(svc); err != nil {
					return fmt.Errorf("service %s: %w", use, err)
				}
				if done != "" {
					fmt.Fprintln(cmd.OutOrStdout(), done)
				}
				return nil
			},
		}
	}
	cmd.AddCommand(
		action("install", "Install the user service", service.Service.Install, "Service installed."),
		action("uninstall", "Remove the user service", service.Service.Uninstall, "Service removed."),
		action("run", "Run under the service manager", service.Service.Run, ""),
	)
	return cmd
}
