// Package app assembles squadagent from its configuration: it loads the
// configured modules, builds the agent loop, session manager, bots and
// maintenance jobs on top of the services they register, and runs them
// under one lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/kurisu/squadagent/internal/agent"
	"github.com/kurisu/squadagent/internal/bot"
	"github.com/kurisu/squadagent/internal/config"
	"github.com/kurisu/squadagent/internal/core"
	"github.com/kurisu/squadagent/internal/cron"
	"github.com/kurisu/squadagent/internal/provider"
	"github.com/kurisu/squadagent/internal/runner"
	"github.com/kurisu/squadagent/internal/sandbox"
	"github.com/kurisu/squadagent/internal/security"
	"github.com/kurisu/squadagent/internal/session"
	"github.com/kurisu/squadagent/internal/squad"
	"github.com/kurisu/squadagent/internal/telemetry"
	"github.com/kurisu/squadagent/internal/tool"
	"github.com/kurisu/squadagent/internal/tools"
	"github.com/kurisu/squadagent/modules/store/sqlite"
	"go.opentelemetry.io/otel/trace"
)

// ServiceScheduler is the registry key of the maintenance scheduler.
const ServiceScheduler = "cron.scheduler"

const (
	// auditFile is the JSONL audit trail under the data directory.
	auditFile    = "audit.jsonl"
	flushTimeout = 5 * time.Second
)

// Params configures Build.
type Params struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, the standard search path is used.
	ConfigPath string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer

	// Headless skips modules in the gateway namespace, for one-shot and
	// stdio commands that must not bind a port.
	Headless bool

	// Version is reported in traces.
	Version string
}

// App is a fully wired squadagent instance.
type App struct {
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger
	Core       *core.App
	Provider   provider.Provider
	Runner     *runner.Runner
	Bots       *bot.Set
	Metrics    *telemetry.Metrics
	Scheduler  *cron.Scheduler

	// closers run after every module has stopped.
	closers []func(context.Context) error
}

// Build loads configuration and wires every component. The returned App
// has not been started.
func Build(ctx context.Context, p Params) (*App, error) {
	cfgPath, err := config.Find(p.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("%w (searched: %v)", err, config.SearchPaths())
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	dataDir := p.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("app: creating data dir: %w", err)
	}

	// Every log line passes the redactor so API keys never reach the output.
	redactor := security.NewRedactor()
	out := p.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger := slog.New(security.NewRedactingHandler(
		slog.NewTextHandler(out, &slog.HandlerOptions{Level: p.LogLevel}), redactor))

	auditOut, err := os.OpenFile(filepath.Join(dataDir, auditFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("app: opening audit log: %w", err)
	}
	audit := security.NewAuditLogger(security.AuditLoggerConfig{Writer: auditOut, Redactor: redactor})

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService(security.ServiceRedactor, redactor)
	appCtx.RegisterService(security.ServiceAudit, audit)

	a := &App{Config: cfg, ConfigPath: cfgPath, Logger: logger}
	if cfg.Telemetry.Metrics {
		a.Metrics = telemetry.NewMetrics()
		appCtx.RegisterService(telemetry.MetricsServiceName, a.Metrics)
	}
	tp, shutdownTracing, err := telemetry.NewTracerProvider(ctx, telemetry.TracingConfig{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Headers:     cfg.Telemetry.Headers,
		Version:     p.Version,
	})
	if err != nil {
		_ = auditOut.Close()
		return nil, err
	}

	a.Core = core.NewApp(appCtx)
	if err := a.Core.LoadModules(moduleIDs(cfg, p.Headless)); err != nil {
		_ = auditOut.Close()
		return nil, err
	}
	a.closers = []func(context.Context) error{
		shutdownTracing,
		func(context.Context) error { return auditOut.Close() },
	}

	if err := a.wire(appCtx, tp, audit); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// moduleIDs returns the configured module IDs, without the gateway when
// headless.
func moduleIDs(cfg *config.Config, headless bool) []string {
	ids := config.Resolve(cfg)
	if !headless {
		return ids
	}
	return slices.DeleteFunc(ids, func(id string) bool {
		return core.ModuleID(id).Namespace() == "gateway"
	})
}

// wire builds the agent stack on the services registered by the modules.
func (a *App) wire(appCtx *core.AppContext, tp trace.TracerProvider, audit *security.AuditLogger) error {
	cfg, logger := a.Config, a.Logger

	p, ok := core.Service[provider.Provider](appCtx, provider.ServiceName)
	if !ok {
		return errors.New("app: no provider module registered a model client")
	}
	a.Provider = p

	retriever, _ := core.Service[squad.Retriever](appCtx, sqlite.ServiceRetriever)
	deps := tools.Deps{Retriever: retriever, DataDir: appCtx.DataDir, Logger: logger.With("component", "tools")}
	var engine *squad.QueryEngine
	if retriever != nil {
		engine = squad.NewQueryEngine(retriever, p)
		deps.Querier = engine
		a.Bots = bot.NewSet(
			bot.NewQueryBot(engine),
			bot.NewChatBot(retriever, p, bot.NewMemory(cfg.Bots.MemoryTokens, cfg.Bots.MaxConversations)),
		)
		appCtx.RegisterService(bot.ServiceName, a.Bots)
	} else {
		logger.Warn("no retriever registered, squad tools and bots are unavailable")
	}

	reg := tool.NewRegistry()
	if err := tools.Register(reg, cfg.Tools, deps); err != nil {
		return err
	}

	loop, err := a.buildLoop(p, reg, tp)
	if err != nil {
		return err
	}

	store, ok := core.Service[session.Store](appCtx, sqlite.ServiceSessionStore)
	if !ok {
		logger.Warn("no session store registered, sessions are kept in memory only")
		store = session.NewMemStore()
	}
	mgr, err := session.NewManager(store, session.ManagerConfig{
		CacheSize: cfg.Sessions.CacheSize,
		Logger:    logger.With("component", "sessions"),
		Audit:     audit,
	})
	if err != nil {
		return err
	}

	rc := runner.Config{Loop: loop, Sessions: mgr, Logger: logger.With("component", "runner"), Audit: audit}
	if a.Metrics != nil {
		rc.Gauge = a.Metrics
	}
	a.Runner = runner.New(rc)
	appCtx.RegisterService(runner.ServiceName, a.Runner)

	a.Scheduler = cron.NewScheduler(logger.With("component", "cron"))
	prune := &cron.SessionPruneJob{
		Sessions:     mgr,
		MaxIdle:      cfg.Sessions.MaxIdle,
		Logger:       logger,
		ScheduleExpr: cfg.Sessions.PruneSchedule,
		Live:         mgr.Len,
	}
	if a.Metrics != nil {
		prune.Gauge = a.Metrics
	}
	if err := a.Scheduler.RegisterJob(prune); err != nil {
		return err
	}
	appCtx.RegisterService(ServiceScheduler, a.Scheduler)
	a.Core.AppendModule("runtime.cron", &schedulerModule{a.Scheduler})
	return nil
}

func (a *App) buildLoop(p provider.Provider, reg *tool.Registry, tp trace.TracerProvider) (*agent.Loop, error) {
	ac := a.Config.Agent
	opts := []agent.Option{
		agent.WithLogger(a.Logger.With("component", "agent")),
		agent.WithExecutorConfig(sandbox.Config{
			MaxExecutionSteps: ac.MaxExecutionSteps,
			StepTimeout:       ac.StepTimeout,
			Logger:            a.Logger.With("component", "sandbox"),
		}),
		agent.WithObserver(telemetry.NewObserver(a.Metrics, tp)),
	}
	if ac.SystemPromptFile != "" {
		prompt, err := os.ReadFile(ac.SystemPromptFile)
		if err != nil {
			return nil, fmt.Errorf("app: reading system prompt: %w", err)
		}
		opts = append(opts, agent.WithSystemPrompt(string(prompt)))
	}

	return agent.NewLoop(p, reg, agent.LoopConfig{
		MaxIterations:     ac.MaxIterations,
		MaxParseRetries:   ac.MaxParseRetries,
		MaxErrorRetries:   ac.MaxErrorRetries,
		LoopThreshold:     ac.LoopThreshold,
		TokenBudget:       ac.TokenBudget,
		Timeout:           ac.RunTimeout,
		AuthorizedImports: ac.AuthorizedImports,
		Stream:            ac.Stream,
		MaxTokens:         ac.MaxTokens,
		Temperature:       ac.Temperature,
	}, opts...), nil
}

// Start starts every module, the scheduler included.
func (a *App) Start() error { return a.Core.Start() }

// Stop stops every started module in reverse order, then flushes traces
// and closes the audit log.
func (a *App) Stop() {
	a.Core.Stop()
	a.flush()
}

// Run starts the app and blocks until ctx is done or a shutdown signal
// arrives.
func (a *App) Run(ctx context.Context) error {
	defer a.flush()
	return a.Core.Run(ctx)
}

// Close releases an app that was built but never started.
func (a *App) Close() {
	a.Core.Discard()
	a.flush()
}

func (a *App) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for _, c := range a.closers {
		if err := c(ctx); err != nil {
			a.Logger.Warn("shutdown flush failed", "error", err)
		}
	}
	a.closers = nil
}

// DefaultDataDir returns the default persistent data directory:
// $XDG_DATA_HOME/squadagent, or ~/.local/share/squadagent.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "squadagent")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "squadagent")
}
