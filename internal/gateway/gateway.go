// Package gateway serves the agent over HTTP: NDJSON and WebSocket turn
// streaming, session inspection, bot answers, health and Prometheus
// metrics. It binds to loopback by default and follows the module system
// pattern.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kurisu/squadagent/internal/bot"
	"github.com/kurisu/squadagent/internal/core"
	"github.com/kurisu/squadagent/internal/provider"
	"github.com/kurisu/squadagent/internal/runner"
	"github.com/kurisu/squadagent/internal/security"
	"github.com/kurisu/squadagent/internal/telemetry"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// Gateway is the HTTP gateway module. It is a leaf module: nothing
// imports it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	limiter   *sessionLimiter
	health    healthProbe
	startedAt time.Time

	// Resolved lazily at Start() via service registry.
	runner   *runner.Runner
	bots     *bot.Set
	metrics  *telemetry.Metrics
	provider provider.Provider
	audit    *security.AuditLogger
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.limiter = newSessionLimiter(g.config.MessagesPerMinute, g.config.Burst)

	if r, ok := core.Service[*security.Redactor](ctx, security.ServiceRedactor); ok {
		r.AddLiteral(g.config.Auth.BearerToken)
		r.AddLiteral(g.config.Auth.BasicPass)
	}
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	return g.config.validate()
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	if err := g.resolveServices(); err != nil {
		return err
	}
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// resolveServices binds the runner (required) and the optional services.
func (g *Gateway) resolveServices() error {
	r, ok := core.Service[*runner.Runner](g.appCtx, runner.ServiceName)
	if !ok {
		return fmt.Errorf("gateway: service %q not registered", runner.ServiceName)
	}
	g.runner = r
	g.bots, _ = core.Service[*bot.Set](g.appCtx, bot.ServiceName)
	g.metrics, _ = core.Service[*telemetry.Metrics](g.appCtx, telemetry.MetricsServiceName)
	g.provider, _ = core.Service[provider.Provider](g.appCtx, provider.ServiceName)
	g.audit, _ = core.Service[*security.AuditLogger](g.appCtx, security.ServiceAudit)
	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
