package gateway

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kurisu/squadagent/internal/agent"
	"github.com/kurisu/squadagent/internal/bot"
	"github.com/kurisu/squadagent/internal/core"
	"github.com/kurisu/squadagent/internal/provider"
	"github.com/kurisu/squadagent/internal/provider/providertest"
	"github.com/kurisu/squadagent/internal/runner"
	"github.com/kurisu/squadagent/internal/security"
	"github.com/kurisu/squadagent/internal/session"
)

// fakeProvider answers with its name and reports failErr from HealthCheck.
type fakeProvider struct {
	name    string
	failErr error
	checks  int
	mu      sync.Mutex
}

func (p *fakeProvider) Complete(_ context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
	return provider.CompletionResponse{Content: p.name}, nil
}

func (p *fakeProvider) Stream(_ context.Context, _ provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	ch := make(chan provider.StreamChunk, 1)
	ch <- provider.StreamChunk{Content: p.name}
	close(ch)
	return ch, nil
}

func (p *fakeProvider) ContextWindowSize() int { return 4096 }
func (p *fakeProvider) ModelName() string      { return p.name }

func (p *fakeProvider) HealthCheck(_ context.Context) error {
	p.mu.Lock()
	p.checks++
	p.mu.Unlock()
	return p.failErr
}

// fakeBot answers every question with a fixed reply.
type fakeBot struct {
	name  string
	caps  bot.Capability
	reply string
}

func (b *fakeBot) Name() string                 { return b.name }
func (b *fakeBot) Capabilities() bot.Capability { return b.caps }

func (b *fakeBot) Query(_ context.Context, text string) (string, error) {
	return b.reply + ":" + text, nil
}

func (b *fakeBot) Chat(_ context.Context, key, text string) (string, error) {
	return b.reply + ":" + key + ":" + text, nil
}

func (b *fakeBot) Stream(context.Context, string, string) (<-chan provider.StreamChunk, error) {
	return nil, bot.ErrUnsupported
}

func codeReply(code string) string {
	return "Thought: compute\nCode:\n```py\n" + code + "\n```<end_action>"
}

// harness is a gateway wired to an in-memory session store and a scripted
// model.
type harness struct {
	gw     *Gateway
	srv    *httptest.Server
	store  *session.MemStore
	mu     sync.Mutex
	events []security.AuditEvent
}

func (h *harness) auditTypes() []security.EventType {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]security.EventType, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.Type)
	}
	return out
}

type harnessOption func(*Config)

func withAuth(a AuthConfig) harnessOption {
	return func(c *Config) { c.Auth = a }
}

func withRate(rpm, burst int) harnessOption {
	return func(c *Config) { c.MessagesPerMinute, c.Burst = rpm, burst }
}

func newHarness(t *testing.T, replies []string, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{store: session.NewMemStore()}

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	appCtx := core.NewAppContext(logger, t.TempDir())

	audit := security.NewAuditLogger(security.AuditLoggerConfig{OnEvent: func(e security.AuditEvent) {
		h.mu.Lock()
		h.events = append(h.events, e)
		h.mu.Unlock()
	}})
	mgr, err := session.NewManager(h.store, session.ManagerConfig{Logger: logger, Audit: audit})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	p := providertest.Scripted(replies...)
	loop := agent.NewLoop(p, nil, agent.LoopConfig{}, agent.WithLogger(logger))
	appCtx.RegisterService(runner.ServiceName, runner.New(runner.Config{Loop: loop, Sessions: mgr, Logger: logger, Audit: audit}))
	appCtx.RegisterService(provider.ServiceName, provider.Provider(p))
	appCtx.RegisterService(security.ServiceAudit, audit)
	appCtx.RegisterService(bot.ServiceName, bot.NewSet(
		&fakeBot{name: "query", caps: bot.CapQuery, reply: "q"},
		&fakeBot{name: "chat", caps: bot.CapChat, reply: "c"},
		&fakeBot{name: "mute"},
	))

	g := &Gateway{}
	g.config = Config{
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(&g.config)
	}
	if err := g.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := g.resolveServices(); err != nil {
		t.Fatalf("resolveServices: %v", err)
	}
	g.startedAt = time.Now()
	h.gw = g
	h.srv = httptest.NewServer(g.buildRouter())
	t.Cleanup(h.srv.Close)
	return h
}

// do sends a request to the harness server.
func (h *harness) do(t *testing.T, method, path, body string, hdr map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, h.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := h.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
