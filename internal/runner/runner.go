// Package runner executes agent turns against persisted sessions: it
// resolves the session, serializes turns on it, streams the run and saves
// the step log afterwards. The gateway, the terminal chat and the MCP
// server all submit work through a Runner.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kurisu/squadagent/internal/agent"
	"github.com/kurisu/squadagent/internal/security"
	"github.com/kurisu/squadagent/internal/session"
)

// ServiceName is the service registry key of the shared Runner.
const ServiceName = "agent.runner"

// ErrEmptyTask is returned when a turn is submitted without text.
var ErrEmptyTask = errors.New("runner: empty task")

// LiveSessionGauge receives the number of cached sessions after each turn.
type LiveSessionGauge interface {
	SetLiveSessions(n int)
}

// Config groups the dependencies of a Runner.
type Config struct {
	Loop     *agent.Loop
	Sessions *session.Manager
	Logger   *slog.Logger
	Audit    *security.AuditLogger
	Gauge    LiveSessionGauge
}

// Outcome describes a finished turn.
type Outcome struct {
	SessionID string
	Created   bool
	Result    agent.Result
}

// Runner runs turns. It is safe for concurrent use; turns on the same
// session wait for each other.
type Runner struct {
	loop     *agent.Loop
	sessions *session.Manager
	logger   *slog.Logger
	audit    *security.AuditLogger
	gauge    LiveSessionGauge
}

// New creates a Runner.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		loop:     cfg.Loop,
		sessions: cfg.Sessions,
		logger:   logger,
		audit:    cfg.Audit,
		gauge:    cfg.Gauge,
	}
}

// Sessions returns the session manager turns run against.
func (r *Runner) Sessions() *session.Manager { return r.sessions }

// Loop returns the agent loop.
func (r *Runner) Loop() *agent.Loop { return r.loop }

// Turn runs text as one turn of session id and passes every event to emit.
// An empty id or session.NewID starts a new session. When emit returns
// false the turn is cancelled; the steps committed so far are still saved.
// The returned error reports session failures only: the run's own outcome
// is in Outcome.Result.
func (r *Runner) Turn(ctx context.Context, id, text string, emit func(agent.Event) bool) (Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return Outcome{}, ErrEmptyTask
	}

	fresh := id == "" || id == session.NewID
	if !fresh {
		if !session.ValidID(id) {
			return Outcome{}, fmt.Errorf("%w: %q", session.ErrInvalidID, id)
		}
		unlock := r.sessions.Lock(id)
		defer unlock()
	}

	s, created, err := r.sessions.Open(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if fresh {
		unlock := r.sessions.Lock(s.ID)
		defer unlock()
	}

	run := agent.ResumeRun(text, s.Log, s.Env)
	logger := r.logger.With("session_id", s.ID, "run_id", run.ID)
	logger.Info("turn started", "created", created, "prior_steps", s.Log.Len())
	r.audit.Log(security.AuditEvent{Type: security.EventRunStart, SessionID: s.ID, RunID: run.ID})

	res := agent.Result{State: agent.StateFailed, StopReason: agent.StopReasonCancelled}
	for ev := range r.loop.Stream(ctx, run) {
		if ev.Type == agent.EventDone && ev.Result != nil {
			res = *ev.Result
		}
		if emit != nil && !emit(ev) {
			break
		}
	}

	// The client may be gone; the log is saved regardless.
	saveCtx := context.WithoutCancel(ctx)
	if err := r.sessions.Save(saveCtx, s); err != nil {
		logger.Error("saving session failed", "error", err)
		return Outcome{SessionID: s.ID, Created: created, Result: res}, err
	}
	if r.gauge != nil {
		r.gauge.SetLiveSessions(r.sessions.Len())
	}

	r.audit.Log(security.AuditEvent{
		Type:      security.EventRunEnd,
		SessionID: s.ID,
		RunID:     run.ID,
		Detail:    string(res.StopReason),
	})
	return Outcome{SessionID: s.ID, Created: created, Result: res}, nil
}

// Ask runs a turn and returns its outcome without streaming.
func (r *Runner) Ask(ctx context.Context, id, text string) (Outcome, error) {
	return r.Turn(ctx, id, text, nil)
}
