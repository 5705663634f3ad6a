package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultPruneSchedule runs the session prune job every 15 minutes.
const DefaultPruneSchedule = "*/15 * * * *"

// SessionPruner deletes sessions idle for longer than maxIdle. It is the
// subset of session.Manager the prune job needs.
type SessionPruner interface {
	Prune(ctx context.Context, maxIdle time.Duration) (int, error)
}

// LiveSessionGauge receives the number of cached sessions after a prune.
type LiveSessionGauge interface {
	SetLiveSessions(n int)
}

// SessionPruneJob removes agent sessions that have been idle longer than
// MaxIdle from the session store.
type SessionPruneJob struct {
	Sessions     SessionPruner
	MaxIdle      time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = DefaultPruneSchedule

	// Gauge and Live are optional. When both are set the gauge is refreshed
	// after each run.
	Gauge LiveSessionGauge
	Live  func() int
}

// Compile-time interface check.
var _ Job = (*SessionPruneJob)(nil)

// Name implements Job.
func (j *SessionPruneJob) Name() string { return "session_prune" }

// Schedule implements Job.
func (j *SessionPruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultPruneSchedule
}

// Run prunes sessions idle longer than MaxIdle. A zero MaxIdle disables
// pruning.
func (j *SessionPruneJob) Run(ctx context.Context) error {
	if j.MaxIdle <= 0 {
		return nil
	}
	pruned, err := j.Sessions.Prune(ctx, j.MaxIdle)
	if err != nil {
		return fmt.Errorf("cron: session prune after %d deletions: %w", pruned, err)
	}
	if pruned > 0 && j.Logger != nil {
		j.Logger.Info("cron: pruned idle sessions", "count", pruned, "max_idle", j.MaxIdle)
	}
	if j.Gauge != nil && j.Live != nil {
		j.Gauge.SetLiveSessions(j.Live())
	}
	return nil
}
