package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrUnknownJob is returned by RunNow for an unregistered job name.
var ErrUnknownJob = errors.New("cron: unknown job")

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule checks a 5-field cron expression.
func ParseSchedule(expr string) error {
	_, err := parser.Parse(expr)
	return err
}

// entry is a registered job and its run state. lock keeps a job from
// overlapping itself; a tick that finds it held is skipped.
type entry struct {
	job    Job
	lock   sync.Mutex
	mu     sync.Mutex
	status JobStatus
}

// Scheduler manages periodic job execution using cron expressions.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries []*entry
	byName  map[string]*entry
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	now     func() time.Time
}

// NewScheduler creates a scheduler. Jobs must be registered before Start().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		byName: make(map[string]*entry),
		logger: logger,
		now:    time.Now,
	}
}

// RegisterJob adds a job to the scheduler. Must be called before Start().
// Duplicate names and invalid schedules are rejected.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.byName[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	if err := ParseSchedule(j.Schedule()); err != nil {
		return fmt.Errorf("cron: invalid schedule for job %q: %w", name, err)
	}

	e := &entry{job: j, status: JobStatus{Name: name, Schedule: j.Schedule()}}
	s.byName[name] = e
	s.entries = append(s.entries, e)
	return nil
}

// Start begins executing registered jobs. Jobs receive a context that is
// cancelled by Stop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("cron: scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(slogAdapter{s.logger})),
	)

	for _, e := range s.entries {
		if _, err := s.cron.AddFunc(e.job.Schedule(), func() { s.tick(e) }); err != nil {
			s.cancel()
			s.cron = nil
			return fmt.Errorf("cron: invalid schedule for job %q: %w", e.job.Name(), err)
		}
	}

	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.entries))
	return nil
}

// tick runs e unless its previous run is still in progress.
func (s *Scheduler) tick(e *entry) {
	if !e.lock.TryLock() {
		e.mu.Lock()
		e.status.Skipped++
		e.mu.Unlock()
		s.logger.Warn("cron: job still running, skipping tick", "job", e.job.Name())
		return
	}
	defer e.lock.Unlock()
	s.run(s.ctx, e)
}

func (s *Scheduler) run(ctx context.Context, e *entry) error {
	name := e.job.Name()
	start := s.now()
	s.logger.Debug("cron: job started", "job", name)
	err := e.job.Run(ctx)
	elapsed := s.now().Sub(start)

	e.mu.Lock()
	e.status.Runs++
	e.status.LastRun = start
	e.status.Duration = elapsed
	e.status.LastErr = ""
	if err != nil {
		e.status.LastErr = err.Error()
	}
	e.mu.Unlock()

	if err != nil {
		s.logger.Error("cron: job failed", "job", name, "error", err)
	} else {
		s.logger.Debug("cron: job completed", "job", name, "duration", elapsed)
	}
	return err
}

// RunNow runs the named job immediately and waits for it. It does not
// require the scheduler to be started.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.byName[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	return s.run(ctx, e)
}

// Status returns a snapshot of every job, in registration order.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	entries := append([]*entry(nil), s.entries...)
	s.mu.Unlock()

	out := make([]JobStatus, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.status)
		e.mu.Unlock()
	}
	return out
}

// Stop cancels running jobs and waits for them until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	cancel()
	select {
	case <-c.Stop().Done():
		s.logger.Info("cron: scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron: waiting for jobs: %w", ctx.Err())
	}
}

// slogAdapter lets robfig/cron log through slog.
type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Info(msg string, keysAndValues ...any) {
	a.l.Debug("cron: "+msg, keysAndValues...)
}

func (a slogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
