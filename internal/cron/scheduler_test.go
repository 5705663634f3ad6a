package cron

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// simpleJob is a minimal Job for scheduler tests.
type simpleJob struct {
	name     string
	schedule string
	runFunc  func(ctx context.Context) error
}

func (j *simpleJob) Name() string     { return j.name }
func (j *simpleJob) Schedule() string { return j.schedule }
func (j *simpleJob) Run(ctx context.Context) error {
	if j.runFunc != nil {
		return j.runFunc(ctx)
	}
	return nil
}

func TestScheduler_RegisterJob(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		jobs    []Job
		wantErr bool
	}{
		{"valid", []Job{&simpleJob{name: "a", schedule: "* * * * *"}}, false},
		{"duplicate name", []Job{
			&simpleJob{name: "a", schedule: "* * * * *"},
			&simpleJob{name: "a", schedule: "*/5 * * * *"},
		}, true},
		{"invalid schedule", []Job{&simpleJob{name: "bad", schedule: "invalid"}}, true},
		{"six fields rejected", []Job{&simpleJob{name: "secs", schedule: "0 * * * * *"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewScheduler(slog.Default())
			var err error
			for _, j := range tt.jobs {
				if err = s.RegisterJob(j); err != nil {
					break
				}
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default())
	_ = s.RegisterJob(&simpleJob{name: "noop", schedule: "* * * * *"})

	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second start should fail")
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	// Stop is idempotent.
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	t.Parallel()

	if err := NewScheduler(nil).Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestScheduler_RunNowRecordsStatus(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default())
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	failing := errors.New("store offline")
	var fail atomic.Bool
	_ = s.RegisterJob(&simpleJob{name: "prune", schedule: "*/5 * * * *", runFunc: func(context.Context) error {
		if fail.Load() {
			return failing
		}
		return nil
	}})

	if err := s.RunNow(context.Background(), "prune"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	fail.Store(true)
	if err := s.RunNow(context.Background(), "prune"); !errors.Is(err, failing) {
		t.Fatalf("RunNow err = %v, want %v", err, failing)
	}

	st := s.Status()
	if len(st) != 1 {
		t.Fatalf("status = %+v", st)
	}
	got := st[0]
	if got.Name != "prune" || got.Schedule != "*/5 * * * *" || got.Runs != 2 {
		t.Errorf("status = %+v", got)
	}
	if got.LastErr != "store offline" || got.Duration != time.Second || got.LastRun.IsZero() {
		t.Errorf("last run = %+v", got)
	}
}

func TestScheduler_RunNowUnknown(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	if err := s.RunNow(context.Background(), "missing"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("err = %v, want ErrUnknownJob", err)
	}
}

func TestScheduler_TickSkipsOverlap(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32

	s := NewScheduler(slog.Default())
	_ = s.RegisterJob(&simpleJob{name: "slow", schedule: "* * * * *", runFunc: func(context.Context) error {
		runs.Add(1)
		close(started)
		<-release
		return nil
	}})
	s.ctx = context.Background()

	e := s.byName["slow"]
	done := make(chan struct{})
	go func() {
		s.tick(e)
		close(done)
	}()
	<-started
	s.tick(e)
	close(release)
	<-done

	if runs.Load() != 1 {
		t.Errorf("runs = %d, want 1", runs.Load())
	}
	if st := s.Status()[0]; st.Skipped != 1 || st.Runs != 1 {
		t.Errorf("status = %+v, want 1 run 1 skip", st)
	}
}

func TestScheduler_StopCancelsJobContext(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default())
	_ = s.RegisterJob(&simpleJob{name: "noop", schedule: "* * * * *"})
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	ctx := s.ctx
	if err := s.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ctx.Err() == nil {
		t.Error("job context should be cancelled after Stop")
	}
}
