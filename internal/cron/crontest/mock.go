// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"time"

	"github.com/kurisu/squadagent/internal/cron"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu    sync.Mutex
	calls int
}

// Compile-time interface check.
var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and increments the call counter.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockPruner is a test double for cron.SessionPruner.
type MockPruner struct {
	PruneFunc func(ctx context.Context, maxIdle time.Duration) (int, error)

	mu    sync.Mutex
	idles []time.Duration
}

// Compile-time interface check.
var _ cron.SessionPruner = (*MockPruner)(nil)

// Prune implements cron.SessionPruner.
func (m *MockPruner) Prune(ctx context.Context, maxIdle time.Duration) (int, error) {
	m.mu.Lock()
	m.idles = append(m.idles, maxIdle)
	m.mu.Unlock()
	if m.PruneFunc != nil {
		return m.PruneFunc(ctx, maxIdle)
	}
	return 0, nil
}

// Calls returns the maxIdle of every Prune call.
func (m *MockPruner) Calls() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.idles...)
}
