package app

import (
	"context"

	"github.com/kurisu/squadagent/internal/core"
	"github.com/kurisu/squadagent/internal/cron"
)

// Run builds the app from p and serves until ctx is done or a shutdown
// signal arrives.
func Run(ctx context.Context, p Params) error {
	a, err := Build(ctx, p)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

// schedulerModule puts the maintenance scheduler on the module lifecycle
// so it starts after the configured modules and stops before them.
type schedulerModule struct {
	*cron.Scheduler
}

func (m *schedulerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "runtime.cron",
		New: func() core.Module { return &schedulerModule{} },
	}
}
