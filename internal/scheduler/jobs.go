package scheduler

import (
	"context"
)

// Job names.
const (
	JobGasPoll = "gas_poll"
)

// GasRefresher polls the node for the current gas price.
type GasRefresher interface {
	Refresh(ctx context.Context) error
}

// ScheduleGasPolling refreshes the gas price on spec and once immediately,
// so executions are not rejected for an unknown price before the first tick.
func (r *Runner) ScheduleGasPolling(spec string, g GasRefresher) error {
	job := func(ctx context.Context) error { return g.Refresh(ctx) }
	if _, err := r.Add(JobGasPoll, spec, job); err != nil {
		return err
	}
	r.RunNow(JobGasPoll, job)
	return nil
}
