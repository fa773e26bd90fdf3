package sessionmgr

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Reaper drives Manager.Sweep on a cron schedule so the inactivity sweep
// can share a process with other cron-scheduled maintenance under one
// robfig/cron/v3 scheduler instance.
type Reaper struct {
	cron    *cron.Cron
	manager *Manager
	logger  *slog.Logger
}

// NewReaper builds a Reaper that sweeps manager on spec. Standard 5-field
// cron expressions are minute-resolution; an "@every <duration>" descriptor
// (e.g. "@every 10s") is not and is what production wiring uses to honor
// Config.MonitorTick.
func NewReaper(manager *Manager, logger *slog.Logger) *Reaper {
	return &Reaper{
		cron:    cron.New(),
		manager: manager,
		logger:  logger,
	}
}

// ScheduleSweep registers the inactivity sweep on spec (a robfig/cron
// schedule spec, e.g. "@every 1m").
func (r *Reaper) ScheduleSweep(ctx context.Context, spec string) error {
	_, err := r.cron.AddFunc(spec, func() {
		r.manager.Sweep(ctx)
	})
	return err
}

// ScheduleFunc registers an arbitrary maintenance job on spec alongside the
// inactivity sweep, sharing the same cron instance.
func (r *Reaper) ScheduleFunc(spec string, fn func()) error {
	_, err := r.cron.AddFunc(spec, fn)
	return err
}

// Start begins running scheduled jobs in the background.
func (r *Reaper) Start() { r.cron.Start() }

// Stop stops scheduling new jobs and returns a context that is done once
// every running job has completed.
func (r *Reaper) Stop() context.Context { return r.cron.Stop() }
