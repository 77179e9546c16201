// Package daemon runs the pipeline jobs on cron schedules: ingest, bias scan
// and the optimizer. Each job posts a summary to the configured notifiers.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zulandar/lectern/internal/bias"
	"github.com/zulandar/lectern/internal/config"
	"github.com/zulandar/lectern/internal/ingest"
	"github.com/zulandar/lectern/internal/logging"
	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/notify"
	"github.com/zulandar/lectern/internal/optimize"
)

// Job names, used in logs and as schedule keys.
const (
	JobIngest   = "ingest"
	JobBiasScan = "bias_scan"
	JobOptimize = "optimize"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow)
// plus descriptors such as @hourly and @every.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Ingester processes pending videos.
type Ingester interface {
	RunPending(ctx context.Context, channelID uint, limit int) (ingest.Summary, error)
}

// BiasScanner scans unflagged entries.
type BiasScanner interface {
	ScanAll(ctx context.Context, opts bias.ScanOptions) (bias.ScanReport, error)
}

// Optimizer runs an optimizer pass.
type Optimizer interface {
	Run(ctx context.Context) (optimize.Report, error)
}

// Queue is the part of the optimization queue the daemon reads.
type Queue interface {
	List(ctx context.Context, status string) ([]models.OptimizationQueueItem, error)
	ExecuteApproved(ctx context.Context) ([]models.OptimizationQueueItem, error)
}

// Options wires the daemon. A nil job component disables that job even when
// it has a schedule.
type Options struct {
	Schedule  config.ScheduleConfig
	Ingester  Ingester
	Scanner   BiasScanner
	Optimizer Optimizer
	Queue     Queue
	Notifier  notify.Notifier
	// Dashboard, when set, runs alongside the scheduler until ctx is done.
	Dashboard func(ctx context.Context) error
	Logger    *slog.Logger
}

// Daemon owns the cron scheduler.
type Daemon struct {
	opts Options
	log  *slog.Logger
	jobs map[string]cron.Schedule
}

// New parses the schedules and returns a Daemon. At least one job must be
// both scheduled and wired.
func New(opts Options) (*Daemon, error) {
	d := &Daemon{opts: opts, log: logging.OrDefault(opts.Logger), jobs: make(map[string]cron.Schedule)}
	specs := []struct {
		name  string
		expr  string
		wired bool
	}{
		{JobIngest, opts.Schedule.Ingest, opts.Ingester != nil},
		{JobBiasScan, opts.Schedule.BiasScan, opts.Scanner != nil},
		{JobOptimize, opts.Schedule.Optimize, opts.Optimizer != nil},
	}
	var errs []error
	for _, s := range specs {
		if s.expr == "" || !s.wired {
			continue
		}
		sched, err := cronParser.Parse(s.expr)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule.%s %q: %w", s.name, s.expr, err))
			continue
		}
		d.jobs[s.name] = sched
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}
	if len(d.jobs) == 0 {
		return nil, fmt.Errorf("daemon: no jobs scheduled")
	}
	return d, nil
}

// Jobs returns the names of the scheduled jobs.
func (d *Daemon) Jobs() []string {
	var names []string
	for _, n := range []string{JobIngest, JobBiasScan, JobOptimize} {
		if _, ok := d.jobs[n]; ok {
			names = append(names, n)
		}
	}
	return names
}

// Run starts the scheduler and blocks until ctx is cancelled. Approved
// queue items left over from an earlier run are executed first. Jobs never
// overlap themselves; a run still going when its next tick fires is
// skipped. On return every running job has finished.
func (d *Daemon) Run(ctx context.Context) error {
	if d.opts.Queue != nil {
		items, err := d.opts.Queue.ExecuteApproved(ctx)
		if err != nil {
			d.log.Error("execute approved items", "error", err)
		} else if len(items) > 0 {
			d.log.Info("executed approved items left from a previous run", "items", len(items))
		}
	}

	cl := cronLogger{log: d.log}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	for _, name := range d.Jobs() {
		name := name
		c.Schedule(d.jobs[name], cron.FuncJob(func() { d.RunJob(ctx, name) }))
		d.log.Info("job scheduled", "job", name, "next", d.jobs[name].Next(time.Now()))
	}

	var (
		wg      sync.WaitGroup
		dashErr error
	)
	if d.opts.Dashboard != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.opts.Dashboard(ctx); err != nil {
				d.log.Error("dashboard stopped", "error", err)
				dashErr = err
			}
		}()
	}

	c.Start()
	d.log.Info("daemon started", "jobs", d.Jobs())
	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()
	wg.Wait()
	d.log.Info("daemon stopped")
	return dashErr
}

// RunJob runs one job now and notifies its outcome. Errors are logged, not
// returned, so a failing job never stops the scheduler.
func (d *Daemon) RunJob(ctx context.Context, name string) {
	d.log.Info("job started", "job", name)
	var (
		msg notify.Message
		err error
	)
	switch name {
	case JobIngest:
		var s ingest.Summary
		s, err = d.opts.Ingester.RunPending(ctx, 0, 0)
		if s.Processed > 0 {
			msg = notify.FormatIngest(s)
		}
	case JobBiasScan:
		var r bias.ScanReport
		r, err = d.opts.Scanner.ScanAll(ctx, bias.ScanOptions{})
		if r.Flagged > 0 || r.Fallbacks > 0 {
			msg = notify.FormatBiasScan(r)
		}
	case JobOptimize:
		var r optimize.Report
		r, err = d.opts.Optimizer.Run(ctx)
		if err == nil {
			msg = notify.FormatOptimize(r, d.pending(ctx))
		}
	default:
		d.log.Error("unknown job", "job", name)
		return
	}
	if err != nil {
		d.log.Error("job failed", "job", name, "error", err)
	} else {
		d.log.Info("job finished", "job", name)
	}
	d.notify(ctx, msg)
}

func (d *Daemon) pending(ctx context.Context) int {
	if d.opts.Queue == nil {
		return 0
	}
	items, err := d.opts.Queue.List(ctx, models.QueueStatusPending)
	if err != nil {
		d.log.Warn("count pending queue items", "error", err)
		return 0
	}
	return len(items)
}

func (d *Daemon) notify(ctx context.Context, msg notify.Message) {
	if d.opts.Notifier == nil || (msg.Text == "" && len(msg.Events) == 0) {
		return
	}
	if err := d.opts.Notifier.Send(ctx, msg); err != nil {
		d.log.Warn("notification failed", "error", err)
	}
}
