package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-tokenpool/core"
	"github.com/robfig/cron/v3"
)

type ScheduleCmd struct {
	Backend string `help:"Override the configured backend (pandora or ninja)."`
}

func (c *ScheduleCmd) Run(globals *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, globals, appOptions{backend: true, flags: backendFlag(c.Backend)})
	if err != nil {
		return err
	}
	defer a.Close()

	logger := a.logger.Named("tokenpool.schedule")
	// running batches finish after a shutdown signal
	scheduler, err := a.newCron(context.WithoutCancel(ctx), logger)
	if err != nil {
		return err
	}
	scheduler.Start()
	logger.Info("schedule started", "jobs", len(scheduler.Entries()))
	<-ctx.Done()
	logger.Info("schedule stopping")
	<-scheduler.Stop().Done()
	return nil
}

type scheduledJob struct {
	name string
	spec string
	run  func(context.Context) error
}

// scheduledJobs returns the configured jobs. An empty spec disables a job and
// assemble only runs on backends that aggregate pools.
func (a *app) scheduledJobs() []scheduledJob {
	tracks := []core.Track{core.TrackSession, core.TrackPlatform}
	jobs := []scheduledJob{
		{
			name: "obtain",
			spec: a.cfg.Schedule.Obtain,
			run: func(ctx context.Context) error {
				for _, track := range tracks {
					report, err := a.obtain(ctx, track, a.cfg.Lifecycle.ObtainBatch)
					if err != nil {
						return err
					}
					a.printRunReport(report)
				}
				return nil
			},
		},
		{
			name: "refresh",
			spec: a.cfg.Schedule.Refresh,
			run: func(ctx context.Context) error {
				for _, track := range tracks {
					report, err := a.refresh(ctx, core.RefreshRequest{
						Track:            track,
						Limit:            a.cfg.Lifecycle.RefreshBatch,
						NearExpiryWindow: a.cfg.NearExpiryWindow(),
					})
					if err != nil {
						return err
					}
					a.printRunReport(report)
				}
				return nil
			},
		},
	}
	if strings.EqualFold(strings.TrimSpace(a.cfg.Backend), core.BackendPandora) {
		jobs = append(jobs, scheduledJob{
			name: "assemble",
			spec: a.cfg.Schedule.Assemble,
			run: func(ctx context.Context) error {
				report, err := a.assemble(ctx, 0, "")
				if err != nil {
					return err
				}
				a.printAssembleReport(report)
				return nil
			},
		})
	}

	enabled := jobs[:0]
	for _, job := range jobs {
		if strings.TrimSpace(job.spec) != "" {
			enabled = append(enabled, job)
		}
	}
	return enabled
}

func (a *app) newCron(ctx context.Context, logger glog.Logger) (*cron.Cron, error) {
	cronLog := cronLogger{logger: logger}
	scheduler := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	for _, job := range a.scheduledJobs() {
		_, err := scheduler.AddFunc(job.spec, func() {
			if err := job.run(ctx); err != nil {
				logger.Error("scheduled job failed", "job", job.name, "error", err)
			}
			a.flushMetrics()
		})
		if err != nil {
			return nil, core.NewConfigurationError("config: schedule.%s %q: %v", job.name, job.spec, err)
		}
	}
	return scheduler, nil
}

// cronLogger routes cron's own messages through glog. Routine scheduling
// messages are logged at debug.
type cronLogger struct {
	logger glog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}

var _ cron.Logger = cronLogger{}
