// Package scheduler fires the periodic triggers of the engine with gocron.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"huddle/config"
	"huddle/internal/usecase"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

const (
	sweepJobName   = "timeout-sweep"
	checkInJobName = "proactive-check-in"
	slowThreshold  = 5 * time.Second
)

// Runner owns the gocron scheduler. Jobs carry no state of their own: every run reads the
// persisted deadlines through the sweep usecase, so a restart loses nothing.
type Runner struct {
	scheduler gocron.Scheduler
	sweep     usecase.SweepUsecase
	cfg       config.SchedulerConfig
	logger    *slog.Logger
}

// RunnerParams holds dependencies for the Runner, injected by Fx
type RunnerParams struct {
	fx.In

	Lc     fx.Lifecycle
	Sweep  usecase.SweepUsecase
	Config *config.Config
	Logger *slog.Logger
}

// NewRunner creates the scheduler and registers its jobs. Jobs fire only when scheduling
// is enabled; the scheduler is shut down with the application either way.
func NewRunner(params RunnerParams) (*Runner, error) {
	cfg := params.Config.Scheduler

	runner, err := newRunner(params.Sweep, cfg, params.Logger)
	if err != nil {
		return nil, err
	}

	params.Lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if !cfg.Enabled {
				params.Logger.Info("Scheduler disabled")

				return nil
			}
			runner.Start()

			return nil
		},
		OnStop: func(context.Context) error {
			return runner.Stop()
		},
	})

	return runner, nil
}

func newRunner(sweep usecase.SweepUsecase, cfg config.SchedulerConfig, logger *slog.Logger) (*Runner, error) {
	location := time.UTC
	if cfg.Timezone != "" {
		loaded, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, errors.Wrapf(err, "load scheduler timezone %s", cfg.Timezone)
		}
		location = loaded
	}

	s, err := gocron.NewScheduler(
		gocron.WithLocation(location),
		gocron.WithLogger(newSlogAdapter(logger)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create scheduler")
	}

	r := &Runner{scheduler: s, sweep: sweep, cfg: cfg, logger: logger}
	if err := r.register(); err != nil {
		_ = s.Shutdown()

		return nil, err
	}

	return r, nil
}

func (r *Runner) register() error {
	if _, err := r.scheduler.NewJob(
		gocron.DurationJob(r.cfg.SweepInterval),
		gocron.NewTask(r.runSweep),
		gocron.WithName(sweepJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return errors.Wrapf(err, "failed to schedule job %s", sweepJobName)
	}

	if r.cfg.CheckInCron == "" {
		return nil
	}

	if _, err := r.scheduler.NewJob(
		gocron.CronJob(r.cfg.CheckInCron, false),
		gocron.NewTask(r.runCheckIn),
		gocron.WithName(checkInJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return errors.Wrapf(err, "failed to schedule job %s", checkInJobName)
	}

	return nil
}

// Start begins firing jobs.
func (r *Runner) Start() {
	r.scheduler.Start()

	for _, job := range r.scheduler.Jobs() {
		attrs := []any{slog.String("job_name", job.Name())}
		if next, err := job.NextRun(); err == nil {
			attrs = append(attrs, slog.String("next_run", next.Format(time.RFC3339)))
		}
		r.logger.Info("Job scheduled", attrs...)
	}
}

// Stop waits for running jobs and shuts the scheduler down.
func (r *Runner) Stop() error {
	r.logger.Debug("Stopping scheduler", slog.Int("active_jobs", len(r.scheduler.Jobs())))

	if err := r.scheduler.Shutdown(); err != nil {
		return errors.Wrap(err, "failed to shutdown scheduler")
	}

	return nil
}

func (r *Runner) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), r.jobTimeout())
	defer cancel()

	start := time.Now()
	report, err := r.sweep.Sweep(ctx)
	if err != nil {
		r.logger.Error("Sweep failed", slog.Any("error", err))

		return
	}

	r.logDuration(sweepJobName, start)
	if *report != (usecase.SweepReport{}) {
		r.logger.Info("Sweep completed", slog.Any("report", report))
	}
}

func (r *Runner) runCheckIn() {
	ctx, cancel := context.WithTimeout(context.Background(), r.jobTimeout())
	defer cancel()

	start := time.Now()
	sent, err := r.sweep.CheckIn(ctx)
	if err != nil {
		r.logger.Error("Check-in failed", slog.Any("error", err))

		return
	}

	r.logDuration(checkInJobName, start)
	r.logger.Info("Check-in prompts sent", slog.Int("count", sent))
}

// jobTimeout bounds one run so a hung collaborator cannot stall the next one forever.
func (r *Runner) jobTimeout() time.Duration {
	const floor = time.Minute
	if timeout := 4 * r.cfg.SweepInterval; timeout > floor {
		return timeout
	}

	return floor
}

func (r *Runner) logDuration(name string, start time.Time) {
	if d := time.Since(start); d > slowThreshold {
		r.logger.Warn("Slow scheduled job execution",
			slog.String("job_name", name),
			slog.Int64("duration_ms", d.Milliseconds()))
	}
}
