package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"huddle/config"
	"huddle/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/goleak"
)

type countingSweep struct {
	sweeps   atomic.Int32
	checkIns atomic.Int32
}

func (c *countingSweep) CheckIn(context.Context) (int, error) {
	c.checkIns.Add(1)

	return 0, nil
}

func (c *countingSweep) ActivateScheduled(context.Context) (int, error) {
	return 0, nil
}

func (c *countingSweep) Sweep(context.Context) (*usecase.SweepReport, error) {
	c.sweeps.Add(1)

	return &usecase.SweepReport{Expired: 1}, nil
}

func (c *countingSweep) CleanupStale(context.Context) (int, error) {
	return 0, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(enabled bool) *config.Config {
	cfg := &config.Config{}
	cfg.Scheduler = config.SchedulerConfig{
		Enabled:       enabled,
		Timezone:      "UTC",
		CheckInCron:   "0 11 * * 1-5",
		SweepInterval: 20 * time.Millisecond,
	}

	return cfg
}

func TestRunner_SweepsUntilStopped(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sweep := &countingSweep{}
	lc := fxtest.NewLifecycle(t)

	runner, err := NewRunner(RunnerParams{Lc: lc, Sweep: sweep, Config: testConfig(true), Logger: discardLogger()})
	require.NoError(t, err)
	assert.Len(t, runner.scheduler.Jobs(), 2)

	lc.RequireStart()
	assert.Eventually(t, func() bool { return sweep.sweeps.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	lc.RequireStop()

	stopped := sweep.sweeps.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, stopped, sweep.sweeps.Load())
	assert.Zero(t, sweep.checkIns.Load())
}

func TestRunner_DisabledDoesNotStart(t *testing.T) {
	sweep := &countingSweep{}
	lc := fxtest.NewLifecycle(t)

	_, err := NewRunner(RunnerParams{Lc: lc, Sweep: sweep, Config: testConfig(false), Logger: discardLogger()})
	require.NoError(t, err)

	lc.RequireStart()
	time.Sleep(60 * time.Millisecond)
	lc.RequireStop()

	assert.Zero(t, sweep.sweeps.Load())
}

func TestRunner_CheckInJobRuns(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sweep := &countingSweep{}
	runner, err := newRunner(sweep, testConfig(true).Scheduler, discardLogger())
	require.NoError(t, err)

	runner.Start()
	for _, job := range runner.scheduler.Jobs() {
		if job.Name() == checkInJobName {
			require.NoError(t, job.RunNow())
		}
	}
	assert.Eventually(t, func() bool { return sweep.checkIns.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, runner.Stop())
}

func TestNewRunner_InvalidSchedule(t *testing.T) {
	cfg := testConfig(true)
	cfg.Scheduler.CheckInCron = "not a cron"

	_, err := newRunner(&countingSweep{}, cfg.Scheduler, discardLogger())
	assert.Error(t, err)

	cfg = testConfig(true)
	cfg.Scheduler.Timezone = "Mars/Olympus"
	_, err = newRunner(&countingSweep{}, cfg.Scheduler, discardLogger())
	assert.Error(t, err)
}
