package store

import (
	"context"
	"time"

	"github.com/primetalk/goio/io"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const (
	DUMP_JOB_NAME        = "baseline-dump"
	DEFAULT_DUMP_TIMEOUT = 10 * time.Second
)

// Dumper periodically flushes a PreviousStateStore to its backend and does a
// final flush on Stop.
type Dumper struct {
	store     *PreviousStateStore
	interval  time.Duration
	timeout   time.Duration
	scheduler quartz.Scheduler
	logger    *zap.Logger
}

func NewDumper(store *PreviousStateStore, interval time.Duration, logger *zap.Logger) *Dumper {
	return &Dumper{
		store:    store,
		interval: interval,
		timeout:  DEFAULT_DUMP_TIMEOUT,
		logger:   logger.With(zap.String("component", "dumper")),
	}
}

func (d *Dumper) Start(ctx context.Context) error {
	sched := quartz.NewStdScheduler()
	sched.Start(ctx)

	dumpJob := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		return d.Dump()
	})
	err := sched.ScheduleJob(quartz.NewJobDetail(dumpJob, quartz.NewJobKey(DUMP_JOB_NAME)),
		quartz.NewSimpleTrigger(d.interval))
	if err != nil {
		sched.Stop()
		return err
	}
	d.scheduler = sched
	d.logger.Info("periodic dump scheduled", zap.Duration("interval", d.interval))
	return nil
}

// Dump runs one dump bounded by the dump timeout.
func (d *Dumper) Dump() (bool, error) {
	task := io.Eval(func() (bool, error) {
		return d.store.Dump()
	})
	result := io.RunSync(io.WithTimeout[bool](d.timeout)(task))
	if result.Error != nil {
		d.logger.Error("baseline dump failed", zap.Error(result.Error))
		return false, result.Error
	}
	if result.Value {
		d.logger.Debug("baselines dumped")
	}
	return result.Value, nil
}

// Stop halts the schedule and writes pending changes one last time.
func (d *Dumper) Stop(ctx context.Context) error {
	if d.scheduler != nil {
		d.scheduler.Stop()
		d.scheduler.Wait(ctx)
	}
	_, err := d.Dump()
	return err
}
