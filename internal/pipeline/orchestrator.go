// Package pipeline wires the seven periodic pipelines into the
// quartz-scheduled event loop (§4.10, §5): fetch, learn, smooth,
// battery, consumption, snapshot and execute, each wrapped so a panic
// or error is logged and ledgered but never aborts the process.
package pipeline

import (
	"context"
	"fmt"

	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"

	"github.com/vindstrom/solarctl/internal/config"
	"github.com/vindstrom/solarctl/internal/core/domain"
	"github.com/vindstrom/solarctl/internal/core/port"
	"github.com/vindstrom/solarctl/internal/core/service"
)

// runner is what every pipeline exposes to the orchestrator.
type runner interface {
	Run(ctx context.Context) error
}

// Orchestrator owns the quartz scheduler and the pipeline-run ledger
// updates; it is the only source of concurrency in the process.
type Orchestrator struct {
	sched quartz.Scheduler

	fetch       *FetchPipeline
	learn       *LearnPipeline
	smooth      *SmoothPipeline
	battery     *BatteryPipeline
	consumption *ConsumptionPipeline
	snapshot    *SnapshotPipeline
	execute     *ExecutePipeline

	store  port.Store
	driver port.InverterDriver
	clock  *service.Clock
	cfg    config.Config
	logger *zap.Logger
}

func NewOrchestrator(fetch *FetchPipeline, learn *LearnPipeline, smooth *SmoothPipeline, battery *BatteryPipeline,
	consumption *ConsumptionPipeline, snapshot *SnapshotPipeline, execute *ExecutePipeline,
	store port.Store, driver port.InverterDriver, clock *service.Clock, cfg config.Config, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		sched: quartz.NewStdScheduler(),

		fetch: fetch, learn: learn, smooth: smooth, battery: battery,
		consumption: consumption, snapshot: snapshot, execute: execute,

		store: store, driver: driver, clock: clock, cfg: cfg,
		logger: logger.With(zap.String("component", "orchestrator")),
	}
}

// Start validates nothing itself (configuration validation happens
// before this is ever constructed), runs the non-write pipelines once
// in sequential order, then the first execute+replan unless
// data_collection_only, and finally schedules every cron entry.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.runStartupSequence(ctx)
	o.sched.Start(ctx)

	if err := o.scheduleFetch(); err != nil {
		return err
	}
	if err := o.scheduleLearn(); err != nil {
		return err
	}
	if err := o.scheduleSmooth(); err != nil {
		return err
	}
	if err := o.scheduleConsumption(); err != nil {
		return err
	}
	if err := o.scheduleBattery(); err != nil {
		return err
	}
	if err := o.scheduleQuarterHourCluster(); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) Stop() {
	o.sched.Stop()
}

// runStartupSequence runs the non-write pipelines immediately, in the
// same sequential order the cron entries use, followed by one
// execute+replan unless data_collection_only is set.
func (o *Orchestrator) runStartupSequence(ctx context.Context) {
	o.runAndRecord(ctx, domain.PipelineFetch, o.fetch)
	o.runAndRecord(ctx, domain.PipelineLearn, o.learn)
	o.runAndRecord(ctx, domain.PipelineSmooth, o.smooth)
	o.runAndRecord(ctx, domain.PipelineConsumption, o.consumption)

	if o.cfg.Inverter.DataCollectionOnly {
		o.runAndRecord(ctx, domain.PipelineSnapshot, o.snapshot)
		return
	}
	o.runAndRecord(ctx, domain.PipelineSnapshot, o.snapshot)
	if err := o.runExecuteWithFailureIsolation(ctx); err != nil {
		o.logger.Error("execute failed", zap.String("kind", string(domain.KindOf(err))), zap.Error(err))
	}
	o.runAndRecord(ctx, domain.PipelineBattery, o.battery)
}

// runQuarterHourCluster is the fused 15-minute handler: snapshot,
// execute, and (when this tick also matches the battery schedule)
// battery, run strictly sequentially so the replan sees the
// post-command SOC.
func (o *Orchestrator) runQuarterHourCluster(ctx context.Context) {
	o.runAndRecord(ctx, domain.PipelineSnapshot, o.snapshot)

	if o.cfg.Inverter.DataCollectionOnly {
		return
	}

	if err := o.runExecuteWithFailureIsolation(ctx); err != nil {
		o.logger.Error("execute failed", zap.String("kind", string(domain.KindOf(err))), zap.Error(err))
	}

	if o.batteryDueNow() {
		o.runAndRecord(ctx, domain.PipelineBattery, o.battery)
	}
}

// runExecuteWithFailureIsolation attempts reset_to_default exactly
// once if execute fails, per §4.10's failure-isolation rule.
func (o *Orchestrator) runExecuteWithFailureIsolation(ctx context.Context) error {
	err := safeRun(ctx, domain.PipelineExecute, o.execute)
	o.record(domain.PipelineExecute, err)
	if err != nil {
		if resetErr := o.driver.ResetToDefault(); resetErr != nil {
			o.logger.Error("reset_to_default also failed", zap.Error(resetErr))
		}
	}
	return err
}

// safeRun invokes r.Run under panic recovery so a defect inside any
// pipeline is logged and ledgered as a failed run instead of crashing
// the always-on controller (§4.10, §7: nothing but a failed startup
// validation may panic the process).
func safeRun(ctx context.Context, name string, r runner) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = domain.NewError(domain.ErrPanic, "pipeline."+name, fmt.Errorf("%v", rec))
		}
	}()
	return r.Run(ctx)
}

// batteryDueNow reports whether the current minute matches the
// battery schedule: every hour at :30, or at day_ahead_hour:15.
func (o *Orchestrator) batteryDueNow() bool {
	now := o.clock.NowTime()
	if now.Minute() == 30 {
		return true
	}
	return now.Minute() == 15 && now.Hour() == o.cfg.Price.DayAheadHour
}

func (o *Orchestrator) runAndRecord(ctx context.Context, name string, r runner) {
	err := safeRun(ctx, name, r)
	o.record(name, err)
	if err != nil {
		o.logger.Error("pipeline failed", zap.String("pipeline", name), zap.String("kind", string(domain.KindOf(err))), zap.Error(err))
	}
}

func (o *Orchestrator) record(name string, err error) {
	status := domain.StatusOK
	if err != nil {
		status = domain.StatusError
	}
	if recErr := o.store.RecordPipelineRun(name, status, o.clock.Now()); recErr != nil {
		o.logger.Error("failed to record pipeline run", zap.String("pipeline", name), zap.Error(recErr))
	}
}

func (o *Orchestrator) scheduleFetch() error {
	return o.schedule(domain.PipelineFetch, "0 0 0/6 * * *", o.fetch)
}

func (o *Orchestrator) scheduleLearn() error {
	return o.schedule(domain.PipelineLearn, "0 0 * * * *", o.learn)
}

func (o *Orchestrator) scheduleSmooth() error {
	return o.schedule(domain.PipelineSmooth, "0 0 2 * * *", o.smooth)
}

func (o *Orchestrator) scheduleConsumption() error {
	return o.schedule(domain.PipelineConsumption, "0 5 * * * *", o.consumption)
}

// scheduleBattery registers the two battery-pipeline entries
// directly: day_ahead_hour:15 and every hour at :30. Both are also
// detected by batteryDueNow() for the fused quarter-hour cluster;
// these standalone entries exist so battery still runs on its own
// schedule even if snapshot/execute are skipped for any reason.
func (o *Orchestrator) scheduleBattery() error {
	if err := o.scheduleNamed("battery_hourly", "0 30 * * * *", domain.PipelineBattery, o.battery); err != nil {
		return err
	}
	dayAhead := fmt.Sprintf("0 15 %d * * *", o.cfg.Price.DayAheadHour)
	return o.scheduleNamed("battery_day_ahead", dayAhead, domain.PipelineBattery, o.battery)
}

func (o *Orchestrator) scheduleQuarterHourCluster() error {
	trigger, err := quartz.NewCronTrigger("0 0/15 * * * *")
	if err != nil {
		return domain.NewError(domain.ErrConfigInvalid, "orchestrator.cluster_trigger", err)
	}
	job := job.NewFunctionJob(func(ctx context.Context) (int, error) {
		o.runQuarterHourCluster(ctx)
		return 0, nil
	})
	detail := quartz.NewJobDetail(job, quartz.NewJobKey("quarter_hour_cluster"))
	return o.sched.ScheduleJob(detail, trigger)
}

// schedule registers a cron job whose quartz key and ledger pipeline
// name are the same string (true for every pipeline except battery,
// which has two cron entries feeding one ledger name).
func (o *Orchestrator) schedule(name, cronExpr string, r runner) error {
	return o.scheduleNamed(name, cronExpr, name, r)
}

func (o *Orchestrator) scheduleNamed(jobKey, cronExpr, pipelineName string, r runner) error {
	trigger, err := quartz.NewCronTrigger(cronExpr)
	if err != nil {
		return domain.NewError(domain.ErrConfigInvalid, "orchestrator.trigger."+jobKey, err)
	}
	job := job.NewFunctionJob(func(ctx context.Context) (int, error) {
		o.runAndRecord(ctx, pipelineName, r)
		return 0, nil
	})
	detail := quartz.NewJobDetail(job, quartz.NewJobKey(jobKey))
	return o.sched.ScheduleJob(detail, trigger)
}
