// services/scheduler.go
package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"unibridge-points/logging"
)

// ScheduleConfig says when each background job runs. A zero interval or a
// nil job leaves that job unscheduled.
type ScheduleConfig struct {
	DailyHour      uint
	DailyMinute    uint
	VerifyInterval time.Duration
	IndexInterval  time.Duration
}

// Job is a background task. ctx is cancelled on shutdown.
type Job func(ctx context.Context)

// StartScheduler registers the daily staking distribution and the optional
// verification and indexer jobs on a UTC scheduler. Every job runs in
// singleton mode: a tick that arrives while the previous run is still busy
// is skipped.
func StartScheduler(ctx context.Context, cfg ScheduleConfig, distributor *StakingDistributor, verify, index Job) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}
	singleton := gocron.WithSingletonMode(gocron.LimitModeReschedule)

	_, err = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(cfg.DailyHour, cfg.DailyMinute, 0))),
		gocron.NewTask(func() {
			report, err := distributor.Run(ctx, time.Now().UTC())
			if err != nil {
				logging.Logger.Error("[Scheduler] daily staking distribution failed",
					zap.String("date", report.SnapshotDate), zap.Error(err))
			}
		}),
		gocron.WithName("daily-staking-distribution"),
		singleton,
	)
	if err != nil {
		return nil, err
	}

	if verify != nil && cfg.VerifyInterval > 0 {
		if _, err := sched.NewJob(
			gocron.DurationJob(cfg.VerifyInterval),
			gocron.NewTask(func() { verify(ctx) }),
			gocron.WithName("pending-tx-verification"),
			singleton,
		); err != nil {
			return nil, err
		}
	}

	if index != nil && cfg.IndexInterval > 0 {
		if _, err := sched.NewJob(
			gocron.DurationJob(cfg.IndexInterval),
			gocron.NewTask(func() { index(ctx) }),
			gocron.WithName("stake-balance-sync"),
			singleton,
		); err != nil {
			return nil, err
		}
	}

	sched.Start()
	logging.Logger.Info("[Scheduler] started",
		zap.Uint("daily_hour", cfg.DailyHour),
		zap.Uint("daily_minute", cfg.DailyMinute),
		zap.Duration("verify_every", cfg.VerifyInterval),
		zap.Duration("index_every", cfg.IndexInterval))
	return sched, nil
}
