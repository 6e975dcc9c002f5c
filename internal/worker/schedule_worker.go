package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/service"
)

// StartScheduleWorker registers the scheduled automation pass (on_schedule
// and on_aging triggers) plus the daily execution-record prune.
func StartScheduleWorker(runner *cron.Cron, bridge *service.AutomationBridge, cadence time.Duration, logger *zap.Logger) error {
	if cadence <= 0 {
		cadence = 5 * time.Minute
	}
	_, err := runner.AddFunc(fmt.Sprintf("@every %s", cadence), func() {
		ctx, cancel := context.WithTimeout(context.Background(), cadence)
		defer cancel()
		if err := bridge.RunScheduledPass(ctx); err != nil {
			logger.Error("scheduled automation pass failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	_, err = runner.AddFunc("@daily", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := bridge.PruneExecutionRecords(ctx); err != nil {
			logger.Error("execution record prune failed", zap.Error(err))
		}
	})
	return err
}
