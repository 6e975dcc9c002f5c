// Package worker schedules the engine's periodic passes on a shared cron
// runner.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/sweep"
)

// StartSweepWorker registers the SLA deadline pass. Each run is bounded by
// the sweep interval so a slow pass cannot pile up behind the next one.
func StartSweepWorker(runner *cron.Cron, sweeper *sweep.Sweeper, interval time.Duration, logger *zap.Logger) error {
	if interval <= 0 {
		interval = time.Minute
	}
	_, err := runner.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		if err := sweeper.Run(ctx); err != nil {
			logger.Error("sla sweep pass failed", zap.Error(err))
		}
	})
	return err
}
