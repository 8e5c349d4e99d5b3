package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Job is one unit of periodic background work.
type Job func(ctx context.Context) error

// RunJob runs job once immediately and then on every interval tick until ctx is
// cancelled. Job errors are logged; the loop keeps going.
func RunJob(ctx context.Context, name string, interval time.Duration, job Job, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		return errors.New("job interval must be greater than zero")
	}
	log := logger.With(zap.String("job", name))

	run := func() {
		start := time.Now()
		if err := job(ctx); err != nil && ctx.Err() == nil {
			log.Error("job failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		}
	}

	log.Info("job scheduled", zap.Duration("interval", interval))
	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("job stopped")
			return nil
		case <-ticker.C:
			run()
		}
	}
}
