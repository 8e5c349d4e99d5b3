package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"recruitment/domain"
	"recruitment/infrastructure"
)

// CalibrationResult reports what calibration did for one department.
type CalibrationResult struct {
	Department string
	OldAccept  float64
	OldReject  float64
	NewAccept  float64
	NewReject  float64
	Stats      domain.OutcomeStats
	Skipped    bool
	Err        error
}

// Calibrator recomputes thresholds of self-calibrating departments from outcomes.
type Calibrator struct {
	store      *infrastructure.Store
	thresholds *ThresholdResolver
	clock      Clock
	logger     *zap.Logger
}

func NewCalibrator(store *infrastructure.Store, thresholds *ThresholdResolver, clock Clock, logger *zap.Logger) *Calibrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calibrator{store: store, thresholds: thresholds, clock: clock, logger: logger}
}

// Run calibrates every active self-calibrating department. A failure in one
// department is logged and reported without stopping the others.
func (c *Calibrator) Run(ctx context.Context) ([]CalibrationResult, error) {
	ctx, span := tracer.Start(ctx, "calibrator.run")
	defer span.End()

	all, err := c.store.ListSettings(ctx)
	if err != nil {
		return nil, err
	}

	var (
		results []CalibrationResult
		errs    []error
	)
	for _, settings := range all {
		if !settings.IsActive || !settings.IsSelfCalibrating {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := c.CalibrateDepartment(ctx, settings.Department)
		if res.Err != nil {
			c.logger.Error("calibration failed", zap.String("department", res.Department), zap.Error(res.Err))
			errs = append(errs, fmt.Errorf("department %s: %w", res.Department, res.Err))
		}
		results = append(results, res)
	}
	span.SetAttributes(attribute.Int("calibration.departments", len(results)))
	return results, errors.Join(errs...)
}

// Job adapts Run to the scheduler. Per-department failures are already logged.
func (c *Calibrator) Job(ctx context.Context) error {
	_, err := c.Run(ctx)
	return err
}

// CalibrateDepartment recalibrates one department. Departments without any
// evaluated application are skipped.
func (c *Calibrator) CalibrateDepartment(ctx context.Context, department string) CalibrationResult {
	res := CalibrationResult{Department: department}

	stats, err := c.store.DepartmentOutcomes(ctx, department)
	if err != nil {
		res.Err = err
		return res
	}
	res.Stats = stats
	if stats.Evaluated == 0 {
		res.Skipped = true
		c.logger.Info("no evaluated applications, skipping calibration", zap.String("department", department))
		return res
	}

	res.Err = c.store.Transaction(ctx, func(tx *infrastructure.Store) error {
		settings, err := tx.LockSettings(ctx, department)
		if err != nil {
			return err
		}
		res.OldAccept = settings.AutoAcceptThreshold
		res.OldReject = settings.AutoRejectThreshold

		accept, reject, ok := domain.CalibrateThresholds(settings.AutoAcceptThreshold, settings.AutoRejectThreshold, stats)
		if !ok {
			res.Skipped = true
			return nil
		}
		now := c.clock.now()
		settings.AutoAcceptThreshold = accept
		settings.AutoRejectThreshold = reject
		settings.LastCalibrationDate = &now
		settings.UpdatedBy = domain.ActorSystem
		if err := tx.SaveSettings(ctx, settings); err != nil {
			return err
		}
		res.NewAccept = accept
		res.NewReject = reject
		return nil
	})
	if res.Err != nil || res.Skipped {
		return res
	}

	c.thresholds.Invalidate(department)
	c.logger.Info("department thresholds calibrated",
		zap.String("department", department),
		zap.Float64("old_accept", res.OldAccept),
		zap.Float64("new_accept", res.NewAccept),
		zap.Float64("old_reject", res.OldReject),
		zap.Float64("new_reject", res.NewReject),
		zap.Int64("accepted", stats.AcceptedCount),
		zap.Int64("rejected", stats.RejectedCount),
	)
	return res
}
