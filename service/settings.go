package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"recruitment/domain"
	"recruitment/infrastructure"
)

// SettingsInput is a full replacement of a department's AI settings.
type SettingsInput struct {
	Department          string
	AutoAcceptThreshold float64
	AutoRejectThreshold float64
	ReviewThreshold     float64
	IsActive            bool
	IsAutoAcceptEnabled bool
	IsAutoRejectEnabled bool
	IsSelfCalibrating   bool
	UpdatedBy           string
}

// Settings manages per-department AI settings.
type Settings struct {
	store      *infrastructure.Store
	thresholds *ThresholdResolver
	logger     *zap.Logger
}

func NewSettings(store *infrastructure.Store, thresholds *ThresholdResolver, logger *zap.Logger) *Settings {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Settings{store: store, thresholds: thresholds, logger: logger}
}

// Upsert creates or replaces the settings of a department. The row is locked and
// validated inside one transaction so concurrent writers cannot store an inverted pair.
func (s *Settings) Upsert(ctx context.Context, in SettingsInput) (*domain.AISettings, error) {
	department := strings.TrimSpace(in.Department)
	if department == "" {
		return nil, domain.NewValidationError("department", "is required")
	}

	var saved *domain.AISettings
	err := s.store.Transaction(ctx, func(tx *infrastructure.Store) error {
		settings, err := tx.LockSettings(ctx, department)
		switch {
		case domain.IsNotFound(err):
			settings = &domain.AISettings{Department: department}
		case err != nil:
			return err
		}

		settings.AutoAcceptThreshold = in.AutoAcceptThreshold
		settings.AutoRejectThreshold = in.AutoRejectThreshold
		settings.ReviewThreshold = in.ReviewThreshold
		settings.IsActive = in.IsActive
		settings.IsAutoAcceptEnabled = in.IsAutoAcceptEnabled
		settings.IsAutoRejectEnabled = in.IsAutoRejectEnabled
		settings.IsSelfCalibrating = in.IsSelfCalibrating
		settings.UpdatedBy = in.UpdatedBy

		if err := tx.SaveSettings(ctx, settings); err != nil {
			return err
		}
		saved = settings
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.thresholds.Invalidate(department)
	s.logger.Info("ai settings updated",
		zap.String("department", department),
		zap.Float64("auto_accept", saved.AutoAcceptThreshold),
		zap.Float64("auto_reject", saved.AutoRejectThreshold),
		zap.String("updated_by", in.UpdatedBy),
	)
	return saved, nil
}

// Get returns the stored settings of a department.
func (s *Settings) Get(ctx context.Context, department string) (*domain.AISettings, error) {
	return s.store.GetSettings(ctx, department)
}

// List returns every department's settings.
func (s *Settings) List(ctx context.Context) ([]domain.AISettings, error) {
	return s.store.ListSettings(ctx)
}
