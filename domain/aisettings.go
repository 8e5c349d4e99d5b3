package domain

import (
	"strings"
	"time"
)

// AISettings holds the auto-decision thresholds for one department.
type AISettings struct {
	ID                  uint    `gorm:"primaryKey"`
	Department          string  `gorm:"size:128;not null;uniqueIndex"`
	AutoAcceptThreshold float64 `gorm:"not null"`
	AutoRejectThreshold float64 `gorm:"not null"`
	ReviewThreshold     float64 `gorm:"not null"`
	IsActive            bool    `gorm:"not null"`
	IsAutoAcceptEnabled bool    `gorm:"not null;default:false"`
	IsAutoRejectEnabled bool    `gorm:"not null;default:false"`
	IsSelfCalibrating   bool    `gorm:"not null;default:false"`
	LastCalibrationDate *time.Time
	UpdatedBy           string `gorm:"size:64"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (AISettings) TableName() string { return "ai_settings" }

// Validate enforces the threshold ranges and accept > reject. It runs before every write.
func (s AISettings) Validate() error {
	if strings.TrimSpace(s.Department) == "" {
		return NewValidationError("department", "is required")
	}
	if err := validateScore("auto_accept_threshold", s.AutoAcceptThreshold); err != nil {
		return err
	}
	if err := validateScore("auto_reject_threshold", s.AutoRejectThreshold); err != nil {
		return err
	}
	if err := validateScore("review_threshold", s.ReviewThreshold); err != nil {
		return err
	}
	return ValidateThresholdPair(s.AutoAcceptThreshold, s.AutoRejectThreshold)
}

// ValidateThresholdPair rejects an accept threshold that is not strictly above the reject threshold.
func ValidateThresholdPair(accept, reject float64) error {
	if accept <= reject {
		return NewValidationError("auto_accept_threshold",
			"must be greater than auto_reject_threshold (%.2f <= %.2f)", accept, reject)
	}
	return nil
}

// Thresholds are the effective values used for one decision.
type Thresholds struct {
	Department        string
	AutoAccept        float64
	AutoReject        float64
	Review            float64
	AutoAcceptEnabled bool
	AutoRejectEnabled bool
	FromDefaults      bool
}

// Thresholds converts active settings into effective thresholds.
func (s AISettings) Thresholds() Thresholds {
	return Thresholds{
		Department:        s.Department,
		AutoAccept:        s.AutoAcceptThreshold,
		AutoReject:        s.AutoRejectThreshold,
		Review:            s.ReviewThreshold,
		AutoAcceptEnabled: s.IsAutoAcceptEnabled,
		AutoRejectEnabled: s.IsAutoRejectEnabled,
	}
}

// Decision is the outcome of comparing a score against thresholds.
type Decision struct {
	Status                Status
	AutoDecision          bool
	ExceededAutoThreshold bool
}

// Decide applies the auto-decision rules. Boundaries are inclusive: a score equal
// to the accept threshold is accepted, equal to the reject threshold is rejected.
func Decide(score float64, t Thresholds) Decision {
	switch {
	case t.AutoAcceptEnabled && score >= t.AutoAccept:
		return Decision{Status: StatusShortlisted, AutoDecision: true, ExceededAutoThreshold: true}
	case t.AutoRejectEnabled && score <= t.AutoReject:
		return Decision{Status: StatusRejected, AutoDecision: true, ExceededAutoThreshold: true}
	default:
		return Decision{Status: StatusUnderReview}
	}
}
