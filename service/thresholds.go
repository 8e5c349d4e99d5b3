package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"recruitment/domain"
	"recruitment/infrastructure"
)

// ThresholdResolver returns the effective thresholds of a department: its active
// settings, or the global defaults. Results are cached per department until
// invalidated or expired.
type ThresholdResolver struct {
	defaults domain.Thresholds
	cache    *ttlCache[string, domain.Thresholds]
	logger   *zap.Logger
}

func NewThresholdResolver(defaults domain.Thresholds, ttl time.Duration, logger *zap.Logger) *ThresholdResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults.FromDefaults = true
	return &ThresholdResolver{
		defaults: defaults,
		cache:    newTTLCache[string, domain.Thresholds](ttl, nil),
		logger:   logger,
	}
}

// Resolve reads through store, which may be bound to a transaction.
func (r *ThresholdResolver) Resolve(ctx context.Context, store *infrastructure.Store, department string) (domain.Thresholds, error) {
	if t, ok := r.cache.Get(department); ok {
		return t, nil
	}
	gen := r.cache.Generation()

	settings, err := store.GetSettings(ctx, department)
	var t domain.Thresholds
	switch {
	case domain.IsNotFound(err):
		t = r.fallback(department)
	case err != nil:
		return domain.Thresholds{}, err
	case !settings.IsActive:
		r.logger.Debug("department settings inactive, using defaults", zap.String("department", department))
		t = r.fallback(department)
	default:
		t = settings.Thresholds()
	}

	if !r.cache.SetIfCurrent(gen, department, t) {
		r.logger.Debug("settings changed while resolving, not caching", zap.String("department", department))
	}
	return t, nil
}

func (r *ThresholdResolver) fallback(department string) domain.Thresholds {
	t := r.defaults
	t.Department = department
	return t
}

// Invalidate drops the cached thresholds of a department.
func (r *ThresholdResolver) Invalidate(department string) {
	r.cache.Invalidate(department)
}

// InvalidateAll drops every cached entry.
func (r *ThresholdResolver) InvalidateAll() {
	r.cache.Purge()
}
