package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"recruitment/infrastructure"
	"recruitment/service"
)

// app is the wired service graph shared by the subcommands.
type app struct {
	store      *infrastructure.Store
	thresholds *service.ThresholdResolver
	lifecycle  *service.Lifecycle
	settings   *service.Settings
	calibrator *service.Calibrator
	close      func() error
}

func newApp(cfg *infrastructure.Config, logger *zap.Logger) (*app, error) {
	db, err := infrastructure.OpenDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}

	store := infrastructure.NewStore(db)
	profiles := infrastructure.NewProfileClient(cfg.Lookups)
	thresholds := service.NewThresholdResolver(cfg.Thresholds.Defaults(), cfg.Thresholds.CacheTTL, logger.Named("thresholds"))

	return &app{
		store:      store,
		thresholds: thresholds,
		lifecycle:  service.NewLifecycle(store, profiles, store, store, nil, logger.Named("lifecycle")),
		settings:   service.NewSettings(store, thresholds, logger.Named("settings")),
		calibrator: service.NewCalibrator(store, thresholds, nil, logger.Named("calibration")),
		close:      sqlDB.Close,
	}, nil
}

// reconciler builds the AI evaluation path. Only serve needs a scorer.
func (a *app) reconciler(ctx context.Context, cfg *infrastructure.Config, logger *zap.Logger) (*service.Reconciler, error) {
	scorer, err := newScorer(ctx, cfg.AI, logger.Named("ai"))
	if err != nil {
		return nil, err
	}
	return service.NewReconciler(service.ReconcilerDeps{
		Store:      a.store,
		Profiles:   infrastructure.NewProfileClient(cfg.Lookups),
		Postings:   a.store,
		Documents:  a.store,
		Scorer:     scorer,
		Thresholds: a.thresholds,
		Timeout:    cfg.AI.Timeout,
		Logger:     logger.Named("reconciler"),
	}), nil
}

func (a *app) dispatcher(cfg *infrastructure.Config, publisher service.Publisher, logger *zap.Logger) *service.Dispatcher {
	return service.NewDispatcher(a.store, publisher, service.DispatcherConfig{
		BatchSize:      cfg.Outbox.BatchSize,
		MaxRetries:     cfg.Outbox.MaxRetries,
		LeaseTTL:       cfg.Outbox.LeaseTTL,
		PublishTimeout: cfg.Outbox.PublishTimeout,
	}, nil, logger.Named("outbox"))
}

func newScorer(ctx context.Context, cfg infrastructure.AIConfig, logger *zap.Logger) (service.Scorer, error) {
	if strings.EqualFold(cfg.Provider, "openai") {
		scorer, err := infrastructure.NewOpenAIScorer(cfg, logger)
		if err != nil {
			return nil, err
		}
		return scorer, nil
	}
	scorer, err := infrastructure.NewGeminiScorer(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return scorer, nil
}
