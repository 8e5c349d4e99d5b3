package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"recruitment/infrastructure"
	"recruitment/interfaces"
	"recruitment/service"
)

func serveCmd(rt *runtime) *cobra.Command {
	var noWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, evaluation worker, outbox dispatcher and calibration schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), rt, !noWorker)
		},
	}
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "do not consume evaluation requests in this process")
	return cmd
}

func runServe(ctx context.Context, rt *runtime, withWorker bool) error {
	cfg, logger := rt.cfg, rt.logger

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	rmq, err := infrastructure.NewRabbitMQ(cfg.Broker, logger.Named("rabbitmq"))
	if err != nil {
		return err
	}
	defer rmq.Close()

	extractor, err := infrastructure.NewTextExtractor(cfg.UnidocLicenseKey, logger.Named("extract"))
	if err != nil {
		return err
	}
	dispatcher := a.dispatcher(cfg, rmq, logger)

	var worker *interfaces.EvaluationWorker
	if withWorker {
		reconciler, err := a.reconciler(ctx, cfg, logger)
		if err != nil {
			return err
		}
		worker = interfaces.NewEvaluationWorker(reconciler, logger.Named("worker"))
	}

	if cfg.Log.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	interfaces.NewHTTPHandler(router, interfaces.HandlerDeps{
		Lifecycle:   a.lifecycle,
		Settings:    a.settings,
		Documents:   a.store,
		Extractor:   extractor,
		DeadLetters: dispatcher,
		Logger:      logger.Named("http"),
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if worker != nil {
		g.Go(func() error { return worker.Run(gctx, rmq) })
	}

	g.Go(func() error {
		return service.RunJob(gctx, "outbox-dispatch", cfg.Outbox.Interval, dispatcher.Run, logger)
	})
	g.Go(func() error {
		return service.RunJob(gctx, "threshold-calibration", cfg.CalibrationInterval, a.calibrator.Job, logger)
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}
