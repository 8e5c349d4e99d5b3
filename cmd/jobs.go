package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"recruitment/infrastructure"
)

func dispatchCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Publish one batch of pending outbox events and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(rt.cfg, rt.logger)
			if err != nil {
				return err
			}
			defer a.close()

			rmq, err := infrastructure.NewRabbitMQ(rt.cfg.Broker, rt.logger.Named("rabbitmq"))
			if err != nil {
				return err
			}
			defer rmq.Close()

			stats, err := a.dispatcher(rt.cfg, rmq, rt.logger).Tick(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "claimed=%d delivered=%d failed=%d dead_lettered=%d released=%d\n",
				stats.Claimed, stats.Delivered, stats.Failed, stats.DeadLettered, stats.Released)
			return nil
		},
	}
}

func calibrateCmd(rt *runtime) *cobra.Command {
	var department string
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Recalibrate auto-decision thresholds from past outcomes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(rt.cfg, rt.logger)
			if err != nil {
				return err
			}
			defer a.close()

			if department != "" {
				res := a.calibrator.CalibrateDepartment(cmd.Context(), department)
				if res.Err != nil {
					return res.Err
				}
				printCalibration(cmd, res.Department, res.Skipped, res.OldAccept, res.OldReject, res.NewAccept, res.NewReject)
				return nil
			}

			results, err := a.calibrator.Run(cmd.Context())
			for _, res := range results {
				if res.Err != nil {
					rt.logger.Warn("department not calibrated", zap.String("department", res.Department), zap.Error(res.Err))
					continue
				}
				printCalibration(cmd, res.Department, res.Skipped, res.OldAccept, res.OldReject, res.NewAccept, res.NewReject)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "calibrate only this department")
	return cmd
}

func printCalibration(cmd *cobra.Command, department string, skipped bool, oldAccept, oldReject, newAccept, newReject float64) {
	if skipped {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: skipped, no evaluated applications\n", department)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: accept %.2f -> %.2f, reject %.2f -> %.2f\n",
		department, oldAccept, newAccept, oldReject, newReject)
}

func migrateCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := infrastructure.OpenDatabase(rt.cfg.Database, rt.logger)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}
