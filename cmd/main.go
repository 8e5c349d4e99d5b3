package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"recruitment/infrastructure"
)

var Version = "dev"

// runtime holds what every subcommand needs after flag parsing.
type runtime struct {
	envFile string
	cfg     *infrastructure.Config
	logger  *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := &runtime{}
	rootCmd := &cobra.Command{
		Use:           "recruitment",
		Short:         "Application lifecycle and AI evaluation service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := infrastructure.LoadConfig(rt.envFile)
			if err != nil {
				return err
			}
			logger, err := infrastructure.NewLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			rt.cfg = cfg
			rt.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if rt.logger != nil {
				_ = rt.logger.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&rt.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(serveCmd(rt))
	rootCmd.AddCommand(dispatchCmd(rt))
	rootCmd.AddCommand(calibrateCmd(rt))
	rootCmd.AddCommand(migrateCmd(rt))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
