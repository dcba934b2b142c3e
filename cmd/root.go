package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetdispatch/app"
	"github.com/kilianp07/fleetdispatch/config"
	coremon "github.com/kilianp07/fleetdispatch/core/monitoring"
	"github.com/kilianp07/fleetdispatch/infra/logger"
	"github.com/kilianp07/fleetdispatch/infra/monitoring"
)

var (
	cfgPath     string
	addr        string
	noTelemetry bool
)

var rootCmd = &cobra.Command{
	Use:          "fleetd",
	Short:        "Fleet dispatch and telemetry service",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json); empty reads K_ variables only")
	rootCmd.Flags().StringVar(&addr, "addr", "", "override http.address")
	rootCmd.Flags().BoolVar(&noTelemetry, "no-telemetry", false, "do not start the telemetry simulator")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr != "" {
		cfg.HTTP.Address = addr
	}
	if noTelemetry {
		cfg.Telemetry.Enabled = false
	}
	if err := monitoring.Setup(cfg.Sentry); err != nil {
		return fmt.Errorf("sentry: %w", err)
	}
	defer coremon.Flush(2 * time.Second)

	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
