package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetdispatch/core/audit"
	"github.com/kilianp07/fleetdispatch/core/dispatch"
	"github.com/kilianp07/fleetdispatch/core/overview"
	"github.com/kilianp07/fleetdispatch/core/seed"
	"github.com/kilianp07/fleetdispatch/core/store"
	"github.com/kilianp07/fleetdispatch/core/telemetry"
)

var simulateOpts struct {
	ticks   int
	seed    uint64
	lowFuel float64
}

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Fleet related commands",
}

var fleetSeedCheckCmd = &cobra.Command{
	Use:   "seed-check [file]",
	Short: "Validate a fleet seed file, or the demo fleet without argument",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSeedCheck,
}

var fleetSimulateCmd = &cobra.Command{
	Use:   "simulate [file]",
	Short: "Run telemetry ticks over a seed offline and print the overview",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSimulate,
}

func init() {
	f := fleetSimulateCmd.Flags()
	f.IntVarP(&simulateOpts.ticks, "ticks", "n", 100, "number of ticks")
	f.Uint64Var(&simulateOpts.seed, "seed", 1, "random seed")
	f.Float64Var(&simulateOpts.lowFuel, "low-fuel", 20, "low fuel threshold in percent")
	fleetCmd.AddCommand(fleetSeedCheckCmd, fleetSimulateCmd)
	rootCmd.AddCommand(fleetCmd)
}

func loadSeed(args []string) (store.Data, error) {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	d, err := seed.Load(path, time.Now())
	if err != nil {
		return d, err
	}
	return d, seed.Check(d)
}

func runSeedCheck(cmd *cobra.Command, args []string) error {
	d, err := loadSeed(args)
	if err != nil {
		return fmt.Errorf("invalid seed: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "seed ok: %d vehicles, %d drivers, %d requests\n",
		len(d.Vehicles), len(d.Drivers), len(d.Requests))
	return err
}

func runSimulate(cmd *cobra.Command, args []string) error {
	d, err := loadSeed(args)
	if err != nil {
		return fmt.Errorf("invalid seed: %w", err)
	}
	st, err := store.New(d)
	if err != nil {
		return err
	}
	coord, err := dispatch.New(st, audit.NewLedger())
	if err != nil {
		return err
	}
	cfg := telemetry.Config{Seed: simulateOpts.seed}
	cfg.SetDefaults()
	sim, err := telemetry.NewSimulator(cfg, coord)
	if err != nil {
		return err
	}
	for i := 0; i < simulateOpts.ticks; i++ {
		if _, err := sim.Tick(cmd.Context()); err != nil {
			return err
		}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(overview.Compute(coord.Snapshot(), simulateOpts.lowFuel))
}
