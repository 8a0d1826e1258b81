package cmd

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// simulateCmd generates events and writes their detector hits.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Generate protons, smear them and transport them to the detectors",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		err := writeOutput(outPath, func(w io.Writer) error {
			return Simulate(cmd.Context(), cfg, firstEvent, numEvents, w)
		})
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Info("Simulation complete.")
	},
}

// Simulate runs gun, smearing and transport for n events and writes one
// EventRecord per event.
func Simulate(ctx context.Context, cfg *RunConfig, first uint64, n int, w io.Writer) error {
	runner, err := cfg.Runner(false)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := runner.Run(ctx, first, n)
	if err != nil {
		return err
	}
	records := make([]EventRecord, len(res.Events))
	for i, ev := range res.Events {
		records[i] = NewEventRecord(ev, cfg.Run, cfg.Gun.Energy)
	}
	return WriteJSONL(w, records)
}
