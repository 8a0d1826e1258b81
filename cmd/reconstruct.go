package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/forward-physics/ppsim/sim"
)

// reconstructCmd fits protons to previously simulated hits.
var reconstructCmd = &cobra.Command{
	Use:   "reconstruct",
	Short: "Reconstruct proton kinematics from a simulated-hits file",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		if hitsPath == "" {
			logrus.Fatalf("--hits is required")
		}
		in, err := os.Open(hitsPath)
		if err != nil {
			logrus.Fatalf("Failed to open hits file: %v", err)
		}
		err = writeOutput(outPath, func(w io.Writer) error {
			return Reconstruct(cfg, cmd.Flags().Changed("run"), in, w)
		})
		_ = in.Close()
		if err != nil {
			logrus.Fatalf("Reconstruction failed: %v", err)
		}
		logrus.Info("Reconstruction complete.")
	},
}

// Reconstruct reads EventRecords from r and writes one ProtonRecord per
// event. Each record's own run number selects the alignment unless
// overrideRun is set, in which case cfg.Run is used for every event.
func Reconstruct(cfg *RunConfig, overrideRun bool, r io.Reader, w io.Writer) error {
	param, err := cfg.Parametrization()
	if err != nil {
		return err
	}
	rec, err := cfg.Reconstructor(param)
	if err != nil {
		return err
	}
	events, err := ReadEventRecords(r)
	if err != nil {
		return err
	}
	out := make([]ProtonRecord, len(events))
	for i, ev := range events {
		run := ev.Run
		if overrideRun {
			run = cfg.Run
		}
		hits := sim.TrackHits(ev.Hits, cfg.Reco.Input)
		var protons []sim.ReconstructedProton
		if cfg.Reco.Method == sim.MethodSinglePot {
			protons, err = rec.ReconstructSingle(run, hits)
		} else {
			protons, err = rec.Reconstruct(run, hits)
		}
		if err != nil {
			return fmt.Errorf("event %d: %w", ev.Event, err)
		}
		if protons == nil {
			protons = []sim.ReconstructedProton{}
		}
		out[i] = ProtonRecord{Event: ev.Event, Run: run, Protons: protons}
	}
	logrus.Infof("reconstructed %d events", len(out))
	return WriteJSONL(w, out)
}
