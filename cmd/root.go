package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel   string // Log verbosity level
	configPath string // Run configuration file
	seed       int64  // Overrides the configured seed when set
	numEvents  int    // Number of events to generate
	firstEvent uint64 // Id of the first generated event
	workers    int    // Overrides the configured worker count when set
	runNumber  uint32 // Overrides the run number used for alignment lookup
	outPath    string // Output file, "-" for stdout
	hitsPath   string // Simulated-hits input file
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "ppsim",
	Short: "Fast simulation and reconstruction of forward protons in Roman pots",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the run configuration and applies the flag overrides
// the user set explicitly.
func loadConfig(cmd *cobra.Command) *RunConfig {
	if configPath == "" {
		logrus.Fatalf("--config is required")
	}
	cfg, err := LoadRunConfig(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load run config: %v", err)
	}
	flags := cmd.Flags()
	if flags.Lookup("seed") != nil && flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Lookup("workers") != nil && flags.Changed("workers") {
		if workers < 1 {
			logrus.Fatalf("--workers must be >= 1, got %d", workers)
		}
		cfg.Workers = workers
	}
	if flags.Lookup("run") != nil && flags.Changed("run") {
		cfg.Run = runNumber
	}
	return cfg
}

// writeOutput runs write against stdout for "-" and against a new file
// otherwise. The file is closed before writeOutput returns; when write
// fails the partial file is removed.
func writeOutput(path string, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		if rmErr := os.Remove(path); rmErr != nil {
			logrus.Errorf("removing partial output %s: %v", path, rmErr)
		}
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

func addEventFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&numEvents, "events", 100, "Number of events to generate")
	cmd.Flags().Uint64Var(&firstEvent, "first-event", 1, "Id of the first event")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (overrides the configuration)")
	cmd.Flags().IntVar(&workers, "workers", 1, "Number of events processed in parallel (overrides the configuration)")
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Run configuration file (YAML)")

	addEventFlags(simulateCmd)
	simulateCmd.Flags().StringVar(&outPath, "out", "-", "Output file for simulated hits (JSON lines)")

	reconstructCmd.Flags().StringVar(&hitsPath, "hits", "", "Simulated-hits file (JSON lines)")
	reconstructCmd.Flags().Uint32Var(&runNumber, "run", 0, "Run number for alignment lookup (overrides the records)")
	reconstructCmd.Flags().StringVar(&outPath, "out", "-", "Output file for reconstructed protons (JSON lines)")

	addEventFlags(runCmd)
	runCmd.Flags().Uint32Var(&runNumber, "run", 0, "Run number for alignment lookup (overrides the configuration)")

	rootCmd.AddCommand(simulateCmd, reconstructCmd, runCmd)
}
