package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rate-sim/rate-sim/experiment"
)

var (
	seed          int64  // Seed for channel and contention draws
	transmissions int    // Number of data transmissions to simulate
	logLevel      string // Log verbosity level
	strategy      string // Rate law selection: hybrid, cara, aarf
	scenarioName  string // Built-in scenario preset
	scenarioFile  string // Scenario YAML, overrides --scenario
	configPath    string // Controller config YAML
	metricsOut    string // Prometheus textfile written after the run
	traceLevel    string // Decision trace verbosity
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "rate-sim",
	Short: "Link-rate adaptation simulator for the hybrid CARA/AARF controller",
}

// runCmd runs one strategy through a scenario
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one rate-adaptation strategy through a scenario",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()

		rc, err := currentOptions(cmd).runConfig()
		if err != nil {
			logrus.Fatalf("invalid run configuration: %v", err)
		}
		reg := metricsRegistry(&rc)

		res, err := experiment.Run(cmd.Context(), rc)
		if err != nil {
			logrus.Fatalf("run failed: %v", err)
		}
		res.Print(cmd.OutOrStdout())

		if err := writeMetrics(metricsOut, reg); err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Info("Simulation complete.")
	},
}

// compareCmd runs every strategy through the same scenario and seed
var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Run hybrid, CARA and AARF side by side on the same scenario and seed",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()

		rc, err := currentOptions(cmd).runConfig()
		if err != nil {
			logrus.Fatalf("invalid run configuration: %v", err)
		}
		reg := metricsRegistry(&rc)

		results, err := experiment.Compare(cmd.Context(), rc, experiment.Strategies)
		if err != nil {
			logrus.Fatalf("compare failed: %v", err)
		}
		for _, res := range results {
			res.Print(cmd.OutOrStdout())
		}
		experiment.PrintComparison(cmd.OutOrStdout(), results)

		if err := writeMetrics(metricsOut, reg); err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Info("Comparison complete.")
	},
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// metricsRegistry attaches a fresh registry to rc when --metrics-out is set.
func metricsRegistry(rc *experiment.RunConfig) *prometheus.Registry {
	if metricsOut == "" {
		return nil
	}
	reg := prometheus.NewRegistry()
	rc.Registerer = reg
	return reg
}

// Execute runs the CLI root command. An interrupt cancels the running simulation.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// addRunFlags registers the flags shared by run and compare.
func addRunFlags(c *cobra.Command) {
	c.Flags().Int64Var(&seed, "seed", 42, "Seed for channel and contention draws")
	c.Flags().IntVar(&transmissions, "transmissions", 20000, "Number of data transmissions to simulate")
	c.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	c.Flags().StringVar(&scenarioName, "scenario", "moving-star", "Built-in scenario (static, moving-star, contention)")
	c.Flags().StringVar(&scenarioFile, "scenario-file", "", "Scenario YAML file; overrides --scenario")
	c.Flags().StringVar(&configPath, "config", "", "Controller config YAML (thresholds, probe, regime, tx)")
	c.Flags().StringVar(&metricsOut, "metrics-out", "", "Write controller metrics in Prometheus text format to this file")
	c.Flags().StringVar(&traceLevel, "trace", "decisions", "Decision trace level (none, decisions, rates)")
}

// init sets up CLI flags and subcommands
func init() {
	addRunFlags(runCmd)
	runCmd.Flags().StringVar(&strategy, "strategy", "hybrid", "Rate strategy (hybrid, cara, aarf); overrides the config file")
	addRunFlags(compareCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(compareCmd)
}
