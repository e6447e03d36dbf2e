package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rate-sim/rate-sim/experiment"
	"github.com/rate-sim/rate-sim/ratectl"
	"github.com/rate-sim/rate-sim/ratectl/trace"
)

// runOptions is the flag state of a run or compare invocation.
type runOptions struct {
	Strategy      string
	StrategySet   bool // --strategy was passed and wins over the config file
	Scenario      string
	ScenarioFile  string
	ConfigPath    string
	Transmissions int
	Seed          int64
	TraceLevel    string
}

func currentOptions(cmd *cobra.Command) runOptions {
	return runOptions{
		Strategy:      strategy,
		StrategySet:   cmd.Flags().Changed("strategy"),
		Scenario:      scenarioName,
		ScenarioFile:  scenarioFile,
		ConfigPath:    configPath,
		Transmissions: transmissions,
		Seed:          seed,
		TraceLevel:    traceLevel,
	}
}

// runConfig resolves the options into a validated RunConfig. Precedence for
// controller settings: defaults, then the config file, then --strategy.
func (o runOptions) runConfig() (experiment.RunConfig, error) {
	var rc experiment.RunConfig
	if o.Transmissions <= 0 {
		return rc, fmt.Errorf("--transmissions must be positive, got %d", o.Transmissions)
	}
	if !trace.IsValidTraceLevel(o.TraceLevel) {
		return rc, fmt.Errorf("unknown trace level %q; valid: none, decisions, rates", o.TraceLevel)
	}

	cfg := ratectl.DefaultConfig()
	if o.ConfigPath != "" {
		bundle, err := ratectl.LoadBundle(o.ConfigPath)
		if err != nil {
			return rc, err
		}
		if err := bundle.Validate(); err != nil {
			return rc, fmt.Errorf("%s: %w", o.ConfigPath, err)
		}
		bundle.ApplyTo(&cfg)
	}
	if o.StrategySet {
		if !ratectl.ValidStrategies[o.Strategy] {
			return rc, fmt.Errorf("unknown strategy %q; valid: hybrid, cara, aarf", o.Strategy)
		}
		cfg.Strategy = ratectl.Strategy(o.Strategy)
	}
	if err := cfg.Validate(); err != nil {
		return rc, err
	}

	var scenario *experiment.Scenario
	if o.ScenarioFile != "" {
		s, err := experiment.LoadScenario(o.ScenarioFile)
		if err != nil {
			return rc, err
		}
		scenario = s
	} else {
		if !experiment.ValidPresets[o.Scenario] {
			return rc, fmt.Errorf("unknown scenario %q; valid: static, moving-star, contention", o.Scenario)
		}
		scenario = experiment.Preset(o.Scenario)
	}

	return experiment.RunConfig{
		Scenario:      scenario,
		Controller:    cfg,
		Transmissions: o.Transmissions,
		Seed:          o.Seed,
		TraceLevel:    trace.TraceLevel(o.TraceLevel),
	}, nil
}

// writeMetrics writes the gathered metrics to path in the Prometheus text
// format. An empty path is a no-op.
func writeMetrics(path string, g prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
