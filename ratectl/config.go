package ratectl

import (
	"errors"
	"fmt"
)

// Strategy selects how the controller chooses between the two rate laws.
type Strategy string

const (
	// StrategyHybrid runs the regime detector and the A/B probe.
	StrategyHybrid Strategy = "hybrid"
	// StrategyCARA pins the controller to the collision-aware law.
	StrategyCARA Strategy = "cara"
	// StrategyAARF pins the controller to the adaptive-recovery law.
	StrategyAARF Strategy = "aarf"
)

// ValidStrategies is the set of recognized strategy names. Empty means hybrid.
var ValidStrategies = map[string]bool{"": true, "hybrid": true, "cara": true, "aarf": true}

// CARAConfig holds the collision-aware law thresholds.
type CARAConfig struct {
	ProbeThreshold   int // default: 1
	FailureThreshold int // default: 2
	SuccessThreshold int // default: 10
	TimerTimeout     int // default: 15
}

// AARFConfig holds the adaptive-recovery law factors, caps and floors.
type AARFConfig struct {
	SuccessK            float64 // default: 2.0, must be > 1
	TimerK              float64 // default: 2.0, must be > 1
	MaxSuccessThreshold int     // default: 60
	MinTimerThreshold   int     // default: 15
	MinSuccessThreshold int     // default: 10
}

// RegimeConfig tunes the success-ratio history and jump test.
type RegimeConfig struct {
	FoldSize        int     // outcomes per ratio sample, default: 1000
	HistoryCapacity int     // default: 10
	MinHistory      int     // samples required before a jump can be detected, default: 5
	JumpMultiplier  float64 // default: 3.0 (standard deviations)
}

// ProbeConfig tunes the A/B trial between the two laws.
type ProbeConfig struct {
	Length  int  // outcomes per probe, default: 1000
	Split   int  // remaining count at which CARA hands over to AARF, default: 500
	OnStart bool // probe as soon as the controller starts, default: true
}

// TxConfig holds the transmitter-side fields copied into every TxVector.
type TxConfig struct {
	PowerLevel     int // default: 0
	LongRetryCount int // default: 7
	TxAntennas     int // default: 1
	RTSThreshold   int // frames longer than this many bytes normally use a handshake; 0 disables
}

// Config is the complete, immutable controller configuration.
type Config struct {
	Strategy Strategy
	CARA     CARAConfig
	AARF     AARFConfig
	Regime   RegimeConfig
	Probe    ProbeConfig
	Tx       TxConfig
}

// DefaultConfig returns the standard CARA/AARF parameters with a 1000-outcome probe.
func DefaultConfig() Config {
	return Config{
		Strategy: StrategyHybrid,
		CARA: CARAConfig{
			ProbeThreshold:   1,
			FailureThreshold: 2,
			SuccessThreshold: 10,
			TimerTimeout:     15,
		},
		AARF: AARFConfig{
			SuccessK:            2.0,
			TimerK:              2.0,
			MaxSuccessThreshold: 60,
			MinTimerThreshold:   15,
			MinSuccessThreshold: 10,
		},
		Regime: RegimeConfig{
			FoldSize:        1000,
			HistoryCapacity: 10,
			MinHistory:      5,
			JumpMultiplier:  3.0,
		},
		Probe: ProbeConfig{
			Length:  1000,
			Split:   500,
			OnStart: true,
		},
		Tx: TxConfig{
			LongRetryCount: 7,
			TxAntennas:     1,
		},
	}
}

// ConfigError reports one invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

func positive(field string, v int) error {
	if v <= 0 {
		return &ConfigError{Field: field, Reason: fmt.Sprintf("must be positive, got %d", v)}
	}
	return nil
}

// Validate checks every field and returns all violations joined.
func (c Config) Validate() error {
	var errs []error
	if !ValidStrategies[string(c.Strategy)] {
		errs = append(errs, &ConfigError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", c.Strategy)})
	}

	errs = append(errs,
		positive("cara.probe_threshold", c.CARA.ProbeThreshold),
		positive("cara.failure_threshold", c.CARA.FailureThreshold),
		positive("cara.success_threshold", c.CARA.SuccessThreshold),
		positive("cara.timeout", c.CARA.TimerTimeout),
		positive("aarf.max_success_threshold", c.AARF.MaxSuccessThreshold),
		positive("aarf.min_timer_threshold", c.AARF.MinTimerThreshold),
		positive("aarf.min_success_threshold", c.AARF.MinSuccessThreshold),
		positive("regime.fold_size", c.Regime.FoldSize),
		positive("regime.history_capacity", c.Regime.HistoryCapacity),
		positive("probe.length", c.Probe.Length),
		positive("tx.tx_antennas", c.Tx.TxAntennas),
	)

	if c.AARF.SuccessK <= 1.0 {
		errs = append(errs, &ConfigError{Field: "aarf.success_k", Reason: fmt.Sprintf("must be > 1, got %g", c.AARF.SuccessK)})
	}
	if c.AARF.TimerK <= 1.0 {
		errs = append(errs, &ConfigError{Field: "aarf.timer_k", Reason: fmt.Sprintf("must be > 1, got %g", c.AARF.TimerK)})
	}
	if c.AARF.MinSuccessThreshold > c.AARF.MaxSuccessThreshold {
		errs = append(errs, &ConfigError{Field: "aarf.min_success_threshold",
			Reason: fmt.Sprintf("%d exceeds max_success_threshold %d", c.AARF.MinSuccessThreshold, c.AARF.MaxSuccessThreshold)})
	}
	// The jump test needs a baseline of at least two samples plus the latest one.
	if c.Regime.MinHistory < 3 || c.Regime.MinHistory > c.Regime.HistoryCapacity {
		errs = append(errs, &ConfigError{Field: "regime.min_history",
			Reason: fmt.Sprintf("must be in [3, history_capacity=%d], got %d", c.Regime.HistoryCapacity, c.Regime.MinHistory)})
	}
	if c.Regime.JumpMultiplier <= 0 {
		errs = append(errs, &ConfigError{Field: "regime.jump_multiplier", Reason: fmt.Sprintf("must be positive, got %g", c.Regime.JumpMultiplier)})
	}
	if c.Probe.Split <= 0 || c.Probe.Split >= c.Probe.Length {
		errs = append(errs, &ConfigError{Field: "probe.split",
			Reason: fmt.Sprintf("must be in (0, length=%d), got %d", c.Probe.Length, c.Probe.Split)})
	}
	if c.Tx.PowerLevel < 0 {
		errs = append(errs, &ConfigError{Field: "tx.power_level", Reason: fmt.Sprintf("must be non-negative, got %d", c.Tx.PowerLevel)})
	}
	if c.Tx.LongRetryCount < 0 {
		errs = append(errs, &ConfigError{Field: "tx.long_retry_count", Reason: fmt.Sprintf("must be non-negative, got %d", c.Tx.LongRetryCount)})
	}
	if c.Tx.RTSThreshold < 0 {
		errs = append(errs, &ConfigError{Field: "tx.rts_threshold", Reason: fmt.Sprintf("must be non-negative, got %d", c.Tx.RTSThreshold)})
	}
	return errors.Join(errs...)
}

// effectiveStrategy maps the empty strategy to hybrid.
func (c Config) effectiveStrategy() Strategy {
	if c.Strategy == "" {
		return StrategyHybrid
	}
	return c.Strategy
}
