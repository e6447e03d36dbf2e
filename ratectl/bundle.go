package ratectl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Bundle holds controller configuration loadable from a YAML file.
// Nil pointer fields mean "not set in YAML" and do not override Config.
type Bundle struct {
	Strategy string       `yaml:"strategy"`
	CARA     CARABundle   `yaml:"cara"`
	AARF     AARFBundle   `yaml:"aarf"`
	Regime   RegimeBundle `yaml:"regime"`
	Probe    ProbeBundle  `yaml:"probe"`
	Tx       TxBundle     `yaml:"tx"`
}

// CARABundle holds collision-aware law overrides.
type CARABundle struct {
	ProbeThreshold   *int `yaml:"probe_threshold"`
	FailureThreshold *int `yaml:"failure_threshold"`
	SuccessThreshold *int `yaml:"success_threshold"`
	Timeout          *int `yaml:"timeout"`
}

// AARFBundle holds adaptive-recovery law overrides.
type AARFBundle struct {
	SuccessK            *float64 `yaml:"success_k"`
	TimerK              *float64 `yaml:"timer_k"`
	MaxSuccessThreshold *int     `yaml:"max_success_threshold"`
	MinTimerThreshold   *int     `yaml:"min_timer_threshold"`
	MinSuccessThreshold *int     `yaml:"min_success_threshold"`
}

// RegimeBundle holds regime detector overrides.
type RegimeBundle struct {
	FoldSize        *int     `yaml:"fold_size"`
	HistoryCapacity *int     `yaml:"history_capacity"`
	MinHistory      *int     `yaml:"min_history"`
	JumpMultiplier  *float64 `yaml:"jump_multiplier"`
}

// ProbeBundle holds A/B probe overrides.
type ProbeBundle struct {
	Length  *int  `yaml:"length"`
	Split   *int  `yaml:"split"`
	OnStart *bool `yaml:"on_start"`
}

// TxBundle holds transmitter overrides.
type TxBundle struct {
	PowerLevel     *int `yaml:"power_level"`
	LongRetryCount *int `yaml:"long_retry_count"`
	TxAntennas     *int `yaml:"tx_antennas"`
	RTSThreshold   *int `yaml:"rts_threshold"`
}

// LoadBundle reads and parses a YAML controller configuration file.
// Unknown keys are rejected so that typos surface as errors.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading controller config: %w", err)
	}
	var bundle Bundle
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&bundle); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing controller config: %w", err)
	}
	return &bundle, nil
}

// Validate checks the strategy name. Value ranges are checked by Config.Validate
// once the bundle has been applied.
func (b *Bundle) Validate() error {
	if !ValidStrategies[b.Strategy] {
		return fmt.Errorf("unknown strategy %q", b.Strategy)
	}
	return nil
}

// ApplyTo overwrites the fields of cfg that are set in the bundle.
func (b *Bundle) ApplyTo(cfg *Config) {
	if b.Strategy != "" {
		cfg.Strategy = Strategy(b.Strategy)
	}

	setInt(&cfg.CARA.ProbeThreshold, b.CARA.ProbeThreshold)
	setInt(&cfg.CARA.FailureThreshold, b.CARA.FailureThreshold)
	setInt(&cfg.CARA.SuccessThreshold, b.CARA.SuccessThreshold)
	setInt(&cfg.CARA.TimerTimeout, b.CARA.Timeout)

	setFloat(&cfg.AARF.SuccessK, b.AARF.SuccessK)
	setFloat(&cfg.AARF.TimerK, b.AARF.TimerK)
	setInt(&cfg.AARF.MaxSuccessThreshold, b.AARF.MaxSuccessThreshold)
	setInt(&cfg.AARF.MinTimerThreshold, b.AARF.MinTimerThreshold)
	setInt(&cfg.AARF.MinSuccessThreshold, b.AARF.MinSuccessThreshold)

	setInt(&cfg.Regime.FoldSize, b.Regime.FoldSize)
	setInt(&cfg.Regime.HistoryCapacity, b.Regime.HistoryCapacity)
	setInt(&cfg.Regime.MinHistory, b.Regime.MinHistory)
	setFloat(&cfg.Regime.JumpMultiplier, b.Regime.JumpMultiplier)

	setInt(&cfg.Probe.Length, b.Probe.Length)
	setInt(&cfg.Probe.Split, b.Probe.Split)
	if b.Probe.OnStart != nil {
		cfg.Probe.OnStart = *b.Probe.OnStart
	}

	setInt(&cfg.Tx.PowerLevel, b.Tx.PowerLevel)
	setInt(&cfg.Tx.LongRetryCount, b.Tx.LongRetryCount)
	setInt(&cfg.Tx.TxAntennas, b.Tx.TxAntennas)
	setInt(&cfg.Tx.RTSThreshold, b.Tx.RTSThreshold)
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}
