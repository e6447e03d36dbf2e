package ratectl

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// RegimeDetector keeps a bounded history of success-ratio samples and flags a
// regime change when the newest sample leaves the band of the older ones.
//
// A rate law tuned for the current channel should produce a stable success
// ratio; a JumpMultiplier-sigma deviation means the link changed underneath it.
type RegimeDetector struct {
	foldSize   int
	capacity   int
	minHistory int
	multiplier float64

	successes int
	failures  int
	history   []float64 // oldest first
}

// NewRegimeDetector creates an empty detector.
func NewRegimeDetector(cfg RegimeConfig) *RegimeDetector {
	return &RegimeDetector{
		foldSize:   cfg.FoldSize,
		capacity:   cfg.HistoryCapacity,
		minHistory: cfg.MinHistory,
		multiplier: cfg.JumpMultiplier,
		history:    make([]float64, 0, cfg.HistoryCapacity),
	}
}

// RecordOutcome adds one outcome to the current window.
func (d *RegimeDetector) RecordOutcome(success bool) {
	if success {
		d.successes++
	} else {
		d.failures++
	}
}

// FoldWindow turns a full window into a ratio sample, evicting the oldest
// sample at capacity. It reports whether a fold happened.
func (d *RegimeDetector) FoldWindow() bool {
	total := d.successes + d.failures
	if total < d.foldSize {
		return false
	}
	if d.successes < 0 || d.failures < 0 {
		panic(fmt.Sprintf("negative window counters: successes=%d failures=%d", d.successes, d.failures))
	}

	ratio := float64(d.successes) / float64(total)
	d.successes = 0
	d.failures = 0

	if len(d.history) >= d.capacity {
		copy(d.history, d.history[1:])
		d.history = d.history[:len(d.history)-1]
	}
	d.history = append(d.history, ratio)
	return true
}

// DetectJump reports whether the latest sample deviates from the mean of the
// earlier samples by more than multiplier population standard deviations.
// It is always false until minHistory samples exist.
func (d *RegimeDetector) DetectJump() bool {
	if len(d.history) < d.minHistory {
		return false
	}
	baseline := d.history[:len(d.history)-1]
	latest := d.history[len(d.history)-1]

	mean, variance := stat.PopMeanVariance(baseline, nil)
	return math.Abs(latest-mean) > d.multiplier*math.Sqrt(variance)
}

// History returns a copy of the ratio samples, oldest first.
func (d *RegimeDetector) History() []float64 {
	out := make([]float64, len(d.history))
	copy(out, d.history)
	return out
}

// Latest returns the newest ratio sample, or false if none exists.
func (d *RegimeDetector) Latest() (float64, bool) {
	if len(d.history) == 0 {
		return 0, false
	}
	return d.history[len(d.history)-1], true
}

// Window returns the outcome counts of the unfolded window.
func (d *RegimeDetector) Window() (successes, failures int) {
	return d.successes, d.failures
}
