package ratectl

import "fmt"

// Mode describes one transmission rate a destination supports.
type Mode struct {
	Name        string  // e.g. "OfdmRate6Mbps"
	DataRateBps uint64  // nominal PHY data rate in bits per second
	MinSNR      float64 // SNR (dB) at which the mode starts to decode reliably; used by channel models
}

// DefaultOfdmModes returns the eight 802.11a OFDM rates, slowest first.
func DefaultOfdmModes() []Mode {
	return []Mode{
		{Name: "OfdmRate6Mbps", DataRateBps: 6_000_000, MinSNR: 4},
		{Name: "OfdmRate9Mbps", DataRateBps: 9_000_000, MinSNR: 6},
		{Name: "OfdmRate12Mbps", DataRateBps: 12_000_000, MinSNR: 8},
		{Name: "OfdmRate18Mbps", DataRateBps: 18_000_000, MinSNR: 11},
		{Name: "OfdmRate24Mbps", DataRateBps: 24_000_000, MinSNR: 14},
		{Name: "OfdmRate36Mbps", DataRateBps: 36_000_000, MinSNR: 18},
		{Name: "OfdmRate48Mbps", DataRateBps: 48_000_000, MinSNR: 22},
		{Name: "OfdmRate54Mbps", DataRateBps: 54_000_000, MinSNR: 24},
	}
}

// Capabilities describes the antenna configuration a destination advertised.
type Capabilities struct {
	ShortGuardInterval bool
	RxAntennas         int // 0 is treated as 1
	TxAntennas         int // 0 is treated as 1
	Stbc               bool
}

// StationState is the adaptation state private to one destination.
// It is created on first contact and dropped with RemoveStation.
type StationState struct {
	Modes []Mode
	Caps  Capabilities

	RateIndex          int // index into Modes; 0 <= RateIndex < len(Modes)
	ConsecutiveSuccess int
	ConsecutiveFailure int
	TimerTicks         int // reports since the last rate change

	// AARF only.
	InRecovery       bool
	RetryCount       int
	SuccessThreshold int
	TimeoutThreshold int
}

// newStationState returns a zeroed state at the lowest rate with the AARF
// thresholds at their configured minimums.
func newStationState(modes []Mode, caps Capabilities, cfg AARFConfig) *StationState {
	return &StationState{
		Modes:            modes,
		Caps:             caps,
		SuccessThreshold: cfg.MinSuccessThreshold,
		TimeoutThreshold: cfg.MinTimerThreshold,
	}
}

// MaxRateIndex returns the highest valid rate index.
func (s *StationState) MaxRateIndex() int {
	return len(s.Modes) - 1
}

// CurrentMode returns the mode at RateIndex.
func (s *StationState) CurrentMode() Mode {
	return s.Modes[s.RateIndex]
}

func (s *StationState) increaseRate() {
	if s.RateIndex < s.MaxRateIndex() {
		s.RateIndex++
	}
}

func (s *StationState) decreaseRate() {
	if s.RateIndex != 0 {
		s.RateIndex--
	}
}

// checkInvariants panics when the reducer produced an impossible state.
func (s *StationState) checkInvariants() {
	if s.RateIndex < 0 || s.RateIndex > s.MaxRateIndex() {
		panic(fmt.Sprintf("rate index %d out of range [0, %d]", s.RateIndex, s.MaxRateIndex()))
	}
	if s.ConsecutiveSuccess < 0 || s.ConsecutiveFailure < 0 || s.TimerTicks < 0 || s.RetryCount < 0 {
		panic(fmt.Sprintf("negative station counter: success=%d failure=%d timer=%d retry=%d",
			s.ConsecutiveSuccess, s.ConsecutiveFailure, s.TimerTicks, s.RetryCount))
	}
}
