package ratectl

import "math"

// AdaptiveRecoveryLaw is the AARF rate law. Every rate increase is a probe: if
// the first transmission at the new rate fails, the rate falls back and the
// per-station thresholds grow so the next increase is harder to earn.
type AdaptiveRecoveryLaw struct {
	SuccessK            float64
	TimerK              float64
	MaxSuccessThreshold int
	MinTimerThreshold   int
	MinSuccessThreshold int
}

// maxTimeoutThreshold bounds the grown timer threshold so the float product
// always converts back to a positive int.
const maxTimeoutThreshold = math.MaxInt32

// NewAdaptiveRecoveryLaw builds the law from its configuration section.
func NewAdaptiveRecoveryLaw(cfg AARFConfig) AdaptiveRecoveryLaw {
	return AdaptiveRecoveryLaw{
		SuccessK:            cfg.SuccessK,
		TimerK:              cfg.TimerK,
		MaxSuccessThreshold: cfg.MaxSuccessThreshold,
		MinTimerThreshold:   cfg.MinTimerThreshold,
		MinSuccessThreshold: cfg.MinSuccessThreshold,
	}
}

// OnFailure records a failed transmission.
func (l AdaptiveRecoveryLaw) OnFailure(st *StationState) {
	st.TimerTicks++
	st.ConsecutiveFailure++
	st.RetryCount++
	st.ConsecutiveSuccess = 0

	if st.InRecovery {
		if st.RetryCount == 1 {
			// recovery fallback
			st.SuccessThreshold = int(math.Min(float64(st.SuccessThreshold)*l.SuccessK, float64(l.MaxSuccessThreshold)))
			grown := math.Min(float64(st.TimeoutThreshold)*l.TimerK, maxTimeoutThreshold)
			st.TimeoutThreshold = int(math.Max(grown, float64(l.MinSuccessThreshold)))
			st.decreaseRate()
		}
		st.TimerTicks = 0
		return
	}

	if (st.RetryCount-1)%2 == 1 {
		// normal fallback
		st.TimeoutThreshold = l.MinTimerThreshold
		st.SuccessThreshold = l.MinSuccessThreshold
		st.decreaseRate()
	}
	if st.RetryCount >= 2 {
		st.TimerTicks = 0
	}
}

// OnSuccess records a delivered transmission. Reaching either threshold below
// the top rate raises the rate and arms recovery for the next attempt.
func (l AdaptiveRecoveryLaw) OnSuccess(st *StationState) {
	st.TimerTicks++
	st.ConsecutiveSuccess++
	st.ConsecutiveFailure = 0
	st.InRecovery = false
	st.RetryCount = 0

	if (st.ConsecutiveSuccess == st.SuccessThreshold || st.TimerTicks == st.TimeoutThreshold) &&
		st.RateIndex < st.MaxRateIndex() {
		st.RateIndex++
		st.TimerTicks = 0
		st.ConsecutiveSuccess = 0
		st.InRecovery = true
	}
}

// NeedsHandshake never forces a handshake.
func (l AdaptiveRecoveryLaw) NeedsHandshake(_ *StationState, normally bool) bool {
	return normally
}
