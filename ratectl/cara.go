package ratectl

// CollisionAwareLaw is the CARA rate law: a conservative threshold algorithm
// that refuses to lower the rate for failures seen while the channel was busy.
type CollisionAwareLaw struct {
	ProbeThreshold   int // consecutive failures that force a handshake
	FailureThreshold int // consecutive failures that lower the rate
	SuccessThreshold int // consecutive successes that raise the rate
	TimerTimeout     int // reports without a rate change that raise the rate
}

// NewCollisionAwareLaw builds the law from its configuration section.
func NewCollisionAwareLaw(cfg CARAConfig) CollisionAwareLaw {
	return CollisionAwareLaw{
		ProbeThreshold:   cfg.ProbeThreshold,
		FailureThreshold: cfg.FailureThreshold,
		SuccessThreshold: cfg.SuccessThreshold,
		TimerTimeout:     cfg.TimerTimeout,
	}
}

// OnFailure records a failed transmission. Failures while the channel was busy
// count toward the handshake probe but are attributed to collisions and never
// lower the rate.
func (l CollisionAwareLaw) OnFailure(st *StationState, channelBusy bool) {
	st.TimerTicks++
	st.ConsecutiveFailure++
	st.ConsecutiveSuccess = 0

	if st.ConsecutiveFailure >= l.FailureThreshold && !channelBusy {
		st.decreaseRate()
		st.ConsecutiveFailure = 0
		st.TimerTicks = 0
	}
}

// OnSuccess records a delivered transmission.
func (l CollisionAwareLaw) OnSuccess(st *StationState) {
	st.TimerTicks++
	st.ConsecutiveSuccess++
	st.ConsecutiveFailure = 0

	if st.ConsecutiveSuccess == l.SuccessThreshold || st.TimerTicks >= l.TimerTimeout {
		st.increaseRate()
		st.TimerTicks = 0
		st.ConsecutiveSuccess = 0
	}
}

// NeedsHandshake forces a handshake once ProbeThreshold failures accumulated,
// so the next attempt can tell a collision from a channel loss.
func (l CollisionAwareLaw) NeedsHandshake(st *StationState, normally bool) bool {
	return normally || st.ConsecutiveFailure >= l.ProbeThreshold
}
