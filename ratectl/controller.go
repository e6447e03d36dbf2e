package ratectl

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rate-sim/rate-sim/ratectl/metrics"
	"github.com/rate-sim/rate-sim/ratectl/trace"
)

// TxVector holds the parameters of one transmission.
type TxVector struct {
	Mode               Mode
	PowerLevel         int
	RetryCount         int
	ShortGuardInterval bool
	Nss                int // spatial streams: min(destination rx antennas, our tx antennas)
	Ness               int // destination tx antennas
	Stbc               bool
}

// DataParameters is the decision for one data transmission.
type DataParameters struct {
	TxVector
	HandshakeRequired bool
}

// Snapshot is a copy of the controller-global state.
type Snapshot struct {
	Strategy        Strategy
	ActiveLaw       Law
	Probe           ProbeStatus
	History         []float64
	WindowSuccesses int
	WindowFailures  int
	Outcomes        int64
	Stations        int
}

// HybridController adapts the transmission rate of every destination of one
// transmitter. It runs the active rate law and, under StrategyHybrid, re-selects
// the law with a timed A/B probe whenever the regime detector sees a jump.
//
// Every exported method takes the controller lock, so events are applied one at
// a time and a rate query never observes a half-updated station.
type HybridController struct {
	mu sync.Mutex

	config   Config
	strategy Strategy
	modes    []Mode // transmitter's rate table, used for destinations without their own
	cara     CollisionAwareLaw
	aarf     AdaptiveRecoveryLaw
	detector *RegimeDetector

	stations     map[string]*StationState
	stationModes map[string][]Mode
	stationCaps  map[string]Capabilities

	activeLaw           Law
	probe               probe
	channelBusyAtLastTx bool
	seq                 int64 // outcomes reported so far

	trace   *trace.DecisionTrace
	metrics *metrics.Collector
}

// NewHybridController validates cfg and creates a controller whose destinations
// default to the rate table modes (slowest first).
func NewHybridController(cfg Config, modes []Mode) (*HybridController, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(modes) == 0 {
		return nil, &ConfigError{Field: "modes", Reason: "at least one mode is required"}
	}

	c := &HybridController{
		config:       cfg,
		strategy:     cfg.effectiveStrategy(),
		modes:        append([]Mode(nil), modes...),
		cara:         NewCollisionAwareLaw(cfg.CARA),
		aarf:         NewAdaptiveRecoveryLaw(cfg.AARF),
		detector:     NewRegimeDetector(cfg.Regime),
		stations:     make(map[string]*StationState),
		stationModes: make(map[string][]Mode),
		stationCaps:  make(map[string]Capabilities),
		activeLaw:    LawCARA,
	}

	switch c.strategy {
	case StrategyAARF:
		c.activeLaw = LawAARF
	case StrategyHybrid:
		if cfg.Probe.OnStart {
			c.startProbe(ProbeTriggerStart)
		}
	}
	return c, nil
}

// SetTrace attaches a decision trace. Nil detaches it. A probe already running
// is recorded so that its verdict has a matching start record.
func (c *HybridController) SetTrace(dt *trace.DecisionTrace) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trace = dt
	if c.probe.status.Active {
		c.trace.RecordProbeStart(trace.ProbeRecord{
			StartSeq: c.probe.startSeq, Trigger: string(c.probe.trigger), PreviousLaw: c.activeLaw.String(),
		})
	}
}

// SetMetrics attaches a prometheus collector. Nil detaches it.
func (c *HybridController) SetMetrics(m *metrics.Collector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
	if m != nil {
		m.SetActiveLaw(c.activeLaw.String(), LawCARA.String(), LawAARF.String())
		if c.probe.status.Active {
			m.ObserveProbeStart(string(c.probe.trigger))
		}
		for dest, st := range c.stations {
			m.SetRateIndex(dest, st.RateIndex)
		}
	}
}

// SetStationModes sets the rate table of dest. Existing adaptation state for
// dest is dropped and re-created at the lowest rate on next contact.
func (c *HybridController) SetStationModes(dest string, modes []Mode) error {
	if len(modes) == 0 {
		return fmt.Errorf("station %s: at least one mode is required", dest)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stationModes[dest] = append([]Mode(nil), modes...)
	delete(c.stations, dest)
	return nil
}

// SetStationCapabilities records the antenna capabilities of dest.
func (c *HybridController) SetStationCapabilities(dest string, caps Capabilities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stationCaps[dest] = caps
	if st, ok := c.stations[dest]; ok {
		st.Caps = caps
	}
}

// RemoveStation drops every piece of state kept for dest.
func (c *HybridController) RemoveStation(dest string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stations, dest)
	delete(c.stationModes, dest)
	delete(c.stationCaps, dest)
	if c.metrics != nil {
		c.metrics.ForgetStation(dest)
	}
}

// SampleChannel records whether the medium was busy at the current transmission
// opportunity. The sample is consumed by the next ReportOutcome.
func (c *HybridController) SampleChannel(busy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channelBusyAtLastTx = busy
}

// ReportOutcome applies one completed transmission attempt to dest.
// channelWasBusy is ORed with the last SampleChannel value; only the
// collision-aware law looks at it.
func (c *HybridController) ReportOutcome(dest string, success, channelWasBusy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	st := c.lookup(dest)
	busy := channelWasBusy || c.channelBusyAtLastTx
	c.channelBusyAtLastTx = false

	c.detector.RecordOutcome(success)

	law := c.governingLaw()
	before := st.RateIndex
	switch law {
	case LawCARA:
		if success {
			c.cara.OnSuccess(st)
		} else {
			c.cara.OnFailure(st, busy)
		}
	case LawAARF:
		if success {
			c.aarf.OnSuccess(st)
		} else {
			c.aarf.OnFailure(st)
		}
	default:
		panic(fmt.Sprintf("unknown rate law %d", law))
	}
	st.checkInvariants()

	if c.metrics != nil {
		c.metrics.ObserveOutcome(law.String(), success)
	}
	if st.RateIndex != before {
		logrus.Debugf("station %s: %s rate %d -> %d (%s)", dest, law, before, st.RateIndex, st.CurrentMode().Name)
		c.trace.RecordRateChange(trace.RateChangeRecord{
			Seq: c.seq, Destination: dest, Law: law.String(), From: before, To: st.RateIndex,
		})
		if c.metrics != nil {
			c.metrics.ObserveRateChange(dest, law.String(), before, st.RateIndex)
		}
	}

	probing := c.probe.status.Active
	if done, winner, final := c.probe.advance(success); done {
		c.finishProbe(winner, final)
	}

	if !c.detector.FoldWindow() {
		return
	}
	ratio, _ := c.detector.Latest()
	jump := false
	// a window that closes on the last outcome of a trial still holds trial
	// outcomes and is not tested for a jump
	if c.strategy == StrategyHybrid && !probing {
		jump = c.detector.DetectJump()
	}
	c.trace.RecordFold(trace.FoldRecord{Seq: c.seq, Ratio: ratio, Jump: jump})
	if c.metrics != nil {
		c.metrics.ObserveFold(ratio)
	}
	if jump {
		logrus.Infof("success ratio jumped to %.3f after %d outcomes", ratio, c.seq)
		c.startProbe(ProbeTriggerJump)
	}
}

// SelectDataParameters returns the rate and handshake decision for a data frame
// of frameSize bytes to dest.
func (c *HybridController) SelectDataParameters(dest string, frameSize int) DataParameters {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.lookup(dest)
	normally := c.config.Tx.RTSThreshold > 0 && frameSize > c.config.Tx.RTSThreshold
	return DataParameters{
		TxVector:          c.txVector(st, st.RateIndex),
		HandshakeRequired: c.needsHandshake(st, normally),
	}
}

// NeedsHandshake reports whether the next data frame to dest must be preceded
// by a handshake, given whether the MAC would normally use one.
func (c *HybridController) NeedsHandshake(dest string, normally bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.needsHandshake(c.lookup(dest), normally)
}

// SelectHandshakeParameters returns the TxVector for the handshake frame: the
// lowest supported rate of dest.
func (c *HybridController) SelectHandshakeParameters(dest string) TxVector {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txVector(c.lookup(dest), 0)
}

// Snapshot returns a copy of the controller-global state.
func (c *HybridController) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	successes, failures := c.detector.Window()
	return Snapshot{
		Strategy:        c.strategy,
		ActiveLaw:       c.activeLaw,
		Probe:           c.probe.status,
		History:         c.detector.History(),
		WindowSuccesses: successes,
		WindowFailures:  failures,
		Outcomes:        c.seq,
		Stations:        len(c.stations),
	}
}

// Station returns a copy of the adaptation state of dest, if it exists.
func (c *HybridController) Station(dest string) (StationState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.stations[dest]
	if !ok {
		return StationState{}, false
	}
	cp := *st
	cp.Modes = append([]Mode(nil), st.Modes...)
	return cp, true
}

// lookup returns the state of dest, creating it on first contact.
func (c *HybridController) lookup(dest string) *StationState {
	if st, ok := c.stations[dest]; ok {
		return st
	}
	modes, ok := c.stationModes[dest]
	if !ok {
		modes = c.modes
	}
	st := newStationState(modes, c.stationCaps[dest], c.config.AARF)
	c.stations[dest] = st
	if c.metrics != nil {
		c.metrics.SetRateIndex(dest, st.RateIndex)
	}
	return st
}

// governingLaw is the probe phase while probing, the active law otherwise.
func (c *HybridController) governingLaw() Law {
	if c.probe.status.Active {
		return c.probe.status.Phase
	}
	return c.activeLaw
}

func (c *HybridController) needsHandshake(st *StationState, normally bool) bool {
	switch c.governingLaw() {
	case LawCARA:
		return c.cara.NeedsHandshake(st, normally)
	default:
		return c.aarf.NeedsHandshake(st, normally)
	}
}

func (c *HybridController) txVector(st *StationState, rateIndex int) TxVector {
	rx := max(st.Caps.RxAntennas, 1)
	return TxVector{
		Mode:               st.Modes[rateIndex],
		PowerLevel:         c.config.Tx.PowerLevel,
		RetryCount:         c.config.Tx.LongRetryCount,
		ShortGuardInterval: st.Caps.ShortGuardInterval,
		Nss:                min(rx, c.config.Tx.TxAntennas),
		Ness:               max(st.Caps.TxAntennas, 1),
		Stbc:               st.Caps.Stbc,
	}
}

func (c *HybridController) startProbe(trigger ProbeTrigger) {
	c.probe.start(c.config.Probe.Length, c.config.Probe.Split, trigger, c.seq)
	logrus.Infof("probe started (%s) after %d outcomes, active law %s", trigger, c.seq, c.activeLaw)
	c.trace.RecordProbeStart(trace.ProbeRecord{StartSeq: c.seq, Trigger: string(trigger), PreviousLaw: c.activeLaw.String()})
	if c.metrics != nil {
		c.metrics.ObserveProbeStart(string(trigger))
	}
}

func (c *HybridController) finishProbe(winner Law, final ProbeStatus) {
	previous := c.activeLaw
	c.activeLaw = winner
	logrus.Infof("probe ended after %d outcomes: cara=%d aarf=%d successes, active law %s -> %s",
		c.seq, final.CARASuccesses, final.AARFSuccesses, previous, winner)
	c.trace.RecordProbeEnd(c.seq, winner.String(), final.CARASuccesses, final.AARFSuccesses)
	if c.metrics != nil {
		c.metrics.SetActiveLaw(winner.String(), LawCARA.String(), LawAARF.String())
		if winner != previous {
			c.metrics.ObserveLawSwitch(previous.String(), winner.String())
		}
	}
}
