package experiment

import (
	"math"
	"math/rand"

	"github.com/rate-sim/rate-sim/ratectl"
)

const (
	// LogisticSlope is the steepness of the success curve around a mode's MinSNR, per dB.
	LogisticSlope = 1.5
	// HandshakeCollisionFactor scales the collision probability of a handshake-protected attempt.
	HandshakeCollisionFactor = 0.1
)

// SuccessProbability is the chance a frame sent at a mode with the given
// minimum SNR survives a link with the given SNR, both in dB.
func SuccessProbability(snr, minSNR float64) float64 {
	return 1 / (1 + math.Exp(-LogisticSlope*(snr-minSNR)))
}

// Attempt describes one data transmission handed to the channel.
type Attempt struct {
	Tx        int // transmission index, selects the phase
	Station   int
	Mode      ratectl.Mode
	Busy      bool // channel sensed busy before the attempt
	Handshake bool
}

// Channel is the synthetic link between the transmitter and its stations.
// Busy draws come from the contention stream and loss draws from one stream
// per station.
type Channel struct {
	scenario   *Scenario
	contention *rand.Rand
	stations   []*rand.Rand
}

// NewChannel creates the channel for a validated scenario.
func NewChannel(s *Scenario, rng *PartitionedRNG) *Channel {
	ch := &Channel{
		scenario:   s,
		contention: rng.ForSubsystem(SubsystemContention),
		stations:   make([]*rand.Rand, len(s.Stations)),
	}
	for i := range s.Stations {
		ch.stations[i] = rng.ForSubsystem(SubsystemStation(i))
	}
	return ch
}

// SenseBusy draws the clear-channel assessment before attempt tx.
func (ch *Channel) SenseBusy(tx int) bool {
	return ch.contention.Float64() < ch.scenario.PhaseAt(tx).BusyProbability
}

// DeliveryProbability returns the chance that a is delivered.
func (ch *Channel) DeliveryProbability(a Attempt) float64 {
	phase := ch.scenario.PhaseAt(a.Tx)
	snr := phase.SNR + ch.scenario.Stations[a.Station].SNROffset
	p := SuccessProbability(snr, a.Mode.MinSNR)
	if a.Busy {
		collision := phase.CollisionProbability
		if a.Handshake {
			collision *= HandshakeCollisionFactor
		}
		p *= 1 - collision
	}
	return p
}

// Transmit draws the outcome of a.
func (ch *Channel) Transmit(a Attempt) bool {
	return ch.stations[a.Station].Float64() < ch.DeliveryProbability(a)
}
