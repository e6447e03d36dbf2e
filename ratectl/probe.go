package ratectl

// Law identifies one of the two rate laws.
type Law int

const (
	LawCARA Law = iota
	LawAARF
)

func (l Law) String() string {
	switch l {
	case LawCARA:
		return "cara"
	case LawAARF:
		return "aarf"
	default:
		return "unknown"
	}
}

// ProbeTrigger records why a probe started.
type ProbeTrigger string

const (
	ProbeTriggerStart ProbeTrigger = "start"
	ProbeTriggerJump  ProbeTrigger = "jump"
)

// ProbeStatus is a copy of the probe state machine.
// Active == false is the Idle state; the remaining fields are then zero.
type ProbeStatus struct {
	Active        bool
	Phase         Law
	Remaining     int
	CARASuccesses int
	AARFSuccesses int
}

// probe is the A/B trial: Length outcomes under CARA until Remaining reaches
// Split, then under AARF until Remaining reaches zero.
type probe struct {
	status   ProbeStatus
	split    int
	trigger  ProbeTrigger
	startSeq int64
}

func (p *probe) start(length, split int, trigger ProbeTrigger, seq int64) {
	p.status = ProbeStatus{Active: true, Phase: LawCARA, Remaining: length}
	p.split = split
	p.trigger = trigger
	p.startSeq = seq
}

// advance accounts for one outcome of the current phase. When the probe ends it
// returns done with the final tallies and the law that collected strictly more
// successes; AARF wins ties.
func (p *probe) advance(success bool) (done bool, winner Law, final ProbeStatus) {
	if !p.status.Active {
		return false, 0, ProbeStatus{}
	}
	if success {
		switch p.status.Phase {
		case LawCARA:
			p.status.CARASuccesses++
		case LawAARF:
			p.status.AARFSuccesses++
		}
	}

	p.status.Remaining--
	if p.status.Remaining == p.split {
		p.status.Phase = LawAARF
	}
	if p.status.Remaining > 0 {
		return false, 0, ProbeStatus{}
	}

	final = p.status
	winner = LawAARF
	if final.CARASuccesses > final.AARFSuccesses {
		winner = LawCARA
	}
	p.status = ProbeStatus{}
	return true, winner, final
}
