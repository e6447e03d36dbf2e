package trace

// TraceSummary aggregates statistics from a DecisionTrace.
type TraceSummary struct {
	Probes          int
	CompletedProbes int
	JumpProbes      int // probes started by a regime jump
	LawSwitches     int // completed probes whose winner differs from the law before the probe
	Wins            map[string]int
	Folds           int
	Jumps           int
	RateIncreases   int
	RateDecreases   int
	MeanRatio       float64
}

// Summarize computes aggregate statistics from a DecisionTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(dt *DecisionTrace) *TraceSummary {
	summary := &TraceSummary{
		Wins: make(map[string]int),
	}
	if dt == nil {
		return summary
	}

	summary.Probes = len(dt.Probes)
	for _, p := range dt.Probes {
		if p.Trigger == "jump" {
			summary.JumpProbes++
		}
		if p.EndSeq == 0 {
			continue
		}
		summary.CompletedProbes++
		summary.Wins[p.Winner]++
		if p.Winner != p.PreviousLaw {
			summary.LawSwitches++
		}
	}

	if len(dt.Folds) > 0 {
		total := 0.0
		for _, f := range dt.Folds {
			total += f.Ratio
			if f.Jump {
				summary.Jumps++
			}
		}
		summary.Folds = len(dt.Folds)
		summary.MeanRatio = total / float64(len(dt.Folds))
	}

	for _, r := range dt.RateChanges {
		if r.To > r.From {
			summary.RateIncreases++
		} else if r.To < r.From {
			summary.RateDecreases++
		}
	}

	return summary
}
