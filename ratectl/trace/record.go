// Package trace provides decision-trace recording for rate-adaptation analysis.
// This package has no dependencies on ratectl/; it stores pure data types.
package trace

// RateChangeRecord captures a single rate change for one destination.
type RateChangeRecord struct {
	Seq         int64 // controller outcome sequence number
	Destination string
	Law         string // law that moved the rate ("cara" or "aarf")
	From        int
	To          int
}

// ProbeRecord captures one A/B probe from start to verdict.
type ProbeRecord struct {
	StartSeq      int64
	EndSeq        int64 // 0 while the probe is running
	Trigger       string
	PreviousLaw   string
	Winner        string
	CARASuccesses int
	AARFSuccesses int
}

// FoldRecord captures one success-ratio sample and the jump verdict.
type FoldRecord struct {
	Seq   int64
	Ratio float64
	Jump  bool
}
