package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures probes, folds and law switches.
	TraceLevelDecisions TraceLevel = "decisions"
	// TraceLevelRates additionally captures every per-destination rate change.
	TraceLevelRates TraceLevel = "rates"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	TraceLevelRates:     true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// DecisionTrace collects decision records during a run.
type DecisionTrace struct {
	Level       TraceLevel
	RateChanges []RateChangeRecord
	Probes      []ProbeRecord
	Folds       []FoldRecord
}

// NewDecisionTrace creates a DecisionTrace ready for recording.
func NewDecisionTrace(level TraceLevel) *DecisionTrace {
	return &DecisionTrace{
		Level:       level,
		RateChanges: make([]RateChangeRecord, 0),
		Probes:      make([]ProbeRecord, 0),
		Folds:       make([]FoldRecord, 0),
	}
}

// Enabled reports whether any records are kept.
func (dt *DecisionTrace) Enabled() bool {
	return dt != nil && dt.Level != TraceLevelNone && dt.Level != ""
}

// RecordRateChange appends a rate change record. Only kept at TraceLevelRates.
func (dt *DecisionTrace) RecordRateChange(record RateChangeRecord) {
	if dt == nil || dt.Level != TraceLevelRates {
		return
	}
	dt.RateChanges = append(dt.RateChanges, record)
}

// RecordProbeStart appends an open probe record.
func (dt *DecisionTrace) RecordProbeStart(record ProbeRecord) {
	if !dt.Enabled() {
		return
	}
	dt.Probes = append(dt.Probes, record)
}

// RecordProbeEnd closes the most recent open probe record.
// Without an open probe the call is a no-op.
func (dt *DecisionTrace) RecordProbeEnd(endSeq int64, winner string, caraSuccesses, aarfSuccesses int) {
	if !dt.Enabled() || len(dt.Probes) == 0 {
		return
	}
	last := &dt.Probes[len(dt.Probes)-1]
	if last.EndSeq != 0 {
		return
	}
	last.EndSeq = endSeq
	last.Winner = winner
	last.CARASuccesses = caraSuccesses
	last.AARFSuccesses = aarfSuccesses
}

// RecordFold appends a fold record.
func (dt *DecisionTrace) RecordFold(record FoldRecord) {
	if !dt.Enabled() {
		return
	}
	dt.Folds = append(dt.Folds, record)
}
