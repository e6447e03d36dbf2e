package experiment

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/rate-sim/rate-sim/ratectl"
	"github.com/rate-sim/rate-sim/ratectl/metrics"
	"github.com/rate-sim/rate-sim/ratectl/trace"
)

// Airtime model, in seconds.
const (
	preambleTime        = 20e-6 // PLCP preamble and header per frame
	interFrameSpace     = 34e-6 // DIFS before every attempt
	shortIFS            = 16e-6
	handshakeFrameBytes = 20 // RTS and CTS each
	ackTime             = 44e-6
)

// cancelCheckInterval is how many transmissions run between context checks.
const cancelCheckInterval = 1024

// RunConfig describes one run.
type RunConfig struct {
	Scenario      *Scenario
	Controller    ratectl.Config
	Transmissions int
	Seed          int64
	TraceLevel    trace.TraceLevel      // empty means none
	Registerer    prometheus.Registerer // optional; controller metrics are registered here
}

// StationResult holds the per-destination counters of a run.
type StationResult struct {
	Name           string
	Attempts       int
	Successes      int
	MeanRateMbps   float64 // mean data rate chosen for this station's attempts
	StdRateMbps    float64
	FinalRateIndex int
}

// Result aggregates the outcome of a run.
type Result struct {
	Strategy      ratectl.Strategy
	Scenario      string
	Seed          int64
	Attempts      int
	Successes     int
	Handshakes    int
	DeliveredBits float64
	Airtime       float64 // seconds spent on the medium
	Stations      []StationResult
	Final         ratectl.Snapshot
	Trace         *trace.TraceSummary
}

// SuccessRatio returns delivered attempts over all attempts.
func (r *Result) SuccessRatio() float64 {
	if r.Attempts == 0 {
		return 0
	}
	return float64(r.Successes) / float64(r.Attempts)
}

// ThroughputMbps returns delivered payload over airtime.
func (r *Result) ThroughputMbps() float64 {
	if r.Airtime == 0 {
		return 0
	}
	return r.DeliveredBits / r.Airtime / 1e6
}

// Print writes a human-readable summary of the run to w.
func (r *Result) Print(w io.Writer) {
	fmt.Fprintf(w, "=== Rate Adaptation Run (%s, %s, seed %d) ===\n", r.Strategy, r.Scenario, r.Seed)
	fmt.Fprintf(w, "Attempts             : %d\n", r.Attempts)
	fmt.Fprintf(w, "Successes            : %d (%.2f%%)\n", r.Successes, 100*r.SuccessRatio())
	fmt.Fprintf(w, "Handshakes           : %d\n", r.Handshakes)
	fmt.Fprintf(w, "Airtime              : %.3f s\n", r.Airtime)
	fmt.Fprintf(w, "Throughput           : %.2f Mbps\n", r.ThroughputMbps())
	fmt.Fprintf(w, "Final Law            : %s\n", r.Final.ActiveLaw)
	if r.Trace != nil && r.Trace.Probes > 0 {
		fmt.Fprintf(w, "Probes               : %d (%d after a jump, %d switched law)\n",
			r.Trace.Probes, r.Trace.JumpProbes, r.Trace.LawSwitches)
	}
	for _, s := range r.Stations {
		fmt.Fprintf(w, "  %-12s attempts=%d delivered=%d mean_rate=%.1f±%.1f Mbps final_index=%d\n",
			s.Name, s.Attempts, s.Successes, s.MeanRateMbps, s.StdRateMbps, s.FinalRateIndex)
	}
}

// Run drives a controller through the scenario for rc.Transmissions attempts,
// visiting the stations round robin. It stops early with ctx's error when ctx
// is cancelled.
func Run(ctx context.Context, rc RunConfig) (*Result, error) {
	if rc.Scenario == nil {
		return nil, errors.New("run: scenario is required")
	}
	if rc.Transmissions <= 0 {
		return nil, fmt.Errorf("run: transmissions must be positive, got %d", rc.Transmissions)
	}
	if err := rc.Scenario.Validate(); err != nil {
		return nil, fmt.Errorf("run: scenario %q: %w", rc.Scenario.Name, err)
	}

	ctrl, err := ratectl.NewHybridController(rc.Controller, ratectl.DefaultOfdmModes())
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	s := rc.Scenario
	for i, st := range s.Stations {
		if st.Modes > 0 {
			if err := ctrl.SetStationModes(st.Name, s.StationModes(i)); err != nil {
				return nil, fmt.Errorf("run: station %q: %w", st.Name, err)
			}
		}
	}
	var dt *trace.DecisionTrace
	if rc.TraceLevel != "" && rc.TraceLevel != trace.TraceLevelNone {
		dt = trace.NewDecisionTrace(rc.TraceLevel)
		ctrl.SetTrace(dt)
	}
	if rc.Registerer != nil {
		ctrl.SetMetrics(metrics.NewCollector("ratectl", rc.Registerer))
	}

	strategy := rc.Controller.Strategy
	if strategy == "" {
		strategy = ratectl.StrategyHybrid
	}
	logrus.Infof("run: strategy=%s scenario=%s transmissions=%d seed=%d", strategy, s.Name, rc.Transmissions, rc.Seed)

	ch := NewChannel(s, NewPartitionedRNG(NewRunKey(rc.Seed)))
	res := &Result{Strategy: strategy, Scenario: s.Name, Seed: rc.Seed}
	frameBits := float64(8 * s.FrameSize)
	rates := make([][]float64, len(s.Stations))
	stations := make([]StationResult, len(s.Stations))

	for tx := 0; tx < rc.Transmissions; tx++ {
		if tx%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		i := tx % len(s.Stations)
		dest := s.Stations[i].Name

		busy := ch.SenseBusy(tx)
		ctrl.SampleChannel(busy)
		params := ctrl.SelectDataParameters(dest, s.FrameSize)
		ok := ch.Transmit(Attempt{Tx: tx, Station: i, Mode: params.Mode, Busy: busy, Handshake: params.HandshakeRequired})

		airtime := interFrameSpace + preambleTime + frameBits/float64(params.Mode.DataRateBps)
		if params.HandshakeRequired {
			res.Handshakes++
			hs := ctrl.SelectHandshakeParameters(dest)
			airtime += 2 * (preambleTime + shortIFS + 8*handshakeFrameBytes/float64(hs.Mode.DataRateBps))
		}
		if ok {
			airtime += shortIFS + ackTime
			res.Successes++
			res.DeliveredBits += frameBits
			stations[i].Successes++
		}
		res.Airtime += airtime
		res.Attempts++
		stations[i].Attempts++
		rates[i] = append(rates[i], float64(params.Mode.DataRateBps)/1e6)

		ctrl.ReportOutcome(dest, ok, false)
	}

	for i, st := range s.Stations {
		stations[i].Name = st.Name
		if len(rates[i]) > 0 {
			stations[i].MeanRateMbps = stat.Mean(rates[i], nil)
		}
		if len(rates[i]) > 1 {
			stations[i].StdRateMbps = stat.StdDev(rates[i], nil)
		}
		if state, ok := ctrl.Station(st.Name); ok {
			stations[i].FinalRateIndex = state.RateIndex
		}
	}
	res.Stations = stations
	res.Final = ctrl.Snapshot()
	res.Trace = trace.Summarize(dt)

	logrus.Infof("run: strategy=%s delivered %d/%d, %.2f Mbps", strategy, res.Successes, res.Attempts, res.ThroughputMbps())
	return res, nil
}
