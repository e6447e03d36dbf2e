package experiment

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/rate-sim/rate-sim/ratectl"
)

// Strategies is the order in which Compare runs and reports strategies.
var Strategies = []ratectl.Strategy{ratectl.StrategyHybrid, ratectl.StrategyCARA, ratectl.StrategyAARF}

// Compare runs base once per strategy, concurrently, with identical seeds and
// scenario. Each run's metrics carry a strategy label. Results follow the
// order of strategies; the first failing run cancels the others.
func Compare(ctx context.Context, base RunConfig, strategies []ratectl.Strategy) ([]*Result, error) {
	results := make([]*Result, len(strategies))
	g, ctx := errgroup.WithContext(ctx)
	for i, strategy := range strategies {
		i, strategy := i, strategy
		rc := base
		rc.Controller.Strategy = strategy
		rc.Scenario = cloneScenario(base.Scenario)
		if base.Registerer != nil {
			rc.Registerer = prometheus.WrapRegistererWith(prometheus.Labels{"strategy": string(strategy)}, base.Registerer)
		}
		g.Go(func() error {
			res, err := Run(ctx, rc)
			if err != nil {
				return fmt.Errorf("strategy %s: %w", strategy, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// PrintComparison writes one row per result to w.
func PrintComparison(w io.Writer, results []*Result) {
	fmt.Fprintln(w, "=== Strategy Comparison ===")
	fmt.Fprintf(w, "%-8s %10s %10s %12s %10s %8s\n", "strategy", "attempts", "success%", "throughput", "handshake", "probes")
	for _, r := range results {
		probes := 0
		if r.Trace != nil {
			probes = r.Trace.Probes
		}
		fmt.Fprintf(w, "%-8s %10d %10.2f %12.2f %10d %8d\n",
			r.Strategy, r.Attempts, 100*r.SuccessRatio(), r.ThroughputMbps(), r.Handshakes, probes)
	}
}

func cloneScenario(s *Scenario) *Scenario {
	if s == nil {
		return nil
	}
	c := *s
	c.Stations = append([]StationSpec(nil), s.Stations...)
	c.Phases = append([]Phase(nil), s.Phases...)
	return &c
}
