package ratectl

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rate-sim/rate-sim/ratectl/internal/testutil"
	"github.com/rate-sim/rate-sim/ratectl/metrics"
	"github.com/rate-sim/rate-sim/ratectl/trace"
)

const testDest = "00:00:00:00:00:01"

func newTestController(t *testing.T, mutate func(*Config)) *HybridController {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewHybridController(cfg, DefaultOfdmModes())
	require.NoError(t, err)
	return c
}

func report(c *HybridController, dest string, outcomes []bool) {
	for _, success := range outcomes {
		c.ReportOutcome(dest, success, false)
	}
}

func TestNewHybridController_InvalidConfig_ReturnsConfigError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CARA.FailureThreshold = 0
	cfg.AARF.MinSuccessThreshold = 100

	_, err := NewHybridController(cfg, DefaultOfdmModes())

	require.Error(t, err)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), "cara.failure_threshold")
	assert.Contains(t, err.Error(), "aarf.min_success_threshold")
}

func TestNewHybridController_NoModes_ReturnsConfigError(t *testing.T) {
	_, err := NewHybridController(DefaultConfig(), nil)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "modes", cfgErr.Field)
}

func TestHybridController_StartsProbingInCARAPhase(t *testing.T) {
	c := newTestController(t, nil)
	snap := c.Snapshot()

	assert.Equal(t, StrategyHybrid, snap.Strategy)
	assert.True(t, snap.Probe.Active)
	assert.Equal(t, LawCARA, snap.Probe.Phase)
	assert.Equal(t, 1000, snap.Probe.Remaining)
}

func TestHybridController_Probe_SplitsOutcomes500And500(t *testing.T) {
	c := newTestController(t, nil)

	// first 499 outcomes stay in the CARA phase
	report(c, testDest, testutil.Repeat(false, 499))
	snap := c.Snapshot()
	require.True(t, snap.Probe.Active)
	assert.Equal(t, LawCARA, snap.Probe.Phase)
	assert.Equal(t, 501, snap.Probe.Remaining)

	// the 500th hands over to AARF
	report(c, testDest, testutil.Repeat(false, 1))
	snap = c.Snapshot()
	assert.Equal(t, LawAARF, snap.Probe.Phase)
	assert.Equal(t, 500, snap.Probe.Remaining)

	// 500 more outcomes finish the probe
	report(c, testDest, testutil.Repeat(true, 499))
	assert.True(t, c.Snapshot().Probe.Active)
	report(c, testDest, testutil.Repeat(true, 1))
	snap = c.Snapshot()
	assert.False(t, snap.Probe.Active)
	assert.Equal(t, ProbeStatus{}, snap.Probe)
}

func TestHybridController_Probe_PicksLawWithMoreSuccesses(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []bool
		want     Law
	}{
		{
			name:     "cara phase better",
			outcomes: testutil.Concat(testutil.Repeat(true, 500), testutil.Repeat(false, 500)),
			want:     LawCARA,
		},
		{
			name:     "aarf phase better",
			outcomes: testutil.Concat(testutil.Repeat(false, 500), testutil.Repeat(true, 500)),
			want:     LawAARF,
		},
		{
			name:     "tie favors aarf",
			outcomes: testutil.Repeat(true, 1000),
			want:     LawAARF,
		},
		{
			name: "cara wins by one",
			outcomes: testutil.Concat(
				testutil.Repeat(true, 251), testutil.Repeat(false, 249),
				testutil.Repeat(true, 250), testutil.Repeat(false, 250)),
			want: LawCARA,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(t, nil)
			report(c, testDest, tt.outcomes)

			snap := c.Snapshot()
			assert.False(t, snap.Probe.Active)
			assert.Equal(t, tt.want, snap.ActiveLaw)
		})
	}
}

func TestHybridController_ProbeEnd_KeepsRatioHistory(t *testing.T) {
	c := newTestController(t, nil)
	report(c, testDest, testutil.Repeat(true, 1000))

	snap := c.Snapshot()
	assert.Equal(t, []float64{1.0}, snap.History)
	assert.Equal(t, int64(1000), snap.Outcomes)
}

func TestHybridController_ProbePhase_GovernsStation(t *testing.T) {
	c := newTestController(t, nil)

	// climb to rate 2 under the CARA phase
	report(c, testDest, testutil.Repeat(true, 20))
	st, ok := c.Station(testDest)
	require.True(t, ok)
	require.Equal(t, 2, st.RateIndex)

	// busy failures are collisions under CARA and keep the rate
	c.ReportOutcome(testDest, false, true)
	c.ReportOutcome(testDest, false, true)
	st, _ = c.Station(testDest)
	assert.Equal(t, 2, st.RateIndex)

	// CARA forces a handshake after a failure
	assert.True(t, c.NeedsHandshake(testDest, false))

	// move into the AARF phase: the busy flag is ignored there
	report(c, testDest, testutil.Repeat(true, 500-22))
	require.Equal(t, LawAARF, c.Snapshot().Probe.Phase)
	before, _ := c.Station(testDest)
	c.ReportOutcome(testDest, false, true)
	c.ReportOutcome(testDest, false, true)
	after, _ := c.Station(testDest)
	assert.Less(t, after.RateIndex, before.RateIndex, "AARF falls back regardless of channel state")
	assert.False(t, c.NeedsHandshake(testDest, false), "AARF never forces a handshake")
}

func TestHybridController_RegimeJump_StartsProbe(t *testing.T) {
	// GIVEN a hybrid controller without the start probe and small windows
	c := newTestController(t, func(cfg *Config) {
		cfg.Probe.OnStart = false
		cfg.Probe.Length = 20
		cfg.Probe.Split = 10
		cfg.Regime.FoldSize = 10
	})
	require.False(t, c.Snapshot().Probe.Active)

	// WHEN four stable windows are followed by a collapsed one
	stable := testutil.Outcomes("SSSSSSSSSF")
	for i := 0; i < 4; i++ {
		report(c, testDest, stable)
		require.False(t, c.Snapshot().Probe.Active, "window %d", i)
	}
	report(c, testDest, testutil.Outcomes("SFFFFFFFFF"))

	// THEN a probe starts
	snap := c.Snapshot()
	assert.True(t, snap.Probe.Active)
	assert.Equal(t, LawCARA, snap.Probe.Phase)
	assert.Equal(t, 20, snap.Probe.Remaining)
	testutil.AssertFloatsNear(t, []float64{0.9, 0.9, 0.9, 0.9, 0.1}, snap.History, 1e-12)
}

func TestHybridController_NoJumpCheckWhileProbing(t *testing.T) {
	c := newTestController(t, func(cfg *Config) {
		cfg.Probe.Length = 100
		cfg.Probe.Split = 50
		cfg.Regime.FoldSize = 10
	})
	dt := trace.NewDecisionTrace(trace.TraceLevelDecisions)
	c.SetTrace(dt)

	stable := testutil.Outcomes("SSSSSSSSSF")
	for i := 0; i < 5; i++ {
		report(c, testDest, stable)
	}
	report(c, testDest, testutil.Outcomes("FFFFFFFFFF"))

	require.Len(t, dt.Folds, 6)
	for _, f := range dt.Folds {
		assert.False(t, f.Jump, "fold at seq %d evaluated while probing", f.Seq)
	}
	require.Len(t, dt.Probes, 1)
	assert.Equal(t, "start", dt.Probes[0].Trigger)
}

func TestHybridController_FixedStrategies_NeverProbe(t *testing.T) {
	for _, tt := range []struct {
		strategy Strategy
		law      Law
	}{
		{StrategyCARA, LawCARA},
		{StrategyAARF, LawAARF},
	} {
		t.Run(string(tt.strategy), func(t *testing.T) {
			c := newTestController(t, func(cfg *Config) {
				cfg.Strategy = tt.strategy
				cfg.Regime.FoldSize = 10
			})
			for i := 0; i < 4; i++ {
				report(c, testDest, testutil.Outcomes("SSSSSSSSSF"))
			}
			report(c, testDest, testutil.Repeat(false, 10))

			snap := c.Snapshot()
			assert.False(t, snap.Probe.Active)
			assert.Equal(t, tt.law, snap.ActiveLaw)
			assert.Len(t, snap.History, 5)
		})
	}
}

func TestHybridController_SampledBusyChannel_ConsumedByNextReport(t *testing.T) {
	c := newTestController(t, func(cfg *Config) { cfg.Strategy = StrategyCARA })
	report(c, testDest, testutil.Repeat(true, 30))
	st, _ := c.Station(testDest)
	require.Equal(t, 3, st.RateIndex)

	c.SampleChannel(true)
	c.ReportOutcome(testDest, false, false)
	c.SampleChannel(true)
	c.ReportOutcome(testDest, false, false)
	st, _ = c.Station(testDest)
	assert.Equal(t, 3, st.RateIndex, "failures on a busy medium are collisions")

	// no sample: the flag was cleared, this failure counts against the rate
	c.ReportOutcome(testDest, false, false)
	st, _ = c.Station(testDest)
	assert.Equal(t, 2, st.RateIndex)
}

func TestHybridController_SelectDataParameters(t *testing.T) {
	c := newTestController(t, func(cfg *Config) {
		cfg.Strategy = StrategyCARA
		cfg.Tx.RTSThreshold = 2200
		cfg.Tx.TxAntennas = 2
		cfg.Tx.PowerLevel = 3
	})
	c.SetStationCapabilities(testDest, Capabilities{RxAntennas: 4, TxAntennas: 2, ShortGuardInterval: true})

	params := c.SelectDataParameters(testDest, 2000)
	assert.Equal(t, "OfdmRate6Mbps", params.Mode.Name)
	assert.False(t, params.HandshakeRequired)
	assert.Equal(t, 2, params.Nss)
	assert.Equal(t, 2, params.Ness)
	assert.Equal(t, 3, params.PowerLevel)
	assert.Equal(t, 7, params.RetryCount)
	assert.True(t, params.ShortGuardInterval)

	assert.True(t, c.SelectDataParameters(testDest, 2300).HandshakeRequired, "large frames normally use a handshake")

	report(c, testDest, testutil.Repeat(true, 10))
	c.ReportOutcome(testDest, false, false)
	params = c.SelectDataParameters(testDest, 2000)
	assert.Equal(t, "OfdmRate9Mbps", params.Mode.Name)
	assert.True(t, params.HandshakeRequired, "a failure forces the CARA probe handshake")
}

func TestHybridController_SelectHandshakeParameters_LowestRate(t *testing.T) {
	c := newTestController(t, func(cfg *Config) { cfg.Strategy = StrategyCARA })
	report(c, testDest, testutil.Repeat(true, 50))

	tx := c.SelectHandshakeParameters(testDest)
	assert.Equal(t, "OfdmRate6Mbps", tx.Mode.Name)
	assert.Equal(t, 1, tx.Nss)
}

func TestHybridController_StationModes_PerDestination(t *testing.T) {
	c := newTestController(t, func(cfg *Config) { cfg.Strategy = StrategyCARA })
	require.NoError(t, c.SetStationModes(testDest, DefaultOfdmModes()[:2]))
	require.Error(t, c.SetStationModes(testDest, nil))

	report(c, testDest, testutil.Repeat(true, 100))
	st, _ := c.Station(testDest)
	assert.Equal(t, 1, st.RateIndex, "rate is capped by the destination's table")

	// a new table drops the state
	require.NoError(t, c.SetStationModes(testDest, DefaultOfdmModes()))
	_, ok := c.Station(testDest)
	assert.False(t, ok)
}

func TestHybridController_RemoveStation(t *testing.T) {
	c := newTestController(t, nil)
	report(c, "a", testutil.Repeat(true, 3))
	report(c, "b", testutil.Repeat(true, 3))
	require.Equal(t, 2, c.Snapshot().Stations)

	c.RemoveStation("a")

	_, ok := c.Station("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Snapshot().Stations)
}

func TestHybridController_StationsAdaptIndependently(t *testing.T) {
	c := newTestController(t, func(cfg *Config) { cfg.Strategy = StrategyCARA })
	report(c, "good", testutil.Repeat(true, 40))
	report(c, "bad", testutil.Repeat(false, 40))

	good, _ := c.Station("good")
	bad, _ := c.Station("bad")
	assert.Equal(t, 4, good.RateIndex)
	assert.Equal(t, 0, bad.RateIndex)
}

func TestHybridController_ConcurrentReports_AllCounted(t *testing.T) {
	c := newTestController(t, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			dest := fmt.Sprintf("sta-%d", id)
			for j := 0; j < 500; j++ {
				c.ReportOutcome(dest, j%3 != 0, false)
				_ = c.SelectDataParameters(dest, 1500)
			}
		}(i)
	}
	wg.Wait()

	snap := c.Snapshot()
	assert.Equal(t, int64(4000), snap.Outcomes)
	assert.Equal(t, 8, snap.Stations)
	assert.Len(t, snap.History, 4)
}

func TestHybridController_Trace_RecordsProbeAndRateChanges(t *testing.T) {
	c := newTestController(t, nil)
	dt := trace.NewDecisionTrace(trace.TraceLevelRates)
	c.SetTrace(dt)

	report(c, testDest, testutil.Repeat(true, 1000))

	require.Len(t, dt.Probes, 1)
	p := dt.Probes[0]
	assert.Equal(t, int64(0), p.StartSeq)
	assert.Equal(t, int64(1000), p.EndSeq)
	assert.Equal(t, "cara", p.PreviousLaw)
	assert.Equal(t, "aarf", p.Winner)
	assert.Equal(t, 500, p.CARASuccesses)
	assert.Equal(t, 500, p.AARFSuccesses)

	require.NotEmpty(t, dt.RateChanges)
	assert.Equal(t, 0, dt.RateChanges[0].From)
	assert.Equal(t, 1, dt.RateChanges[0].To)
	assert.Equal(t, "cara", dt.RateChanges[0].Law)

	summary := trace.Summarize(dt)
	assert.Equal(t, 1, summary.LawSwitches)
	assert.Equal(t, 1, summary.Folds)
}

func TestHybridController_Metrics_FollowProbeVerdict(t *testing.T) {
	// GIVEN a controller probing on start with a collector attached
	c := newTestController(t, nil)
	m := metrics.NewCollector("ratectl", nil)
	c.SetMetrics(m)

	// WHEN a full probe of successes is reported
	report(c, testDest, testutil.Repeat(true, 1000))

	// THEN each subphase counted its outcomes and AARF took over on the tie
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Probes.WithLabelValues("start")))
	assert.Equal(t, 500.0, promtest.ToFloat64(m.Outcomes.WithLabelValues("cara", "success")))
	assert.Equal(t, 500.0, promtest.ToFloat64(m.Outcomes.WithLabelValues("aarf", "success")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.LawSwitches.WithLabelValues("cara", "aarf")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.ActiveLaw.WithLabelValues("aarf")))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.ActiveLaw.WithLabelValues("cara")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Folds))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.SuccessRatio))
}

func TestHybridController_WindowClosingOnLastTrialOutcome_NotTestedForJump(t *testing.T) {
	// GIVEN small windows whose boundary coincides with the end of a trial
	c := newTestController(t, func(cfg *Config) {
		cfg.Probe.OnStart = false
		cfg.Probe.Length = 20
		cfg.Probe.Split = 10
		cfg.Regime.FoldSize = 10
	})
	dt := trace.NewDecisionTrace(trace.TraceLevelDecisions)
	c.SetTrace(dt)

	// WHEN a flat history of 0.5 is broken by 0.6, starting a trial
	half := testutil.Outcomes("SSSSSFFFFF")
	for i := 0; i < 4; i++ {
		report(c, testDest, half)
	}
	report(c, testDest, testutil.Outcomes("SSSSSSFFFF"))
	require.True(t, c.Snapshot().Probe.Active)

	// AND the trial's last window jumps to 1.0, far outside the history spread
	report(c, testDest, half)
	report(c, testDest, testutil.Repeat(true, 10))

	// THEN the trial ends and no second one starts from its own outcomes
	snap := c.Snapshot()
	assert.False(t, snap.Probe.Active)
	testutil.AssertFloatsNear(t, []float64{0.5, 0.5, 0.5, 0.5, 0.6, 0.5, 1.0}, snap.History, 1e-12)
	require.Len(t, dt.Probes, 1)
	assert.Equal(t, int64(70), dt.Probes[0].EndSeq)
	require.Len(t, dt.Folds, 7)
	assert.True(t, dt.Folds[4].Jump)
	assert.False(t, dt.Folds[6].Jump)

	// AND the next window is tested again once idle
	report(c, testDest, testutil.Repeat(false, 10))
	assert.True(t, dt.Folds[7].Jump)
	assert.True(t, c.Snapshot().Probe.Active)
}

func TestHybridController_Metrics_RateIndexSetOnFirstContact(t *testing.T) {
	// GIVEN a station created before metrics are attached
	c := newTestController(t, func(cfg *Config) { cfg.Strategy = StrategyCARA })
	c.ReportOutcome("early", false, false)
	m := metrics.NewCollector("ratectl", nil)
	c.SetMetrics(m)

	// WHEN another station reports without ever changing rate
	c.ReportOutcome(testDest, false, false)

	// THEN both destinations have a rate_index series at 0
	assert.Equal(t, 2, promtest.CollectAndCount(m.RateIndex))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.RateIndex.WithLabelValues(testDest)))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.RateIndex.WithLabelValues("early")))
	assert.Zero(t, promtest.CollectAndCount(m.RateChanges))
}
