package experiment

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rate-sim/rate-sim/ratectl"
	"github.com/rate-sim/rate-sim/ratectl/trace"
)

func testRunConfig(strategy ratectl.Strategy, scenario string, n int) RunConfig {
	cfg := ratectl.DefaultConfig()
	cfg.Strategy = strategy
	return RunConfig{
		Scenario:      Preset(scenario),
		Controller:    cfg,
		Transmissions: n,
		Seed:          42,
		TraceLevel:    trace.TraceLevelDecisions,
	}
}

func TestRun_SameSeed_IdenticalResults(t *testing.T) {
	// GIVEN two identical run configurations
	rc := testRunConfig(ratectl.StrategyHybrid, "moving-star", 4000)

	// WHEN both run
	r1, err := Run(context.Background(), rc)
	require.NoError(t, err)
	r2, err := Run(context.Background(), testRunConfig(ratectl.StrategyHybrid, "moving-star", 4000))
	require.NoError(t, err)

	// THEN every counter matches
	assert.Equal(t, r1.Successes, r2.Successes)
	assert.Equal(t, r1.Handshakes, r2.Handshakes)
	assert.Equal(t, r1.Airtime, r2.Airtime)
	assert.Equal(t, r1.Stations, r2.Stations)
}

func TestRun_CountsEveryTransmission(t *testing.T) {
	res, err := Run(context.Background(), testRunConfig(ratectl.StrategyHybrid, "contention", 3001))
	require.NoError(t, err)

	assert.Equal(t, 3001, res.Attempts)
	assert.Equal(t, int64(3001), res.Final.Outcomes)
	total := 0
	for _, s := range res.Stations {
		total += s.Attempts
		assert.LessOrEqual(t, s.Successes, s.Attempts)
	}
	assert.Equal(t, 3001, total)
	assert.Equal(t, []string{"sta-0", "sta-1", "sta-2"}, []string{res.Stations[0].Name, res.Stations[1].Name, res.Stations[2].Name})
	assert.Greater(t, res.Airtime, 0.0)
	assert.Equal(t, float64(res.Successes*8*1500), res.DeliveredBits)
}

func TestRun_Hybrid_ProbesOnStart(t *testing.T) {
	// GIVEN the hybrid strategy with probe on start
	res, err := Run(context.Background(), testRunConfig(ratectl.StrategyHybrid, "static", 3000))
	require.NoError(t, err)

	// THEN the start probe ran to completion
	require.NotNil(t, res.Trace)
	assert.GreaterOrEqual(t, res.Trace.Probes, 1)
	assert.GreaterOrEqual(t, res.Trace.CompletedProbes, 1)
	assert.Equal(t, 3, res.Trace.Folds)
}

func TestRun_FixedStrategies_NeverProbe(t *testing.T) {
	for _, strategy := range []ratectl.Strategy{ratectl.StrategyCARA, ratectl.StrategyAARF} {
		t.Run(string(strategy), func(t *testing.T) {
			res, err := Run(context.Background(), testRunConfig(strategy, "moving-star", 12000))
			require.NoError(t, err)
			assert.Equal(t, strategy, res.Strategy)
			assert.Zero(t, res.Trace.Probes)
			assert.Equal(t, strategy == ratectl.StrategyAARF, res.Final.ActiveLaw == ratectl.LawAARF)
		})
	}
}

func TestRun_HandshakesOnlyFromCollisionAwareLaw(t *testing.T) {
	aarf, err := Run(context.Background(), testRunConfig(ratectl.StrategyAARF, "contention", 8000))
	require.NoError(t, err)
	cara, err := Run(context.Background(), testRunConfig(ratectl.StrategyCARA, "contention", 8000))
	require.NoError(t, err)

	assert.Zero(t, aarf.Handshakes, "AARF never asks for a handshake when frames are below the RTS threshold")
	assert.Positive(t, cara.Handshakes, "CARA protects the retry after a failure")
}

func TestRun_StrongerLinkGetsFasterRates(t *testing.T) {
	res, err := Run(context.Background(), testRunConfig(ratectl.StrategyAARF, "static", 6000))
	require.NoError(t, err)
	assert.Greater(t, res.Stations[0].MeanRateMbps, res.Stations[1].MeanRateMbps)
}

func TestRun_EmptyStrategy_ReportsHybrid(t *testing.T) {
	res, err := Run(context.Background(), testRunConfig("", "static", 10))
	require.NoError(t, err)
	assert.Equal(t, ratectl.StrategyHybrid, res.Strategy)
}

func TestRun_InvalidInputs(t *testing.T) {
	t.Run("nil scenario", func(t *testing.T) {
		rc := testRunConfig(ratectl.StrategyHybrid, "static", 10)
		rc.Scenario = nil
		_, err := Run(context.Background(), rc)
		require.Error(t, err)
	})
	t.Run("zero transmissions", func(t *testing.T) {
		_, err := Run(context.Background(), testRunConfig(ratectl.StrategyHybrid, "static", 0))
		require.Error(t, err)
	})
	t.Run("invalid scenario", func(t *testing.T) {
		rc := testRunConfig(ratectl.StrategyHybrid, "static", 10)
		rc.Scenario.FrameSize = 0
		_, err := Run(context.Background(), rc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "frame_size")
	})
	t.Run("invalid controller config", func(t *testing.T) {
		rc := testRunConfig(ratectl.StrategyHybrid, "static", 10)
		rc.Controller.CARA.FailureThreshold = 0
		_, err := Run(context.Background(), rc)
		var cfgErr *ratectl.ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "cara.failure_threshold", cfgErr.Field)
	})
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, testRunConfig(ratectl.StrategyHybrid, "static", 5000))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_RegistersControllerMetrics(t *testing.T) {
	// GIVEN a registry attached to the run
	reg := prometheus.NewRegistry()
	rc := testRunConfig(ratectl.StrategyHybrid, "static", 2500)
	rc.Registerer = reg

	// WHEN the run completes
	_, err := Run(context.Background(), rc)
	require.NoError(t, err)

	// THEN the outcome counters sum to the number of transmissions
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != "ratectl_outcomes_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2500.0, total)
}

func TestResult_Print(t *testing.T) {
	res, err := Run(context.Background(), testRunConfig(ratectl.StrategyHybrid, "static", 1500))
	require.NoError(t, err)

	var buf bytes.Buffer
	res.Print(&buf)
	out := buf.String()
	assert.Contains(t, out, "=== Rate Adaptation Run (hybrid, static, seed 42) ===")
	assert.Contains(t, out, "Throughput")
	assert.Contains(t, out, "sta-1")
	assert.Contains(t, out, "Probes")
}

func TestResult_ZeroAttempts_NoDivision(t *testing.T) {
	r := &Result{}
	assert.Zero(t, r.SuccessRatio())
	assert.Zero(t, r.ThroughputMbps())
}
