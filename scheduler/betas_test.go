package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBetaTableLinear(t *testing.T) {
	cfg := DefaultConfig()
	table := newBetaTable(cfg)
	require.Len(t, table.betas, cfg.NumTrainTimesteps)
	require.InDelta(t, cfg.BetaStart, table.betas[0], 1e-6)
	require.InDelta(t, cfg.BetaEnd, table.betas[len(table.betas)-1], 1e-6)
	// alphas_cumprod is strictly decreasing.
	for i := 1; i < len(table.alphasCumprod); i++ {
		require.Less(t, table.alphasCumprod[i], table.alphasCumprod[i-1])
	}
}

func TestBetaTableTrainedOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumTrainTimesteps = 4
	cfg.TrainedBetas = []float32{0.1, 0.2, 0.3, 0.4}
	table := newBetaTable(cfg)
	require.Equal(t, cfg.TrainedBetas, table.betas)
}

func TestBetaTableSquaredCosCapV2(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BetaSchedule = BetaSquaredCosCapV2
	table := newBetaTable(cfg)
	for _, b := range table.betas {
		require.LessOrEqual(t, b, float32(0.999))
		require.GreaterOrEqual(t, b, float32(0))
	}
}

func TestTimestepsForLinspace(t *testing.T) {
	cfg := DefaultConfig()
	ts := timestepsFor(cfg, 20)
	require.Len(t, ts, 20)
	assertStrictlyDecreasing(t, ts)
}

func TestTimestepsForLeading(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimestepSpacing = SpacingLeading
	ts := timestepsFor(cfg, 25)
	require.Len(t, ts, 25)
	assertStrictlyDecreasing(t, ts)
}

func TestTimestepsForTrailing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimestepSpacing = SpacingTrailing
	ts := timestepsFor(cfg, 30)
	require.Len(t, ts, 30)
	assertStrictlyDecreasing(t, ts)
}

func assertStrictlyDecreasing(t *testing.T, ts []int) {
	t.Helper()
	for i := 1; i < len(ts); i++ {
		require.Less(t, ts[i], ts[i-1], "timesteps must be strictly decreasing")
	}
}
