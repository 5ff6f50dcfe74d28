package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coretensor/diffuse/api"
)

func TestExpandSeedCount(t *testing.T) {
	base := api.SchedulerOptions{Seed: 1}
	out := Expand(base, api.BatchOptions{BatchType: api.BatchSeed, Count: 3, ValueFrom: 100})
	assert.Len(t, out, 3)
	seen := make(map[uint64]bool, 3)
	for _, o := range out {
		assert.NotZero(t, o.Seed)
		assert.False(t, seen[o.Seed], "expected distinct random seeds, got a repeat: %d", o.Seed)
		seen[o.Seed] = true
	}
}

func TestExpandSeedCountFloorsAtOne(t *testing.T) {
	out := Expand(api.SchedulerOptions{}, api.BatchOptions{BatchType: api.BatchSeed, Count: 0})
	assert.Len(t, out, 1)
}

func TestExpandStepRange(t *testing.T) {
	out := Expand(api.SchedulerOptions{}, api.BatchOptions{BatchType: api.BatchStep, ValueFrom: 10, ValueTo: 15})
	assert.Len(t, out, 5)
	assert.Equal(t, 10, out[0].InferenceSteps)
	assert.Equal(t, 14, out[4].InferenceSteps)
}

func TestExpandGuidanceIncrement(t *testing.T) {
	out := Expand(api.SchedulerOptions{}, api.BatchOptions{BatchType: api.BatchGuidance, ValueFrom: 5, ValueTo: 9, Increment: 2})
	assert.Len(t, out, 2)
	assert.InDelta(t, 5.0, out[0].GuidanceScale, 1e-6)
	assert.InDelta(t, 7.0, out[1].GuidanceScale, 1e-6)
}

func TestExpandStrengthCeilsFractionalCount(t *testing.T) {
	out := Expand(api.SchedulerOptions{}, api.BatchOptions{BatchType: api.BatchStrength, ValueFrom: 0.2, ValueTo: 0.5, Increment: 0.2})
	assert.Len(t, out, 2)
}
