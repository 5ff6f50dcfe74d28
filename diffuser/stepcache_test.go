package diffuser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coretensor/diffuse/tensor"
)

func TestStepCacheAlwaysComputesFirstStep(t *testing.T) {
	c := NewStepCache(0.1, 1.0, 0)
	assert.True(t, c.ShouldCompute(0, 999))
}

func TestStepCacheSkipsEarlySteps(t *testing.T) {
	c := NewStepCache(1000, 1.0, 3)
	assert.True(t, c.ShouldCompute(0, 999))
	assert.True(t, c.ShouldCompute(1, 900))
	assert.True(t, c.ShouldCompute(2, 800))
}

func TestStepCacheReusesWithinThreshold(t *testing.T) {
	c := NewStepCache(50, 1.0, 0)
	out := &tensor.Tensor{Data: []float32{1, 2, 3}, Shape: []int{1, 3}}

	assert.True(t, c.ShouldCompute(0, 1000))
	c.Update(out, 1000)

	assert.False(t, c.ShouldCompute(1, 990))
	assert.Same(t, out, c.Cached())
}

func TestStepCacheRecomputesPastThreshold(t *testing.T) {
	c := NewStepCache(50, 1.0, 0)
	out := &tensor.Tensor{Data: []float32{1}, Shape: []int{1}}
	c.ShouldCompute(0, 1000)
	c.Update(out, 1000)

	assert.True(t, c.ShouldCompute(1, 900))
}

func TestStepCacheStatsTrackHitsAndMisses(t *testing.T) {
	c := NewStepCache(50, 1.0, 0)
	out := &tensor.Tensor{Data: []float32{1}, Shape: []int{1}}
	c.Update(out, 500)
	c.Cached()
	c.Cached()

	hits, misses := c.Stats()
	assert.Equal(t, 2, hits)
	assert.Equal(t, 1, misses)
}

func TestDefaultStepCacheHasConservativeThreshold(t *testing.T) {
	c := DefaultStepCache()
	assert.Equal(t, float32(0.1), c.Threshold)
	assert.Equal(t, 2, c.SkipEarlySteps)
}
