package diffuser

import "github.com/coretensor/diffuse/tensor"

// StepCache implements timestep-aware UNet output caching: when the
// timestep hasn't moved far enough since the last computed step, Run reuses
// the previous noise prediction instead of calling the UNet again. Disabled
// by default (a Diffuser's Cache field is nil), in which case Run's
// behavior and output are identical to running with no cache at all.
//
// Reference: "Timestep Embedding Tells: It's Time to Cache for Video
// Diffusion Model" (https://github.com/ali-vilab/TeaCache).
type StepCache struct {
	cached       *tensor.Tensor
	prevTimestep float32
	accumDiff    float32

	Threshold      float32
	RescaleFactor  float32
	SkipEarlySteps int

	hits, misses int
}

// NewStepCache builds a StepCache with the given threshold, rescale factor
// and early-step floor. Zero values are legal: Threshold 0 recomputes every
// step whose timestep moved (equivalent to no caching but with
// bookkeeping), RescaleFactor 0 disables accumulation entirely so, once a
// prediction is cached and SkipEarlySteps has passed, ShouldCompute always
// returns false and every later step reuses that prediction — callers
// wanting a real cache should use DefaultStepCache.
func NewStepCache(threshold, rescaleFactor float32, skipEarlySteps int) *StepCache {
	return &StepCache{Threshold: threshold, RescaleFactor: rescaleFactor, SkipEarlySteps: skipEarlySteps}
}

// DefaultStepCache returns a StepCache tuned the way DefaultTeaCacheConfig
// was: a threshold conservative enough to preserve quality on typical
// step counts, no rescaling, and the first two steps always computed.
func DefaultStepCache() *StepCache {
	return NewStepCache(0.1, 1.0, 2)
}

// ShouldCompute reports whether step's UNet call must run for real. The
// first step, any step below SkipEarlySteps, and any step before a cached
// output exists always compute.
func (c *StepCache) ShouldCompute(step int, timestep float32) bool {
	if step < c.SkipEarlySteps || step == 0 || c.cached == nil {
		return true
	}

	diff := timestep - c.prevTimestep
	if diff < 0 {
		diff = -diff
	}
	c.accumDiff += diff * c.RescaleFactor

	if c.accumDiff > c.Threshold {
		c.accumDiff = 0
		return true
	}
	return false
}

// Update stores output as the reusable prediction for future ShouldCompute
// calls that return false.
func (c *StepCache) Update(output *tensor.Tensor, timestep float32) {
	c.cached = output
	c.prevTimestep = timestep
	c.misses++
}

// Cached returns the last stored prediction.
func (c *StepCache) Cached() *tensor.Tensor {
	c.hits++
	return c.cached
}

// Stats returns cache hit/miss counters.
func (c *StepCache) Stats() (hits, misses int) {
	return c.hits, c.misses
}
