// Package scheduler implements the discrete-time reverse diffusion solver
// family (spec.md §4.C): LMS, Euler, EulerAncestral, DDPM, DDIM, KDPM2. All
// variants share a precomputed betas/alphas_cumprod table and expose the
// same capability set so a diffuser can be written once against the
// Scheduler interface and swapped freely.
package scheduler

import "github.com/coretensor/diffuse/tensor"

// StepResult is what one scheduler.Step call produces (spec.md §3).
type StepResult struct {
	PrevSample        *tensor.Tensor
	PredOriginalSample *tensor.Tensor // optional; nil where a variant doesn't produce one
}

// Scheduler is the common contract every solver variant implements
// (spec.md §4.C).
type Scheduler interface {
	// SetTimesteps computes the integer timestep schedule for a run.
	// originalSteps is only meaningful for LCM-style schedulers; pass 0
	// elsewhere.
	SetTimesteps(inferenceSteps, originalSteps int)

	// Timesteps returns the ordered, strictly decreasing schedule computed
	// by the most recent SetTimesteps call.
	Timesteps() []int

	// InitNoiseSigma is the scale factor applied to the initial random
	// latent before the first step.
	InitNoiseSigma() float32

	// ScaleInput conditions a latent for UNet input at timestep t (identity
	// for schedulers that don't need it).
	ScaleInput(latent *tensor.Tensor, t int) *tensor.Tensor

	// Step advances the latent by one reverse-diffusion update.
	Step(noisePred *tensor.Tensor, t int, latent *tensor.Tensor) (StepResult, error)

	// CreateRandomSample draws a seeded standard-normal latent scaled by
	// sigma (spec.md §4.C).
	CreateRandomSample(seed uint64, shape []int, sigma float32) *tensor.Tensor

	// AddNoise noises a clean latent to the level associated with timestep
	// t — the img2img/inpaint strength path (spec.md §4.E).
	AddNoise(clean, noise *tensor.Tensor, t int) (*tensor.Tensor, error)
}

// Config is the numeric recipe every scheduler variant is built from,
// carrying exactly the fields of api.SchedulerOptions the solver family
// needs (kept independent of package api to avoid a cycle: pipeline
// translates api.SchedulerOptions into this Config).
type Config struct {
	NumTrainTimesteps int
	BetaStart         float32
	BetaEnd           float32
	BetaSchedule      BetaSchedule
	PredictionType    PredictionType
	TimestepSpacing   TimestepSpacing
	TrainedBetas      []float32
	StepsOffset       int
}

// BetaSchedule mirrors api.BetaSchedule without importing package api.
type BetaSchedule int

const (
	BetaLinear BetaSchedule = iota
	BetaScaledLinear
	BetaSquaredCosCapV2
)

// PredictionType mirrors api.PredictionType.
type PredictionType int

const (
	PredictionEpsilon PredictionType = iota
	PredictionVPrediction
	PredictionSample
)

// TimestepSpacing mirrors api.TimestepSpacing.
type TimestepSpacing int

const (
	SpacingLinspace TimestepSpacing = iota
	SpacingLeading
	SpacingTrailing
)

// DefaultConfig returns the generic linear-beta defaults of DDPM's original
// paper (0.0001-0.02), not the SD 1.x "scaled_linear" 0.00085-0.012
// convention most published checkpoints use; pipelines override as needed.
func DefaultConfig() Config {
	return Config{
		NumTrainTimesteps: 1000,
		BetaStart:         0.0001,
		BetaEnd:           0.02,
		BetaSchedule:      BetaLinear,
		PredictionType:    PredictionEpsilon,
		TimestepSpacing:   SpacingLinspace,
	}
}
