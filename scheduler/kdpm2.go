package scheduler

import (
	"fmt"
	"math"

	"github.com/coretensor/diffuse/tensor"
)

// KDPM2 implements the midpoint-style two-evaluation step of Karras et al.'s
// DPM-Solver-2 (spec.md §4.C: "midpoint-style two-evaluation step (caches
// midpoint state between calls)"). Every nominal solver step except the
// last calls the UNet twice: once at sigma, once at the interpolated
// midpoint sigma; the last step makes only the first evaluation, ending at
// its midpoint sigma just above zero. Timesteps exposes every evaluation
// point so the shared diffuser loop can drive it without special-casing
// KDPM2.
type KDPM2 struct {
	cfg   Config
	table betaTable

	sigmas         []float32 // length N+1, terminal 0
	sigmasInterpol []float32 // length N, midpoint sigma before sigmas[i+1]
	steps          []int     // interleaved timesteps exposed via Timesteps()
	stepToSigmaIdx map[int]int
	interpolAt     map[int]bool

	// midpoint state cached between the "first" and "second" call of a pair
	pending    bool
	cachedIdx  int
	cachedSamp []float32
	cachedDeriv []float32
}

func NewKDPM2(cfg Config) *KDPM2 {
	return &KDPM2{cfg: cfg, table: newBetaTable(cfg)}
}

func (s *KDPM2) SetTimesteps(inferenceSteps, _ int) {
	base := timestepsFor(s.cfg, inferenceSteps)
	n := len(base)
	sigmas := make([]float32, n+1)
	for i, t := range base {
		sigmas[i] = sigmaFromAlphaCumprod(s.table.alphasCumprod[t])
	}
	sigmas[n] = 0

	interpol := make([]float32, n)
	for i := 0; i < n; i++ {
		logLo := math.Log(float64(sigmas[i+1]) + 1e-10)
		logHi := math.Log(float64(sigmas[i]) + 1e-10)
		interpol[i] = float32(math.Exp((logLo + logHi) / 2))
	}

	steps := make([]int, 0, 2*n-1)
	stepToSigmaIdx := make(map[int]int, 2*n-1)
	interpolAt := make(map[int]bool, 2*n-1)
	for i, t := range base {
		steps = append(steps, t)
		stepToSigmaIdx[t] = i
		interpolAt[t] = false
		if i < n-1 {
			// The midpoint pass still needs a real-looking timestep value to
			// feed the UNet's timestep conditioning input, so use the
			// integer midpoint between the two surrounding schedule entries
			// rather than an opaque synthetic marker.
			mid := (t + base[i+1]) / 2
			if _, collide := stepToSigmaIdx[mid]; collide {
				mid = t - 1
			}
			steps = append(steps, mid)
			stepToSigmaIdx[mid] = i
			interpolAt[mid] = true
		}
	}

	s.sigmas = sigmas
	s.sigmasInterpol = interpol
	s.steps = steps
	s.stepToSigmaIdx = stepToSigmaIdx
	s.interpolAt = interpolAt
	s.pending = false
}

func (s *KDPM2) Timesteps() []int { return s.steps }

func (s *KDPM2) InitNoiseSigma() float32 {
	max := s.sigmas[0]
	for _, sig := range s.sigmas {
		if sig > max {
			max = sig
		}
	}
	return float32(math.Sqrt(float64(max*max + 1)))
}

func (s *KDPM2) sigmaFor(t int) float32 {
	i := s.stepToSigmaIdx[t]
	if s.interpolAt[t] {
		return s.sigmasInterpol[i]
	}
	return s.sigmas[i]
}

func (s *KDPM2) ScaleInput(latent *tensor.Tensor, t int) *tensor.Tensor {
	sigma := s.sigmaFor(t)
	denom := float32(math.Sqrt(float64(sigma*sigma + 1)))
	return tensor.MultiplyScalar(latent, 1/denom)
}

func (s *KDPM2) Step(modelOutput *tensor.Tensor, t int, sample *tensor.Tensor) (StepResult, error) {
	if len(modelOutput.Data) != len(sample.Data) {
		return StepResult{}, fmt.Errorf("kdpm2: model output and sample length mismatch")
	}
	i := s.stepToSigmaIdx[t]

	if !s.interpolAt[t] {
		// First evaluation: step from sigmas[i] to the interpolated midpoint.
		sigma := s.sigmas[i]
		sigmaInterpol := s.sigmasInterpol[i]
		predOriginal := predictOriginalSample(s.cfg.PredictionType, sample.Data, modelOutput.Data, sigma)

		derivative := make([]float32, len(sample.Data))
		for j := range derivative {
			derivative[j] = (sample.Data[j] - predOriginal[j]) / sigma
		}
		dt := sigmaInterpol - sigma
		mid := make([]float32, len(sample.Data))
		for j := range mid {
			mid[j] = sample.Data[j] + derivative[j]*dt
		}

		s.pending = true
		s.cachedIdx = i
		s.cachedSamp = append([]float32(nil), sample.Data...)
		s.cachedDeriv = derivative

		return StepResult{
			PrevSample:         &tensor.Tensor{Data: mid, Shape: append([]int(nil), sample.Shape...)},
			PredOriginalSample: &tensor.Tensor{Data: predOriginal, Shape: append([]int(nil), sample.Shape...)},
		}, nil
	}

	if !s.pending || s.cachedIdx != i {
		return StepResult{}, fmt.Errorf("kdpm2: second evaluation called without a matching first evaluation")
	}
	sigmaInterpol := s.sigmasInterpol[i]
	sigmaNext := s.sigmas[i+1]
	predOriginal := predictOriginalSample(s.cfg.PredictionType, sample.Data, modelOutput.Data, sigmaInterpol)

	derivative2 := make([]float32, len(sample.Data))
	for j := range derivative2 {
		derivative2[j] = (s.cachedSamp[j] - predOriginal[j]) / sigmaInterpol
	}
	dt := sigmaNext - s.sigmas[i]
	prev := make([]float32, len(sample.Data))
	for j := range prev {
		prev[j] = s.cachedSamp[j] + derivative2[j]*dt
	}
	s.pending = false

	return StepResult{
		PrevSample:         &tensor.Tensor{Data: prev, Shape: append([]int(nil), sample.Shape...)},
		PredOriginalSample: &tensor.Tensor{Data: predOriginal, Shape: append([]int(nil), sample.Shape...)},
	}, nil
}

func (s *KDPM2) CreateRandomSample(seed uint64, shape []int, sigma float32) *tensor.Tensor {
	noise := tensor.RandomNormal(seed, shape...)
	return tensor.MultiplyScalar(noise, sigma)
}

func (s *KDPM2) AddNoise(clean, noise *tensor.Tensor, t int) (*tensor.Tensor, error) {
	if len(clean.Data) != len(noise.Data) {
		return nil, fmt.Errorf("kdpm2: add_noise length mismatch")
	}
	sigma := s.sigmaFor(t)
	out := make([]float32, len(clean.Data))
	for i := range out {
		out[i] = clean.Data[i] + sigma*noise.Data[i]
	}
	return &tensor.Tensor{Data: out, Shape: append([]int(nil), clean.Shape...)}, nil
}

var _ Scheduler = (*KDPM2)(nil)
