package scheduler

import (
	"fmt"
	"math"

	"github.com/coretensor/diffuse/tensor"
)

// DDIM implements the deterministic eta=0 reverse step (Song et al. 2020)
// with optional predicted-x0 clipping (spec.md §4.C).
type DDIM struct {
	cfg         Config
	table       betaTable
	timesteps   []int
	ClipSample  bool
}

// NewDDIM constructs a DDIM scheduler. Unlike DDPM, DDIM's eta=0 step is
// deterministic, so no seed is needed for the step itself; CreateRandomSample
// still takes a seed for the initial latent.
func NewDDIM(cfg Config) *DDIM {
	return &DDIM{cfg: cfg, table: newBetaTable(cfg)}
}

func (s *DDIM) SetTimesteps(inferenceSteps, _ int) {
	s.timesteps = timestepsFor(s.cfg, inferenceSteps)
}

func (s *DDIM) Timesteps() []int { return s.timesteps }

func (s *DDIM) InitNoiseSigma() float32 { return 1.0 }

func (s *DDIM) ScaleInput(latent *tensor.Tensor, t int) *tensor.Tensor { return latent }

func (s *DDIM) previousTimestep(t int) int {
	ratio := s.cfg.NumTrainTimesteps / len(s.timesteps)
	return t - ratio
}

func (s *DDIM) Step(modelOutput *tensor.Tensor, t int, sample *tensor.Tensor) (StepResult, error) {
	if len(modelOutput.Data) != len(sample.Data) {
		return StepResult{}, fmt.Errorf("ddim: model output and sample length mismatch")
	}

	prevT := s.previousTimestep(t)
	alphaProdT := s.table.alphasCumprod[t]
	var alphaProdTPrev float32 = 1.0
	if prevT >= 0 {
		alphaProdTPrev = s.table.alphasCumprod[prevT]
	}
	betaProdT := 1 - alphaProdT

	sqrtAlphaProdT := float32(math.Sqrt(float64(alphaProdT)))
	sqrtBetaProdT := float32(math.Sqrt(float64(betaProdT)))

	predOriginal := make([]float32, len(sample.Data))
	epsilon := make([]float32, len(sample.Data))
	for i := range predOriginal {
		switch s.cfg.PredictionType {
		case PredictionEpsilon:
			predOriginal[i] = (sample.Data[i] - sqrtBetaProdT*modelOutput.Data[i]) / sqrtAlphaProdT
			epsilon[i] = modelOutput.Data[i]
		case PredictionSample:
			predOriginal[i] = modelOutput.Data[i]
		case PredictionVPrediction:
			predOriginal[i] = sqrtAlphaProdT*sample.Data[i] - sqrtBetaProdT*modelOutput.Data[i]
		}
		if s.ClipSample {
			predOriginal[i] = clampF32(predOriginal[i], -1, 1)
		}
		if s.cfg.PredictionType != PredictionEpsilon {
			// Recover the implied epsilon regardless of prediction type
			// so the direction term below is always in noise space.
			epsilon[i] = (sample.Data[i] - sqrtAlphaProdT*predOriginal[i]) / sqrtBetaProdT
		}
	}

	sqrtAlphaProdTPrev := float32(math.Sqrt(float64(alphaProdTPrev)))
	sqrtOneMinusAlphaProdTPrev := float32(math.Sqrt(float64(1 - alphaProdTPrev)))

	prev := make([]float32, len(sample.Data))
	for i := range prev {
		direction := sqrtOneMinusAlphaProdTPrev * epsilon[i]
		prev[i] = sqrtAlphaProdTPrev*predOriginal[i] + direction
	}

	return StepResult{
		PrevSample:         &tensor.Tensor{Data: prev, Shape: append([]int(nil), sample.Shape...)},
		PredOriginalSample: &tensor.Tensor{Data: predOriginal, Shape: append([]int(nil), sample.Shape...)},
	}, nil
}

func (s *DDIM) CreateRandomSample(seed uint64, shape []int, sigma float32) *tensor.Tensor {
	noise := tensor.RandomNormal(seed, shape...)
	return tensor.MultiplyScalar(noise, sigma)
}

func (s *DDIM) AddNoise(clean, noise *tensor.Tensor, t int) (*tensor.Tensor, error) {
	if len(clean.Data) != len(noise.Data) {
		return nil, fmt.Errorf("ddim: add_noise length mismatch")
	}
	a := s.table.alphasCumprod[t]
	sqrtA := float32(math.Sqrt(float64(a)))
	sqrtOneMinusA := float32(math.Sqrt(float64(1 - a)))
	out := make([]float32, len(clean.Data))
	for i := range out {
		out[i] = sqrtA*clean.Data[i] + sqrtOneMinusA*noise.Data[i]
	}
	return &tensor.Tensor{Data: out, Shape: append([]int(nil), clean.Shape...)}, nil
}

func clampF32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var _ Scheduler = (*DDIM)(nil)
