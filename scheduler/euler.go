package scheduler

import (
	"fmt"
	"math"

	"github.com/coretensor/diffuse/tensor"
)

// Euler implements the discrete Euler ODE step in sigma space (Karras et al.
// 2022 / diffusers EulerDiscreteScheduler), spec.md §4.C.
type Euler struct {
	cfg   Config
	table betaTable
	sched sigmaSchedule
}

func NewEuler(cfg Config) *Euler {
	return &Euler{cfg: cfg, table: newBetaTable(cfg)}
}

func (s *Euler) SetTimesteps(inferenceSteps, _ int) {
	s.sched = newSigmaSchedule(s.cfg, s.table, inferenceSteps)
}

func (s *Euler) Timesteps() []int { return s.sched.timesteps }

func (s *Euler) InitNoiseSigma() float32 {
	max := s.sched.sigmas[0]
	for _, sig := range s.sched.sigmas {
		if sig > max {
			max = sig
		}
	}
	return float32(math.Sqrt(float64(max*max + 1)))
}

func (s *Euler) ScaleInput(latent *tensor.Tensor, t int) *tensor.Tensor {
	sigma := s.sched.sigmas[s.sched.indexForTimestep(t)]
	denom := float32(math.Sqrt(float64(sigma*sigma + 1)))
	return tensor.MultiplyScalar(latent, 1/denom)
}

func (s *Euler) Step(modelOutput *tensor.Tensor, t int, sample *tensor.Tensor) (StepResult, error) {
	if len(modelOutput.Data) != len(sample.Data) {
		return StepResult{}, fmt.Errorf("euler: model output and sample length mismatch")
	}
	i := s.sched.indexForTimestep(t)
	sigma := s.sched.sigmas[i]
	sigmaNext := s.sched.sigmas[i+1]

	predOriginal := predictOriginalSample(s.cfg.PredictionType, sample.Data, modelOutput.Data, sigma)

	dt := sigmaNext - sigma
	prev := make([]float32, len(sample.Data))
	for j := range prev {
		derivative := (sample.Data[j] - predOriginal[j]) / sigma
		prev[j] = sample.Data[j] + derivative*dt
	}

	return StepResult{
		PrevSample:         &tensor.Tensor{Data: prev, Shape: append([]int(nil), sample.Shape...)},
		PredOriginalSample: &tensor.Tensor{Data: predOriginal, Shape: append([]int(nil), sample.Shape...)},
	}, nil
}

func (s *Euler) CreateRandomSample(seed uint64, shape []int, sigma float32) *tensor.Tensor {
	noise := tensor.RandomNormal(seed, shape...)
	return tensor.MultiplyScalar(noise, sigma)
}

func (s *Euler) AddNoise(clean, noise *tensor.Tensor, t int) (*tensor.Tensor, error) {
	if len(clean.Data) != len(noise.Data) {
		return nil, fmt.Errorf("euler: add_noise length mismatch")
	}
	sigma := s.sched.sigmas[s.sched.indexForTimestep(t)]
	out := make([]float32, len(clean.Data))
	for i := range out {
		out[i] = clean.Data[i] + sigma*noise.Data[i]
	}
	return &tensor.Tensor{Data: out, Shape: append([]int(nil), clean.Shape...)}, nil
}

var _ Scheduler = (*Euler)(nil)
