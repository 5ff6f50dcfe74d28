package scheduler

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/coretensor/diffuse/tensor"
)

// DDPM implements full reverse-variance ancestral sampling (Ho et al. 2020),
// supporting epsilon / v-prediction / sample prediction types (spec.md
// §4.C).
type DDPM struct {
	cfg       Config
	table     betaTable
	timesteps []int
	rng       *rand.Rand
}

// NewDDPM constructs a DDPM scheduler. seed drives the per-step posterior
// noise so that, for a fixed seed, sampling is reproducible (spec.md §8
// invariant 2).
func NewDDPM(cfg Config, seed uint64) *DDPM {
	return &DDPM{
		cfg:   cfg,
		table: newBetaTable(cfg),
		rng:   rand.New(rand.NewSource(seed)),
	}
}

func (s *DDPM) SetTimesteps(inferenceSteps, _ int) {
	s.timesteps = timestepsFor(s.cfg, inferenceSteps)
}

func (s *DDPM) Timesteps() []int { return s.timesteps }

func (s *DDPM) InitNoiseSigma() float32 { return 1.0 }

func (s *DDPM) ScaleInput(latent *tensor.Tensor, t int) *tensor.Tensor { return latent }

func (s *DDPM) previousTimestep(t int) int {
	ratio := s.cfg.NumTrainTimesteps / len(s.timesteps)
	return t - ratio
}

func (s *DDPM) Step(modelOutput *tensor.Tensor, t int, sample *tensor.Tensor) (StepResult, error) {
	if len(modelOutput.Data) != len(sample.Data) {
		return StepResult{}, fmt.Errorf("ddpm: model output and sample length mismatch")
	}

	prevT := s.previousTimestep(t)
	alphaProdT := s.table.alphasCumprod[t]
	var alphaProdTPrev float32 = 1.0
	if prevT >= 0 {
		alphaProdTPrev = s.table.alphasCumprod[prevT]
	}
	betaProdT := 1 - alphaProdT
	betaProdTPrev := 1 - alphaProdTPrev
	currentAlphaT := alphaProdT / alphaProdTPrev
	currentBetaT := 1 - currentAlphaT

	predOriginal := make([]float32, len(sample.Data))
	sqrtAlphaProdT := float32(math.Sqrt(float64(alphaProdT)))
	sqrtBetaProdT := float32(math.Sqrt(float64(betaProdT)))
	for i := range predOriginal {
		switch s.cfg.PredictionType {
		case PredictionEpsilon:
			predOriginal[i] = (sample.Data[i] - sqrtBetaProdT*modelOutput.Data[i]) / sqrtAlphaProdT
		case PredictionSample:
			predOriginal[i] = modelOutput.Data[i]
		case PredictionVPrediction:
			predOriginal[i] = sqrtAlphaProdT*sample.Data[i] - sqrtBetaProdT*modelOutput.Data[i]
		}
	}

	predOriginalCoeff := float32(math.Sqrt(float64(alphaProdTPrev))) * currentBetaT / betaProdT
	currentSampleCoeff := float32(math.Sqrt(float64(currentAlphaT))) * betaProdTPrev / betaProdT

	prev := make([]float32, len(sample.Data))
	for i := range prev {
		prev[i] = predOriginalCoeff*predOriginal[i] + currentSampleCoeff*sample.Data[i]
	}

	if t > 0 {
		variance := currentBetaT * betaProdTPrev / betaProdT
		if variance < 1e-20 {
			variance = 1e-20
		}
		std := float32(math.Sqrt(float64(variance)))
		dist := distuv.Normal{Mu: 0, Sigma: 1, Src: s.rng}
		for i := range prev {
			prev[i] += std * float32(dist.Rand())
		}
	}

	return StepResult{
		PrevSample:         &tensor.Tensor{Data: prev, Shape: append([]int(nil), sample.Shape...)},
		PredOriginalSample: &tensor.Tensor{Data: predOriginal, Shape: append([]int(nil), sample.Shape...)},
	}, nil
}

func (s *DDPM) CreateRandomSample(seed uint64, shape []int, sigma float32) *tensor.Tensor {
	noise := tensor.RandomNormal(seed, shape...)
	return tensor.MultiplyScalar(noise, sigma)
}

func (s *DDPM) AddNoise(clean, noise *tensor.Tensor, t int) (*tensor.Tensor, error) {
	if len(clean.Data) != len(noise.Data) {
		return nil, fmt.Errorf("ddpm: add_noise length mismatch")
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

var _ Scheduler = (*DDPM)(nil)
