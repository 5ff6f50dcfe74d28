package scheduler

import (
	"fmt"
	"math"

	"github.com/coretensor/diffuse/tensor"
)

// LMS implements linear multistep solving with polynomial coefficient
// integration over the last up-to-Order derivatives (spec.md §4.C: "linear
// multistep with polynomial coefficient integration over last ≤4
// derivatives; stores derivative history").
type LMS struct {
	cfg         Config
	table       betaTable
	sched       sigmaSchedule
	Order       int
	derivatives [][]float32
}

func NewLMS(cfg Config) *LMS {
	return &LMS{cfg: cfg, table: newBetaTable(cfg), Order: 4}
}

func (s *LMS) SetTimesteps(inferenceSteps, _ int) {
	s.sched = newSigmaSchedule(s.cfg, s.table, inferenceSteps)
	s.derivatives = nil
}

func (s *LMS) Timesteps() []int { return s.sched.timesteps }

func (s *LMS) InitNoiseSigma() float32 {
	max := s.sched.sigmas[0]
	for _, sig := range s.sched.sigmas {
		if sig > max {
			max = sig
		}
	}
	return float32(math.Sqrt(float64(max*max + 1)))
}

func (s *LMS) ScaleInput(latent *tensor.Tensor, t int) *tensor.Tensor {
	sigma := s.sched.sigmas[s.sched.indexForTimestep(t)]
	denom := float32(math.Sqrt(float64(sigma*sigma + 1)))
	return tensor.MultiplyScalar(latent, 1/denom)
}

// lmsCoefficient integrates the Lagrange basis polynomial for currentOrder
// over [sigmas[stepIndex], sigmas[stepIndex+1]] via Simpson's rule, matching
// the structure of the diffusers reference's quadrature-based coefficients.
func (s *LMS) lmsCoefficient(order, stepIndex, currentOrder int) float64 {
	sigmas := s.sched.sigmas
	f := func(tau float64) float64 {
		prod := 1.0
		for k := 0; k < order; k++ {
			if currentOrder == k {
				continue
			}
			denom := float64(sigmas[stepIndex-currentOrder]) - float64(sigmas[stepIndex-k])
			prod *= (tau - float64(sigmas[stepIndex-k])) / denom
		}
		return prod
	}
	return simpson(f, float64(sigmas[stepIndex]), float64(sigmas[stepIndex+1]), 24)
}

func simpson(f func(float64) float64, a, b float64, n int) float64 {
	if n%2 == 1 {
		n++
	}
	h := (b - a) / float64(n)
	sum := f(a) + f(b)
	for i := 1; i < n; i++ {
		x := a + float64(i)*h
		if i%2 == 0 {
			sum += 2 * f(x)
		} else {
			sum += 4 * f(x)
		}
	}
	return sum * h / 3
}

func (s *LMS) Step(modelOutput *tensor.Tensor, t int, sample *tensor.Tensor) (StepResult, error) {
	if len(modelOutput.Data) != len(sample.Data) {
		return StepResult{}, fmt.Errorf("lms: model output and sample length mismatch")
	}
	i := s.sched.indexForTimestep(t)
	sigma := s.sched.sigmas[i]

	predOriginal := predictOriginalSample(s.cfg.PredictionType, sample.Data, modelOutput.Data, sigma)

	derivative := make([]float32, len(sample.Data))
	for j := range derivative {
		derivative[j] = (sample.Data[j] - predOriginal[j]) / sigma
	}
	s.derivatives = append(s.derivatives, derivative)
	if len(s.derivatives) > s.Order {
		s.derivatives = s.derivatives[1:]
	}

	order := len(s.derivatives)
	if i+1 < order {
		order = i + 1
	}
	coeffs := make([]float64, order)
	for k := 0; k < order; k++ {
		coeffs[k] = s.lmsCoefficient(order, i, k)
	}

	prev := append([]float32(nil), sample.Data...)
	// derivatives are stored oldest-first; coeff index 0 corresponds to the
	// most recent derivative, so walk history in reverse.
	hist := s.derivatives
	for k := 0; k < order; k++ {
		d := hist[len(hist)-1-k]
		c := float32(coeffs[k])
		for j := range prev {
			prev[j] += c * d[j]
		}
	}

	return StepResult{
		PrevSample:         &tensor.Tensor{Data: prev, Shape: append([]int(nil), sample.Shape...)},
		PredOriginalSample: &tensor.Tensor{Data: predOriginal, Shape: append([]int(nil), sample.Shape...)},
	}, nil
}

func (s *LMS) CreateRandomSample(seed uint64, shape []int, sigma float32) *tensor.Tensor {
	noise := tensor.RandomNormal(seed, shape...)
	return tensor.MultiplyScalar(noise, sigma)
}

func (s *LMS) AddNoise(clean, noise *tensor.Tensor, t int) (*tensor.Tensor, error) {
	if len(clean.Data) != len(noise.Data) {
		return nil, fmt.Errorf("lms: add_noise length mismatch")
	}
	sigma := s.sched.sigmas[s.sched.indexForTimestep(t)]
	out := make([]float32, len(clean.Data))
	for i := range out {
		out[i] = clean.Data[i] + sigma*noise.Data[i]
	}
	return &tensor.Tensor{Data: out, Shape: append([]int(nil), clean.Shape...)}, nil
}

var _ Scheduler = (*LMS)(nil)
