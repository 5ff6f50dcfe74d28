package scheduler

import "math"

// betaTable holds the precomputed betas/alphas/alphas_cumprod every variant
// derives its numerics from (spec.md §4.C: "Scheduler variants share a
// precomputed betas table ... and derived alphas_cumprod").
type betaTable struct {
	betas         []float32
	alphas        []float32
	alphasCumprod []float32
}

func newBetaTable(cfg Config) betaTable {
	n := cfg.NumTrainTimesteps
	var betas []float32
	switch {
	case len(cfg.TrainedBetas) > 0:
		betas = append([]float32(nil), cfg.TrainedBetas...)
	case cfg.BetaSchedule == BetaScaledLinear:
		start := float32(math.Sqrt(float64(cfg.BetaStart)))
		end := float32(math.Sqrt(float64(cfg.BetaEnd)))
		betas = linspace(start, end, n)
		for i, b := range betas {
			betas[i] = b * b
		}
	case cfg.BetaSchedule == BetaSquaredCosCapV2:
		betas = betasForAlphaBar(n, 0.999)
	default: // BetaLinear
		betas = linspace(cfg.BetaStart, cfg.BetaEnd, n)
	}

	alphas := make([]float32, n)
	alphasCumprod := make([]float32, n)
	cum := float32(1)
	for i, b := range betas {
		alphas[i] = 1 - b
		cum *= alphas[i]
		alphasCumprod[i] = cum
	}

	return betaTable{betas: betas, alphas: alphas, alphasCumprod: alphasCumprod}
}

func linspace(start, end float32, n int) []float32 {
	out := make([]float32, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (end - start) / float32(n-1)
	for i := range out {
		out[i] = start + step*float32(i)
	}
	return out
}

// betasForAlphaBar implements the squaredcos_cap_v2 schedule from
// "Improved Denoising Diffusion Probabilistic Models" (Nichol & Dhariwal),
// matching the diffusers reference implementation bit-for-bit in structure.
func betasForAlphaBar(numDiffusionTimesteps int, maxBeta float32) []float32 {
	alphaBar := func(t float64) float64 {
		return math.Pow(math.Cos((t+0.008)/1.008*math.Pi/2), 2)
	}
	betas := make([]float32, numDiffusionTimesteps)
	for i := 0; i < numDiffusionTimesteps; i++ {
		t1 := float64(i) / float64(numDiffusionTimesteps)
		t2 := float64(i+1) / float64(numDiffusionTimesteps)
		b := 1 - alphaBar(t2)/alphaBar(t1)
		if b > float64(maxBeta) {
			b = float64(maxBeta)
		}
		betas[i] = float32(b)
	}
	return betas
}

// sigmaFromAlphaCumprod converts an alphas_cumprod value into the
// corresponding noise sigma: sigma = sqrt((1-a)/a).
func sigmaFromAlphaCumprod(a float32) float32 {
	return float32(math.Sqrt(float64((1 - a) / a)))
}

// timestepsFor computes the integer timestep schedule per spec.md §4.C's
// timestep_spacing tie-break, matching diffusers' three conventions.
func timestepsFor(cfg Config, inferenceSteps int) []int {
	n := cfg.NumTrainTimesteps
	out := make([]int, inferenceSteps)

	switch cfg.TimestepSpacing {
	case SpacingLinspace:
		vals := linspaceF64(0, float64(n-1), inferenceSteps)
		for i, v := range vals {
			out[i] = int(math.Round(v))
		}
		reverseInts(out)
	case SpacingLeading:
		stepRatio := n / inferenceSteps
		for i := 0; i < inferenceSteps; i++ {
			out[i] = i*stepRatio + cfg.StepsOffset
		}
		reverseInts(out)
	case SpacingTrailing:
		stepRatio := float64(n) / float64(inferenceSteps)
		for i := 0; i < inferenceSteps; i++ {
			v := float64(n) - float64(i)*stepRatio
			out[i] = int(math.Round(v)) - 1
		}
	default:
		vals := linspaceF64(0, float64(n-1), inferenceSteps)
		for i, v := range vals {
			out[i] = int(math.Round(v))
		}
		reverseInts(out)
	}
	return out
}

func linspaceF64(start, end float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (end - start) / float64(n-1)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func reverseInts(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
