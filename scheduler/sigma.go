package scheduler

import "math"

// sigmaSchedule is the sigma-space companion to a discrete timestep
// schedule, shared by Euler, EulerAncestral, LMS and KDPM2 (spec.md §4.C:
// "Euler / EulerAncestral: sigma-space ODE step").
type sigmaSchedule struct {
	timesteps []int     // descending, length N
	sigmas    []float32 // length N+1, sigmas[N] == 0 (terminal)
	indexOf   map[int]int
}

func newSigmaSchedule(cfg Config, table betaTable, inferenceSteps int) sigmaSchedule {
	timesteps := timestepsFor(cfg, inferenceSteps)
	sigmas := make([]float32, len(timesteps)+1)
	indexOf := make(map[int]int, len(timesteps))
	for i, t := range timesteps {
		sigmas[i] = sigmaFromAlphaCumprod(table.alphasCumprod[t])
		indexOf[t] = i
	}
	sigmas[len(timesteps)] = 0
	return sigmaSchedule{timesteps: timesteps, sigmas: sigmas, indexOf: indexOf}
}

func (s sigmaSchedule) indexForTimestep(t int) int {
	if idx, ok := s.indexOf[t]; ok {
		return idx
	}
	// Fallback: nearest match, defensive against a caller passing a
	// timestep this schedule didn't produce.
	best, bestDiff := 0, math.MaxInt64
	for i, ts := range s.timesteps {
		diff := ts - t
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return best
}

func predictOriginalSample(predType PredictionType, sample, modelOutput []float32, sigma float32) []float32 {
	out := make([]float32, len(sample))
	switch predType {
	case PredictionVPrediction:
		denom := float32(math.Sqrt(float64(sigma*sigma + 1)))
		for i := range out {
			out[i] = modelOutput[i]*(-sigma/denom) + sample[i]/(sigma*sigma+1)
		}
	case PredictionSample:
		copy(out, modelOutput)
	default: // epsilon
		for i := range out {
			out[i] = sample[i] - sigma*modelOutput[i]
		}
	}
	return out
}
