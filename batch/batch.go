// Package batch expands one base api.SchedulerOptions across a single
// enumerated axis (spec.md §4.G): a BatchGenerator produces the ordered list
// of concrete SchedulerOptions the pipeline runs, one after another, on the
// same seed axis, step count axis, guidance scale axis, or strength axis.
package batch

import (
	"math"

	"github.com/coretensor/diffuse/api"
	"github.com/coretensor/diffuse/tensor"
)

// Expand returns the ordered SchedulerOptions this BatchOptions produces
// from base, following spec.md §4.G's exact count formulas:
//
//	Seed:      max(1, count) entries, each a random seed (ValueFrom/ValueTo ignored)
//	Step:      max(1, to-from) entries, one per integer in [from, to)
//	Guidance:  max(1, ceil((to-from)/increment)) entries
//	Strength:  max(1, ceil((to-from)/increment)) entries
func Expand(base api.SchedulerOptions, opts api.BatchOptions) []api.SchedulerOptions {
	switch opts.BatchType {
	case api.BatchSeed:
		return expandSeed(base, opts)
	case api.BatchStep:
		return expandStep(base, opts)
	case api.BatchGuidance:
		return expandGuidance(base, opts)
	case api.BatchStrength:
		return expandStrength(base, opts)
	default:
		return []api.SchedulerOptions{base}
	}
}

func expandSeed(base api.SchedulerOptions, opts api.BatchOptions) []api.SchedulerOptions {
	count := opts.Count
	if count < 1 {
		count = 1
	}
	out := make([]api.SchedulerOptions, count)
	for i := 0; i < count; i++ {
		out[i] = base.WithSeed(tensor.RandomSeed())
	}
	return out
}

func expandStep(base api.SchedulerOptions, opts api.BatchOptions) []api.SchedulerOptions {
	from, to := int(opts.ValueFrom), int(opts.ValueTo)
	count := to - from
	if count < 1 {
		count = 1
	}
	out := make([]api.SchedulerOptions, count)
	for i := 0; i < count; i++ {
		steps := from + i
		if count == 1 && to <= from {
			steps = from
		}
		out[i] = base.WithInferenceSteps(steps)
	}
	return out
}

func expandGuidance(base api.SchedulerOptions, opts api.BatchOptions) []api.SchedulerOptions {
	count := guidanceStrengthCount(opts)
	out := make([]api.SchedulerOptions, count)
	for i := 0; i < count; i++ {
		out[i] = base.WithGuidanceScale(opts.ValueFrom + float32(i)*opts.Increment)
	}
	return out
}

func expandStrength(base api.SchedulerOptions, opts api.BatchOptions) []api.SchedulerOptions {
	count := guidanceStrengthCount(opts)
	out := make([]api.SchedulerOptions, count)
	for i := 0; i < count; i++ {
		out[i] = base.WithStrength(opts.ValueFrom + float32(i)*opts.Increment)
	}
	return out
}

func guidanceStrengthCount(opts api.BatchOptions) int {
	if opts.Increment == 0 {
		return 1
	}
	count := int(math.Ceil(float64((opts.ValueTo - opts.ValueFrom) / opts.Increment)))
	if count < 1 {
		count = 1
	}
	return count
}
