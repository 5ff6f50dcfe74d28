package pipeline

import (
	"context"

	"github.com/coretensor/diffuse/api"
	"github.com/coretensor/diffuse/batch"
	"github.com/coretensor/diffuse/tensor"
)

// BatchEntry pairs one expanded SchedulerOptions with the pixels its run
// produced (spec.md §4.F: "run_batch(...) → lazy stream of (sched_opts_used,
// pixel_tensor)").
type BatchEntry struct {
	SchedulerUsed api.SchedulerOptions
	Pixels        *tensor.Tensor
	Err           error
}

// RunBatch expands base across one axis (package batch) and runs each
// entry in order, in the same goroutine, reporting progress with
// BatchIndex set so callers can distinguish steps across batch entries
// (spec.md §5: "batch entries execute in BatchGenerator order").
func (p *Pipeline) RunBatch(ctx context.Context, prm api.PromptOptions, base api.SchedulerOptions, axis api.BatchOptions, progress api.ProgressFunc) []BatchEntry {
	expanded := batch.Expand(base, axis)
	out := make([]BatchEntry, len(expanded))

	for i, sched := range expanded {
		idx := i
		wrapped := func(prog api.DiffusionProgress) {
			if progress == nil {
				return
			}
			prog.BatchIndex = idx
			prog.HasBatchIndex = true
			progress(prog)
		}

		result, err := p.Run(ctx, prm, sched, wrapped)
		if err != nil {
			out[i] = BatchEntry{SchedulerUsed: sched, Err: err}
			continue
		}
		out[i] = BatchEntry{SchedulerUsed: result.SchedulerUsed, Pixels: result.Pixels}
	}
	return out
}
