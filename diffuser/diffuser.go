// Package diffuser implements Component E: the per-task reverse-diffusion
// loops that turn a scheduler, a set of loaded sub-models, and prompt
// embeddings into a decoded pixel tensor (spec.md §4.E). Every variant
// shares the same outer loop; what differs is how latents are prepared,
// what extra UNet inputs a step contributes, and what happens to the
// latent right after a scheduler step.
package diffuser

import (
	"context"
	"sync"

	"github.com/coretensor/diffuse/api"
	"github.com/coretensor/diffuse/errkind"
	"github.com/coretensor/diffuse/scheduler"
	"github.com/coretensor/diffuse/submodel"
	"github.com/coretensor/diffuse/tensor"
)

// RunState is the lifecycle of one diffuser run (spec.md §4.E: "Idle →
// PreparingLatents → Stepping(k) → Decoding → Done").
type RunState int

const (
	Idle RunState = iota
	PreparingLatents
	Stepping
	Decoding
	Done
	Cancelled
	Failed
)

func (s RunState) String() string {
	switch s {
	case Idle:
		return "idle"
	case PreparingLatents:
		return "preparing_latents"
	case Stepping:
		return "stepping"
	case Decoding:
		return "decoding"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// SubModels bundles the ONNX graphs one diffuser run may call into. Not
// every field is populated for every variant: ControlNet and VAEEncoder are
// nil unless the variant needs them.
type SubModels struct {
	UNet       *submodel.Handle
	ControlNet *submodel.Handle
	VAEEncoder *submodel.Handle
	VAEDecoder *submodel.Handle
}

// RunContext is the fixed, read-only state threaded through one run: the
// prompt embeddings, user options, loaded sub-models and the scheduler
// instance already configured with SetTimesteps.
type RunContext struct {
	Embeds  api.PromptEmbeddings
	Options api.SchedulerOptions
	Prompt  api.PromptOptions
	Models  SubModels
	Sched   scheduler.Scheduler

	VAEScaleFactor float32 // e.g. 1/0.18215
	MemoryMode     api.MemoryMode
}

// GuidanceEnabled reports whether this run doubles the batch for
// classifier-free guidance.
func (rc *RunContext) GuidanceEnabled() bool { return rc.Options.GuidanceEnabled() }

// Variant is the per-task hook set the shared loop in Run drives (spec.md
// §4.E "Variant specifics").
type Variant interface {
	// PrepareLatents returns the initial latent and the ordered subset of
	// scheduler.Timesteps() this run actually iterates (img2img/inpaint
	// start partway through the full schedule).
	PrepareLatents(rc *RunContext) (latents *tensor.Tensor, timesteps []int, err error)

	// BuildExtras returns additional named UNet inputs for step t (e.g. a
	// ControlNet residual, or an inpaint mask/masked-latent concatenation
	// folded directly into the scaled input by returning a replacement
	// tensor under "sample").
	BuildExtras(rc *RunContext, t int, scaled *tensor.Tensor) (map[string]*tensor.Tensor, error)

	// PostStep runs after scheduler.Step (and after the InstaFlow term, when
	// enabled) and may replace the latent — the ImageInpaintLegacy mask
	// blend — or return latents unchanged.
	PostStep(rc *RunContext, t int, noisePred, latents *tensor.Tensor, stepResult scheduler.StepResult) (*tensor.Tensor, error)
}

// Diffuser drives one Variant through the shared reverse-diffusion loop.
// InstaFlow is an orthogonal knob applied uniformly across variants (spec.md
// §4.E: "the distilled term in InstaFlow is applied after a normal
// scheduler step" — reproduced as-is per the Open Questions note that this
// is possibly a bug relative to the reference papers).
type Diffuser struct {
	Variant   Variant
	InstaFlow bool

	// Cache, when non-nil, lets Run skip a UNet call for steps whose
	// timestep hasn't moved far enough since the last computed step. Nil
	// (the default) means every step computes, identically to a Diffuser
	// built before StepCache existed.
	Cache *StepCache

	mu    sync.Mutex
	state RunState
}

// New builds a Diffuser for the given Variant.
func New(v Variant) *Diffuser { return &Diffuser{Variant: v, state: Idle} }

// State reports the run's current lifecycle state; safe to call from a
// separate progress-reporting goroutine while Run is in flight.
func (d *Diffuser) State() RunState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Diffuser) setState(s RunState) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Result is what one Run call produces: the decoded pixel tensor.
type Result struct {
	Pixels *tensor.Tensor
}

// Run executes the shared outer loop (spec.md §4.E steps 1-6). ctx
// cancellation is consulted at the top of every step and immediately before
// decode; an in-flight inference call is never interrupted (spec.md §5).
func (d *Diffuser) Run(ctx context.Context, rc *RunContext, progress api.ProgressFunc) (Result, error) {
	d.setState(PreparingLatents)
	latents, timesteps, err := d.Variant.PrepareLatents(rc)
	if err != nil {
		d.setState(Failed)
		return Result{}, errkind.InferenceFailed("diffuser", "prepare_latents failed", err)
	}

	d.setState(Stepping)
	guidance := rc.GuidanceEnabled()
	total := len(timesteps)

	for step, t := range timesteps {
		if isCancelled(ctx) {
			d.setState(Cancelled)
			return Result{}, errkind.Cancelled("diffuser")
		}

		inputLatent := latents
		if guidance {
			inputLatent = tensor.Repeat(latents, 2)
		}
		scaled := rc.Sched.ScaleInput(inputLatent, t)

		extras, err := d.Variant.BuildExtras(rc, t, scaled)
		if err != nil {
			d.setState(Failed)
			return Result{}, errkind.InferenceFailed("diffuser", "build_extras failed", err)
		}

		var noisePred *tensor.Tensor
		if d.Cache != nil && !d.Cache.ShouldCompute(step, float32(t)) {
			noisePred = d.Cache.Cached()
		} else {
			noisePred, err = runUNet(rc, scaled, t, extras)
			if err != nil {
				d.setState(Failed)
				return Result{}, err
			}
			if d.Cache != nil {
				d.Cache.Update(noisePred, float32(t))
			}
		}

		if guidance {
			halves, err := tensor.Split(noisePred, 2)
			if err != nil {
				d.setState(Failed)
				return Result{}, errkind.ShapeMismatch("diffuser", "guidance split failed: "+err.Error())
			}
			neg, pos := halves[0], halves[1]
			noisePred, err = tensor.Lerp(neg, pos, rc.Options.GuidanceScale)
			if err != nil {
				d.setState(Failed)
				return Result{}, errkind.ShapeMismatch("diffuser", "guidance lerp failed: "+err.Error())
			}
		}

		stepResult, err := rc.Sched.Step(noisePred, t, latents)
		if err != nil {
			d.setState(Failed)
			return Result{}, errkind.InferenceFailed("diffuser", "scheduler step failed", err)
		}
		latents = stepResult.PrevSample

		if d.InstaFlow {
			scaledPred := tensor.MultiplyScalar(noisePred, 1/float32(total))
			latents, err = tensor.Add(latents, scaledPred)
			if err != nil {
				d.setState(Failed)
				return Result{}, errkind.ShapeMismatch("diffuser", "instaflow term failed: "+err.Error())
			}
		}

		latents, err = d.Variant.PostStep(rc, t, noisePred, latents, stepResult)
		if err != nil {
			d.setState(Failed)
			return Result{}, errkind.InferenceFailed("diffuser", "post_step failed", err)
		}

		if progress != nil {
			progress(api.DiffusionProgress{Step: step + 1, Total: total, Latent: latents})
		}
	}

	if isCancelled(ctx) {
		d.setState(Cancelled)
		return Result{}, errkind.Cancelled("diffuser")
	}

	// spec.md §4.E step 5: under Minimum memory mode the UNet (and
	// ControlNet, if this variant used one) are unloaded before decode.
	if rc.MemoryMode == api.MemoryMinimum {
		if rc.Models.UNet != nil {
			rc.Models.UNet.Unload()
		}
		if rc.Models.ControlNet != nil {
			rc.Models.ControlNet.Unload()
		}
	}

	d.setState(Decoding)
	pixels, err := decodeLatents(rc, latents)
	if err != nil {
		d.setState(Failed)
		return Result{}, err
	}
	d.setState(Done)

	return Result{Pixels: pixels}, nil
}

func isCancelled(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// runUNet assembles the standard UNet inputs (sample, timestep,
// encoder_hidden_states) plus whatever extras the variant contributed, and
// executes the graph.
func runUNet(rc *RunContext, scaled *tensor.Tensor, t int, extras map[string]*tensor.Tensor) (*tensor.Tensor, error) {
	sample := scaled
	if replacement, ok := extras["sample"]; ok {
		sample = replacement
		delete(extras, "sample")
	}

	params := submodel.NewInferenceParameters().
		AddInputTensor("sample", sample).
		AddInputInt64("timestep", []int64{int64(t)}).
		AddInputTensor("encoder_hidden_states", rc.Embeds.PromptEmbeds).
		AddOutputBuffer("out_sample")
	if rc.Embeds.PooledPromptEmbeds != nil {
		params.AddInputTensor("text_embeds", rc.Embeds.PooledPromptEmbeds)
	}
	for name, t := range extras {
		params.AddInputTensor(name, t)
	}

	out, err := rc.Models.UNet.RunInference(params)
	if err != nil {
		return nil, err
	}
	pred, ok := out["out_sample"]
	if !ok {
		return nil, errkind.ShapeMismatch("unet", "missing output out_sample")
	}
	return pred, nil
}

// decodeLatents implements spec.md §4.E's decode step: scale by
// vae_scale_factor, run the VAE decoder, map [-1,1] to [0,1]. Latents whose
// spatial size exceeds DefaultTilingConfig's threshold are decoded tile by
// tile (decodeLatentsTiled); smaller latents take the identical single-call
// path that produces, so output does not change below the threshold.
func decodeLatents(rc *RunContext, latents *tensor.Tensor) (*tensor.Tensor, error) {
	return decodeLatentsTiled(rc, latents, DefaultTilingConfig())
}
