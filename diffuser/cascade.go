package diffuser

import (
	"context"
	"math"

	"github.com/coretensor/diffuse/api"
	"github.com/coretensor/diffuse/errkind"
	"github.com/coretensor/diffuse/scheduler"
	"github.com/coretensor/diffuse/submodel"
	"github.com/coretensor/diffuse/tensor"
)

// cascadeSpatialDivisor is Stable Cascade's prior-latent downscale factor.
// This exact value (not a rounder 42 or 43) matches the reference
// implementation's compression ratio and must be preserved (spec.md §9
// Open Questions).
const cascadeSpatialDivisor = 42.67

// CascadeModels bundles the two independent UNets and the VQGAN decoder
// Stable Cascade's two-phase pipeline needs, in addition to the text
// encoder handled upstream by package prompt.
type CascadeModels struct {
	PriorUNet   *submodel.Handle
	DecoderUNet *submodel.Handle
	VQGAN       *submodel.Handle
}

// CascadeRunContext is Stable Cascade's own context type: it needs two
// distinct scheduler instances (prior runs DDPM at the user's requested
// step count; decoder always runs a fixed low step count with guidance
// off) and doesn't fit the single-UNet RunContext shape.
type CascadeRunContext struct {
	Embeds  api.PromptEmbeddings
	Options api.SchedulerOptions
	Models  CascadeModels

	PriorScheduler   scheduler.Scheduler
	DecoderScheduler scheduler.Scheduler
}

// RunCascade implements Stable Cascade's two-phase generation (spec.md
// §4.E "Stable Cascade"): a Prior UNet produces a heavily downsampled
// latent under DDPM, then a Decoder UNet — always run at
// InferenceSteps=10, GuidanceScale=0 — expands it, and a VQGAN decodes to
// pixels.
func RunCascade(ctx context.Context, rc *CascadeRunContext, progress api.ProgressFunc) (*tensor.Tensor, error) {
	priorLatents, err := runCascadePrior(ctx, rc, progress)
	if err != nil {
		return nil, err
	}
	return runCascadeDecoder(ctx, rc, priorLatents, progress)
}

func runCascadePrior(ctx context.Context, rc *CascadeRunContext, progress api.ProgressFunc) (*tensor.Tensor, error) {
	h := int(math.Ceil(float64(rc.Options.Height) / cascadeSpatialDivisor))
	w := int(math.Ceil(float64(rc.Options.Width) / cascadeSpatialDivisor))
	shape := []int{1, 16, h, w}

	rc.PriorScheduler.SetTimesteps(rc.Options.InferenceSteps, 0)
	timesteps := rc.PriorScheduler.Timesteps()
	latents := rc.PriorScheduler.CreateRandomSample(rc.Options.Seed, shape, rc.PriorScheduler.InitNoiseSigma())

	guidance := rc.Options.GuidanceEnabled()
	zeroImageEmbeds := tensor.New(1, 1280)

	total := len(timesteps)
	for step, t := range timesteps {
		if isCancelled(ctx) {
			return nil, errkind.Cancelled("cascade_prior")
		}

		input := latents
		if guidance {
			input = tensor.Repeat(latents, 2)
		}
		scaled := rc.PriorScheduler.ScaleInput(input, t)

		params := submodel.NewInferenceParameters().
			AddInputTensor("sample", scaled).
			AddInputInt64("timestep", []int64{int64(t)}).
			AddInputTensor("encoder_hidden_states", rc.Embeds.PromptEmbeds).
			AddInputTensor("clip_image_embeds", zeroImageEmbeds).
			AddOutputBuffer("out_sample")
		if rc.Embeds.PooledPromptEmbeds != nil {
			params.AddInputTensor("text_embeds", rc.Embeds.PooledPromptEmbeds)
		}

		out, err := rc.Models.PriorUNet.RunInference(params)
		if err != nil {
			return nil, err
		}
		noisePred, ok := out["out_sample"]
		if !ok {
			return nil, errkind.ShapeMismatch("cascade_prior", "missing output out_sample")
		}

		if guidance {
			halves, err := tensor.Split(noisePred, 2)
			if err != nil {
				return nil, errkind.ShapeMismatch("cascade_prior", "guidance split failed: "+err.Error())
			}
			noisePred, err = tensor.Lerp(halves[0], halves[1], rc.Options.GuidanceScale)
			if err != nil {
				return nil, errkind.ShapeMismatch("cascade_prior", "guidance lerp failed: "+err.Error())
			}
		}

		stepResult, err := rc.PriorScheduler.Step(noisePred, t, latents)
		if err != nil {
			return nil, errkind.InferenceFailed("cascade_prior", "scheduler step failed", err)
		}
		latents = stepResult.PrevSample

		if progress != nil {
			progress(api.DiffusionProgress{Step: step + 1, Total: total, Latent: latents})
		}
	}
	return latents, nil
}

func runCascadeDecoder(ctx context.Context, rc *CascadeRunContext, priorLatents *tensor.Tensor, progress api.ProgressFunc) (*tensor.Tensor, error) {
	const decoderSteps = 10
	rc.DecoderScheduler.SetTimesteps(decoderSteps, 0)
	timesteps := rc.DecoderScheduler.Timesteps()

	effectShape := append([]int(nil), priorLatents.Shape...)
	effectShape[1] = 4
	latents := rc.DecoderScheduler.CreateRandomSample(rc.Options.Seed+1, effectShape, rc.DecoderScheduler.InitNoiseSigma())

	total := len(timesteps)
	for step, t := range timesteps {
		if isCancelled(ctx) {
			return nil, errkind.Cancelled("cascade_decoder")
		}

		scaled := rc.DecoderScheduler.ScaleInput(latents, t)
		effnet := priorLatents

		params := submodel.NewInferenceParameters().
			AddInputTensor("sample", scaled).
			AddInputInt64("timestep", []int64{int64(t)}).
			AddInputTensor("encoder_hidden_states", rc.Embeds.PromptEmbeds).
			AddInputTensor("effnet", effnet).
			AddOutputBuffer("out_sample")

		out, err := rc.Models.DecoderUNet.RunInference(params)
		if err != nil {
			return nil, err
		}
		noisePred, ok := out["out_sample"]
		if !ok {
			return nil, errkind.ShapeMismatch("cascade_decoder", "missing output out_sample")
		}

		stepResult, err := rc.DecoderScheduler.Step(noisePred, t, latents)
		if err != nil {
			return nil, errkind.InferenceFailed("cascade_decoder", "scheduler step failed", err)
		}
		latents = stepResult.PrevSample

		if progress != nil {
			progress(api.DiffusionProgress{Step: step + 1, Total: total, Latent: latents})
		}
	}

	if isCancelled(ctx) {
		return nil, errkind.Cancelled("cascade_decoder")
	}

	params := submodel.NewInferenceParameters().
		AddInputTensor("sample", latents).
		AddOutputBuffer("sample")
	out, err := rc.Models.VQGAN.RunInference(params)
	if err != nil {
		return nil, err
	}
	pixels, ok := out["sample"]
	if !ok {
		return nil, errkind.ShapeMismatch("vqgan", "missing output sample")
	}
	return tensor.NormalizeMinusOneToOne(pixels), nil
}
