// Package pipeline implements Component F: the shell that owns a set of
// loaded sub-models, validates a request against what that set declares it
// supports, resolves the right diffuser, and serializes concurrent
// generations against one shared handle set (spec.md §4.F, §5).
package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/binary"

	"golang.org/x/sync/semaphore"

	"github.com/coretensor/diffuse/api"
	"github.com/coretensor/diffuse/diffuser"
	"github.com/coretensor/diffuse/envconfig"
	"github.com/coretensor/diffuse/errkind"
	"github.com/coretensor/diffuse/prompt"
	"github.com/coretensor/diffuse/scheduler"
	"github.com/coretensor/diffuse/submodel"
	"github.com/coretensor/diffuse/tensor"
)

// Pipeline owns one loaded StableDiffusionModelSet's sub-model handles and
// serializes every call to Run/RunBatch against them (spec.md §5: "multiple
// concurrent generations only with distinct sub-model handles — default
// deployment shares one set, so the pipeline must serialize calls").
type Pipeline struct {
	Config StableDiffusionModelSet

	Tokenizer    *prompt.Tokenizer
	TextEncoder  *submodel.Handle
	TextEncoder2 *submodel.Handle // SDXL/Cascade-style second encoder; nil otherwise

	UNet       *submodel.Handle
	ControlNet *submodel.Handle // nil unless this model set declares one
	VAEEncoder *submodel.Handle // nil for text-only pipelines that never img2img
	VAEDecoder *submodel.Handle

	PriorUNet   *submodel.Handle // Stable Cascade only
	DecoderUNet *submodel.Handle // Stable Cascade only
	VQGAN       *submodel.Handle // Stable Cascade only

	MemoryMode api.MemoryMode

	sem *semaphore.Weighted
}

// New builds a Pipeline from a declared model set. Sub-model handles are
// created Unloaded; Run loads what a given request needs on demand.
func New(cfg StableDiffusionModelSet, tok *prompt.Tokenizer, mode api.MemoryMode) (*Pipeline, error) {
	p := &Pipeline{
		Config:     cfg,
		Tokenizer:  tok,
		MemoryMode: mode,
		sem:        semaphore.NewWeighted(1),
	}

	handle := func(component string) *submodel.Handle {
		path, ok := cfg.submodelPath(component)
		if !ok {
			return nil
		}
		return submodel.New(component, path)
	}

	p.TextEncoder = handle("text_encoder")
	p.TextEncoder2 = handle("text_encoder_2")
	p.UNet = handle("unet")
	p.ControlNet = handle("controlnet")
	p.VAEEncoder = handle("vae_encoder")
	p.VAEDecoder = handle("vae_decoder")
	p.PriorUNet = handle("prior_unet")
	p.DecoderUNet = handle("decoder_unet")
	p.VQGAN = handle("vqgan")

	if p.TextEncoder == nil {
		return nil, errkind.ModelLoadFailed(cfg.Name, "model set declares no text_encoder", nil)
	}
	return p, nil
}

// RunResult is what one Run call produces: the decoded pixels plus the
// concrete SchedulerOptions actually used (seed replacement recorded here
// per spec.md §4.F).
type RunResult struct {
	Pixels          *tensor.Tensor
	SchedulerUsed   api.SchedulerOptions
}

// Run validates the request, loads whatever sub-models it needs, and
// executes one generation start to finish. Concurrent Run/RunBatch calls
// against the same Pipeline are serialized.
func (p *Pipeline) Run(ctx context.Context, prm api.PromptOptions, sched api.SchedulerOptions, progress api.ProgressFunc) (RunResult, error) {
	if err := p.validate(prm, sched); err != nil {
		return RunResult{}, err
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return RunResult{}, errkind.Cancelled("pipeline")
	}
	defer p.sem.Release(1)

	if sched.Seed == 0 {
		sched.Seed = randomSeed()
	}

	if p.Config.PipelineType == PipelineStableCascade {
		pixels, err := p.runCascade(ctx, prm, sched, progress)
		if err != nil {
			return RunResult{}, err
		}
		return RunResult{Pixels: pixels, SchedulerUsed: sched}, nil
	}

	pixels, err := p.runStandard(ctx, prm, sched, progress)
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{Pixels: pixels, SchedulerUsed: sched}, nil
}

func (p *Pipeline) validate(prm api.PromptOptions, sched api.SchedulerOptions) error {
	if !p.Config.supportsDiffuser(prm.DiffuserType) {
		return errkind.UnsupportedDiffuser(prm.DiffuserType.String())
	}
	if !p.Config.supportsScheduler(sched.SchedulerType) {
		return errkind.UnsupportedScheduler(sched.SchedulerType.String())
	}
	return prm.Validate()
}

func randomSeed() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 1
	}
	return binary.LittleEndian.Uint64(buf[:])
}

func (p *Pipeline) runStandard(ctx context.Context, prm api.PromptOptions, sched api.SchedulerOptions, progress api.ProgressFunc) (*tensor.Tensor, error) {
	if err := p.loadForRun(prm); err != nil {
		return nil, err
	}

	embeds, err := p.encodePrompt(prm, sched)
	if err != nil {
		return nil, err
	}
	if p.MemoryMode == api.MemoryMinimum {
		p.TextEncoder.Unload()
		if p.TextEncoder2 != nil {
			p.TextEncoder2.Unload()
		}
	}

	sc, err := p.buildScheduler(sched)
	if err != nil {
		return nil, err
	}
	inferenceSteps := sched.InferenceSteps
	sc.SetTimesteps(inferenceSteps, sched.OriginalInferenceSteps)

	rc := &diffuser.RunContext{
		Embeds:  embeds,
		Options: sched,
		Prompt:  prm,
		Models: diffuser.SubModels{
			UNet:       p.UNet,
			ControlNet: p.ControlNet,
			VAEEncoder: p.VAEEncoder,
			VAEDecoder: p.VAEDecoder,
		},
		Sched:          sc,
		VAEScaleFactor: 1 / scaleOrDefault(p.Config.ScaleFactor),
		MemoryMode:     p.MemoryMode,
	}

	variant, err := p.buildVariant(prm.DiffuserType)
	if err != nil {
		return nil, err
	}

	d := diffuser.New(variant)
	d.InstaFlow = p.Config.PipelineType == PipelineInstaFlow
	if envconfig.StepCache {
		d.Cache = diffuser.DefaultStepCache()
	}

	result, err := d.Run(ctx, rc, progress)
	if err != nil {
		return nil, err
	}

	if p.MemoryMode == api.MemoryMinimum {
		p.VAEDecoder.Unload()
	}
	return result.Pixels, nil
}

func scaleOrDefault(f float32) float32 {
	if f == 0 {
		return 0.18215
	}
	return f
}

// loadForRun loads exactly the sub-models this DiffuserType touches.
func (p *Pipeline) loadForRun(prm api.PromptOptions) error {
	handles := []*submodel.Handle{p.TextEncoder, p.UNet, p.VAEDecoder}
	if p.TextEncoder2 != nil {
		handles = append(handles, p.TextEncoder2)
	}
	switch prm.DiffuserType {
	case api.ImageToImage, api.ImageInpaintLegacy, api.ImageInpaint, api.ControlNetImage:
		if p.VAEEncoder != nil {
			handles = append(handles, p.VAEEncoder)
		}
	}
	switch prm.DiffuserType {
	case api.ControlNet, api.ControlNetImage:
		if p.ControlNet != nil {
			handles = append(handles, p.ControlNet)
		}
	}
	for _, h := range handles {
		if h == nil {
			continue
		}
		if err := h.Load(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) encodePrompt(prm api.PromptOptions, sched api.SchedulerOptions) (api.PromptEmbeddings, error) {
	enc := prompt.NewEncoder(p.Tokenizer, p.TextEncoder)
	guidance := sched.GuidanceEnabled()
	embeds, err := prompt.EncodeGuided(enc, prm.Prompt, prm.NegativePrompt, guidance)
	if err != nil {
		return api.PromptEmbeddings{}, err
	}
	return api.PromptEmbeddings{PromptEmbeds: embeds.Sequence, PooledPromptEmbeds: embeds.Pooled}, nil
}

func (p *Pipeline) buildVariant(d api.DiffuserType) (diffuser.Variant, error) {
	switch d {
	case api.TextToImage:
		return &diffuser.TextToImage{}, nil
	case api.ImageToImage:
		return &diffuser.ImageToImage{VAEScaleFactor: p.Config.ScaleFactor}, nil
	case api.ImageInpaintLegacy:
		return &diffuser.ImageInpaintLegacy{VAEScaleFactor: p.Config.ScaleFactor}, nil
	case api.ImageInpaint:
		return &diffuser.ImageInpaint{}, nil
	case api.ControlNet:
		return &diffuser.ControlNet{}, nil
	case api.ControlNetImage:
		return &diffuser.ControlNetImage{VAEScaleFactor: p.Config.ScaleFactor}, nil
	default:
		return nil, errkind.UnsupportedDiffuser(d.String())
	}
}

func (p *Pipeline) buildScheduler(sched api.SchedulerOptions) (scheduler.Scheduler, error) {
	cfg := scheduler.Config{
		NumTrainTimesteps: 1000,
		BetaStart:         sched.BetaStart,
		BetaEnd:           sched.BetaEnd,
		BetaSchedule:      scheduler.BetaSchedule(sched.BetaSchedule),
		PredictionType:    scheduler.PredictionType(sched.PredictionType),
		TimestepSpacing:   scheduler.TimestepSpacing(sched.TimestepSpacing),
		TrainedBetas:      sched.TrainedBetas,
	}
	if cfg.BetaStart == 0 {
		cfg.BetaStart = 0.00085
	}
	if cfg.BetaEnd == 0 {
		cfg.BetaEnd = 0.012
	}

	kind, err := variantKindFor(sched.SchedulerType)
	if err != nil {
		return nil, err
	}
	return scheduler.New(kind, cfg, sched.Seed)
}

func variantKindFor(t api.SchedulerType) (scheduler.VariantKind, error) {
	switch t {
	case api.SchedulerLMS:
		return scheduler.VariantLMS, nil
	case api.SchedulerEuler:
		return scheduler.VariantEuler, nil
	case api.SchedulerEulerAncestral:
		return scheduler.VariantEulerAncestral, nil
	case api.SchedulerDDPM:
		return scheduler.VariantDDPM, nil
	case api.SchedulerDDIM:
		return scheduler.VariantDDIM, nil
	case api.SchedulerKDPM2:
		return scheduler.VariantKDPM2, nil
	default:
		return 0, errkind.UnsupportedScheduler(t.String())
	}
}
