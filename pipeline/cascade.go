package pipeline

import (
	"context"

	"github.com/coretensor/diffuse/api"
	"github.com/coretensor/diffuse/diffuser"
	"github.com/coretensor/diffuse/errkind"
	"github.com/coretensor/diffuse/prompt"
	"github.com/coretensor/diffuse/scheduler"
	"github.com/coretensor/diffuse/submodel"
	"github.com/coretensor/diffuse/tensor"
)

func (p *Pipeline) runCascade(ctx context.Context, prm api.PromptOptions, sched api.SchedulerOptions, progress api.ProgressFunc) (*tensor.Tensor, error) {
	if p.PriorUNet == nil || p.DecoderUNet == nil || p.VQGAN == nil {
		return nil, errkind.ModelLoadFailed(p.Config.Name, "stable cascade model set is missing prior_unet/decoder_unet/vqgan", nil)
	}

	for _, h := range []*submodel.Handle{p.TextEncoder, p.PriorUNet, p.DecoderUNet, p.VQGAN} {
		if err := h.Load(); err != nil {
			return nil, err
		}
	}

	enc := prompt.NewEncoder(p.Tokenizer, p.TextEncoder)
	guidance := sched.GuidanceEnabled()
	embeds, err := prompt.EncodeGuided(enc, prm.Prompt, prm.NegativePrompt, guidance)
	if err != nil {
		return nil, err
	}

	if p.MemoryMode == api.MemoryMinimum {
		p.TextEncoder.Unload()
	}

	priorScheduler, err := scheduler.New(scheduler.VariantDDPM, defaultCascadeConfig(), sched.Seed)
	if err != nil {
		return nil, err
	}
	decoderScheduler, err := scheduler.New(scheduler.VariantDDPM, defaultCascadeConfig(), sched.Seed)
	if err != nil {
		return nil, err
	}

	rc := &diffuser.CascadeRunContext{
		Embeds:  api.PromptEmbeddings{PromptEmbeds: embeds.Sequence, PooledPromptEmbeds: embeds.Pooled},
		Options: sched,
		Models: diffuser.CascadeModels{
			PriorUNet:   p.PriorUNet,
			DecoderUNet: p.DecoderUNet,
			VQGAN:       p.VQGAN,
		},
		PriorScheduler:   priorScheduler,
		DecoderScheduler: decoderScheduler,
	}

	pixels, err := diffuser.RunCascade(ctx, rc, progress)
	if err != nil {
		return nil, err
	}

	if p.MemoryMode == api.MemoryMinimum {
		p.PriorUNet.Unload()
		p.DecoderUNet.Unload()
		p.VQGAN.Unload()
	}
	return pixels, nil
}

func defaultCascadeConfig() scheduler.Config {
	return scheduler.Config{
		NumTrainTimesteps: 1000,
		BetaStart:         0.0001,
		BetaEnd:           0.02,
		BetaSchedule:      scheduler.BetaLinear,
		PredictionType:    scheduler.PredictionEpsilon,
		TimestepSpacing:   scheduler.SpacingLeading,
	}
}
