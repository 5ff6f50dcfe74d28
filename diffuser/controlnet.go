package diffuser

import (
	"github.com/coretensor/diffuse/api"
	"github.com/coretensor/diffuse/errkind"
	"github.com/coretensor/diffuse/scheduler"
	"github.com/coretensor/diffuse/submodel"
	"github.com/coretensor/diffuse/tensor"
)

// ControlNet runs a ControlNet session alongside the UNet at every step,
// feeding its residual outputs in as additional UNet inputs (spec.md §4.E
// "ControlNet"). Base latent preparation is plain TextToImage; embedding
// the ControlNet call is entirely in BuildExtras, so ControlNetImage
// composes this with ImageToImage's start-step logic by delegating.
type ControlNet struct {
	LatentChannels    int
	ConditioningScale float32
	controlImage      *tensor.Tensor
}

var _ Variant = (*ControlNet)(nil)

func (v *ControlNet) PrepareLatents(rc *RunContext) (*tensor.Tensor, []int, error) {
	if rc.Prompt.InputControlImage == nil {
		return nil, nil, errkind.InvalidOptions("controlnet requires an input control image")
	}
	img, err := rc.Prompt.InputControlImage.GetImageTensor(rc.Options.Height, rc.Options.Width, api.ZeroToOne)
	if err != nil {
		return nil, nil, err
	}
	v.controlImage = img

	channels := v.LatentChannels
	if channels == 0 {
		channels = 4
	}
	shape := []int{1, channels, rc.Options.Height / 8, rc.Options.Width / 8}
	latents := rc.Sched.CreateRandomSample(rc.Options.Seed, shape, rc.Sched.InitNoiseSigma())
	return latents, rc.Sched.Timesteps(), nil
}

func (v *ControlNet) BuildExtras(rc *RunContext, t int, scaled *tensor.Tensor) (map[string]*tensor.Tensor, error) {
	return v.runControlNet(rc, t, scaled)
}

// runControlNet is shared with ControlNetImage: run the ControlNet graph on
// the (already guidance-doubled and scale_input-conditioned) sample plus
// the control image and prompt embeddings, and forward every output the
// graph exposes as an extra UNet input.
func (v *ControlNet) runControlNet(rc *RunContext, t int, scaled *tensor.Tensor) (map[string]*tensor.Tensor, error) {
	batch := scaled.Shape[0]
	control := v.controlImage
	if batch > 1 {
		control = tensor.Repeat(v.controlImage, batch)
	}

	scale := v.ConditioningScale
	if scale == 0 {
		scale = rc.Options.ConditioningScale
	}
	if scale == 0 {
		scale = 1
	}

	params := submodel.NewInferenceParameters().
		AddInputTensor("sample", scaled).
		AddInputInt64("timestep", []int64{int64(t)}).
		AddInputTensor("encoder_hidden_states", rc.Embeds.PromptEmbeds).
		AddInputTensor("controlnet_cond", control).
		AddInputFloat64("conditioning_scale", float64(scale))

	md, err := rc.Models.ControlNet.Metadata()
	if err != nil {
		return nil, errkind.ModelLoadFailed("controlnet", "metadata unavailable", err)
	}
	for _, out := range md.Outputs {
		params.AddOutputBuffer(out.Name)
	}

	out, err := rc.Models.ControlNet.RunInference(params)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (v *ControlNet) PostStep(rc *RunContext, t int, noisePred, latents *tensor.Tensor, stepResult scheduler.StepResult) (*tensor.Tensor, error) {
	return latents, nil
}
