package diffuser

import (
	"github.com/coretensor/diffuse/api"
	"github.com/coretensor/diffuse/errkind"
	"github.com/coretensor/diffuse/scheduler"
	"github.com/coretensor/diffuse/tensor"
)

// ControlNetImage composes ControlNet's per-step residual feed with
// ImageToImage's start-step logic (spec.md §4.E "ControlNetImage").
type ControlNetImage struct {
	ConditioningScale float32
	VAEScaleFactor    float32

	cn ControlNet
}

var _ Variant = (*ControlNetImage)(nil)

func (v *ControlNetImage) PrepareLatents(rc *RunContext) (*tensor.Tensor, []int, error) {
	if rc.Prompt.InputImage == nil {
		return nil, nil, errkind.InvalidOptions("controlnet_image requires an input image")
	}
	if rc.Prompt.InputControlImage == nil {
		return nil, nil, errkind.InvalidOptions("controlnet_image requires an input control image")
	}

	control, err := rc.Prompt.InputControlImage.GetImageTensor(rc.Options.Height, rc.Options.Width, api.ZeroToOne)
	if err != nil {
		return nil, nil, err
	}
	v.cn.controlImage = control
	v.cn.ConditioningScale = v.ConditioningScale

	cleanLatent, err := encodeCleanLatent(rc, v.VAEScaleFactor)
	if err != nil {
		return nil, nil, err
	}

	timesteps := img2imgStartStep(rc.Sched.Timesteps(), rc.Options.Strength)

	noise := rc.Sched.CreateRandomSample(rc.Options.Seed, cleanLatent.Shape, 1)
	noised, err := rc.Sched.AddNoise(cleanLatent, noise, timesteps[0])
	if err != nil {
		return nil, nil, err
	}
	return noised, timesteps, nil
}

func (v *ControlNetImage) BuildExtras(rc *RunContext, t int, scaled *tensor.Tensor) (map[string]*tensor.Tensor, error) {
	return v.cn.runControlNet(rc, t, scaled)
}

func (v *ControlNetImage) PostStep(rc *RunContext, t int, noisePred, latents *tensor.Tensor, stepResult scheduler.StepResult) (*tensor.Tensor, error) {
	return latents, nil
}
