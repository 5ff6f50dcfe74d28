package diffuser

import (
	"github.com/coretensor/diffuse/scheduler"
	"github.com/coretensor/diffuse/tensor"
)

// TextToImage draws the initial latent from pure gaussian noise scaled by
// the scheduler's init_noise_sigma and iterates the full timestep schedule
// (spec.md §4.E "TextToImage").
type TextToImage struct {
	LatentChannels int
}

var _ Variant = (*TextToImage)(nil)

func (v *TextToImage) PrepareLatents(rc *RunContext) (*tensor.Tensor, []int, error) {
	channels := v.LatentChannels
	if channels == 0 {
		channels = 4
	}
	shape := []int{1, channels, rc.Options.Height / 8, rc.Options.Width / 8}
	latents := rc.Sched.CreateRandomSample(rc.Options.Seed, shape, rc.Sched.InitNoiseSigma())
	return latents, rc.Sched.Timesteps(), nil
}

func (v *TextToImage) BuildExtras(rc *RunContext, t int, scaled *tensor.Tensor) (map[string]*tensor.Tensor, error) {
	return nil, nil
}

func (v *TextToImage) PostStep(rc *RunContext, t int, noisePred, latents *tensor.Tensor, stepResult scheduler.StepResult) (*tensor.Tensor, error) {
	return latents, nil
}
