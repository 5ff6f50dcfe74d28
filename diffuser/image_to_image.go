package diffuser

import (
	"github.com/coretensor/diffuse/api"
	"github.com/coretensor/diffuse/errkind"
	"github.com/coretensor/diffuse/scheduler"
	"github.com/coretensor/diffuse/submodel"
	"github.com/coretensor/diffuse/tensor"
)

// ImageToImage VAE-encodes the input image into a clean latent, noises it to
// the level implied by Strength, and iterates only the tail of the
// timestep schedule (spec.md §4.E "ImageToImage"):
//
//	t_start = steps - int(steps * strength)
//	timesteps = timesteps[t_start:]
type ImageToImage struct {
	VAEScaleFactor float32 // e.g. 0.18215; encoded latent is multiplied by this
}

var _ Variant = (*ImageToImage)(nil)

// vaeEncodeParams builds the standard VAE-encoder input parameters for a
// normalized pixel tensor.
func vaeEncodeParams(pixels *tensor.Tensor) *submodel.InferenceParameters {
	return submodel.NewInferenceParameters().
		AddInputTensor("sample", pixels).
		AddOutputBuffer("latent_sample")
}

// encodeCleanLatent VAE-encodes rc.Prompt.InputImage into a scaled latent.
// Shared by ImageToImage and ImageInpaintLegacy.
func encodeCleanLatent(rc *RunContext, scaleFactor float32) (*tensor.Tensor, error) {
	pixels, err := rc.Prompt.InputImage.GetImageTensor(rc.Options.Height, rc.Options.Width, api.MinusOneToOne)
	if err != nil {
		return nil, err
	}
	scale := scaleFactor
	if scale == 0 {
		scale = 0.18215
	}
	return encodeImageLatent(rc, pixels, scale)
}

// img2imgStartStep implements spec.md §4.E's `t_start = steps -
// int(steps*strength)`, shared by ImageToImage and ControlNetImage.
func img2imgStartStep(all []int, strength float32) []int {
	steps := len(all)
	tStart := steps - int(float32(steps)*strength)
	if tStart < 0 {
		tStart = 0
	}
	if tStart >= steps {
		tStart = steps - 1
	}
	return all[tStart:]
}

func (v *ImageToImage) PrepareLatents(rc *RunContext) (*tensor.Tensor, []int, error) {
	if rc.Prompt.InputImage == nil {
		return nil, nil, errkind.InvalidOptions("image_to_image requires an input image")
	}

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

func (v *ImageToImage) BuildExtras(rc *RunContext, t int, scaled *tensor.Tensor) (map[string]*tensor.Tensor, error) {
	return nil, nil
}

func (v *ImageToImage) PostStep(rc *RunContext, t int, noisePred, latents *tensor.Tensor, stepResult scheduler.StepResult) (*tensor.Tensor, error) {
	return latents, nil
}
