package diffuser

import (
	"github.com/coretensor/diffuse/api"
	"github.com/coretensor/diffuse/errkind"
	"github.com/coretensor/diffuse/scheduler"
	"github.com/coretensor/diffuse/tensor"
)

// ImageInpaintLegacy behaves like ImageToImage but re-blends the known
// region back in after every step (spec.md §4.E "ImageInpaintLegacy"):
//
//	latents = mask*denoised + (1-mask)*noise_at_t(original_latent)
//
// Under this blend a mask value of 1 takes the freshly denoised latent (the
// region being regenerated) and 0 restores the re-noised original latent.
type ImageInpaintLegacy struct {
	VAEScaleFactor float32

	// state is set by PrepareLatents and read by every subsequent PostStep
	// call within the same run. A Diffuser has one run in flight at a time
	// per spec.md §5's serialization model, so this needs no locking.
	state *maskState
}

var _ Variant = (*ImageInpaintLegacy)(nil)

// maskState is the per-run data PrepareLatents hands to PostStep through
// the variant's state field.
type maskState struct {
	mask           *tensor.Tensor // resized to latent H/W, single channel broadcast
	originalLatent *tensor.Tensor
}

func (v *ImageInpaintLegacy) PrepareLatents(rc *RunContext) (*tensor.Tensor, []int, error) {
	if rc.Prompt.InputImage == nil || rc.Prompt.InputMask == nil {
		return nil, nil, errkind.InvalidOptions("image_inpaint_legacy requires an input image and mask")
	}

	cleanLatent, err := encodeCleanLatent(rc, v.VAEScaleFactor)
	if err != nil {
		return nil, nil, err
	}

	maskLatentH, maskLatentW := cleanLatent.Shape[2], cleanLatent.Shape[3]
	mask, err := rc.Prompt.InputMask.GetImageTensor(maskLatentH, maskLatentW, api.ZeroToOne)
	if err != nil {
		return nil, nil, err
	}

	timesteps := img2imgStartStep(rc.Sched.Timesteps(), rc.Options.Strength)

	noise := rc.Sched.CreateRandomSample(rc.Options.Seed, cleanLatent.Shape, 1)
	noised, err := rc.Sched.AddNoise(cleanLatent, noise, timesteps[0])
	if err != nil {
		return nil, nil, err
	}

	v.state = &maskState{mask: mask, originalLatent: cleanLatent}
	return noised, timesteps, nil
}

func (v *ImageInpaintLegacy) BuildExtras(rc *RunContext, t int, scaled *tensor.Tensor) (map[string]*tensor.Tensor, error) {
	return nil, nil
}

func (v *ImageInpaintLegacy) PostStep(rc *RunContext, t int, noisePred, latents *tensor.Tensor, stepResult scheduler.StepResult) (*tensor.Tensor, error) {
	if v.state == nil {
		return latents, nil
	}

	noise := rc.Sched.CreateRandomSample(rc.Options.Seed, v.state.originalLatent.Shape, 1)
	originalAtT, err := rc.Sched.AddNoise(v.state.originalLatent, noise, t)
	if err != nil {
		return nil, err
	}

	blended, err := blendMask(v.state.mask, latents, originalAtT)
	if err != nil {
		return nil, err
	}
	return blended, nil
}

// blendMask computes mask*keep + (1-mask)*replace, broadcasting the
// single-channel mask across every channel of keep/replace.
func blendMask(mask, keep, replace *tensor.Tensor) (*tensor.Tensor, error) {
	channels := keep.Shape[1]
	hw := keep.Shape[2] * keep.Shape[3]
	out := make([]float32, len(keep.Data))
	for c := 0; c < channels; c++ {
		base := c * hw
		for i := 0; i < hw; i++ {
			m := mask.Data[i]
			out[base+i] = m*keep.Data[base+i] + (1-m)*replace.Data[base+i]
		}
	}
	return &tensor.Tensor{Data: out, Shape: append([]int(nil), keep.Shape...)}, nil
}
