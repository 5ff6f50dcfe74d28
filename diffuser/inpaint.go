package diffuser

import (
	"github.com/coretensor/diffuse/api"
	"github.com/coretensor/diffuse/errkind"
	"github.com/coretensor/diffuse/scheduler"
	"github.com/coretensor/diffuse/tensor"
)

// ImageInpaint feeds the UNet a 9-channel input (4 latent + 1 mask + 4
// masked-image-latent) every step, running the full timestep schedule with
// no mid-step blending (spec.md §4.E "ImageInpaint").
type ImageInpaint struct {
	LatentChannels int

	mask         *tensor.Tensor
	maskedLatent *tensor.Tensor
}

var _ Variant = (*ImageInpaint)(nil)

func (v *ImageInpaint) PrepareLatents(rc *RunContext) (*tensor.Tensor, []int, error) {
	if rc.Prompt.InputImage == nil || rc.Prompt.InputMask == nil {
		return nil, nil, errkind.InvalidOptions("image_inpaint requires an input image and mask")
	}

	channels := v.LatentChannels
	if channels == 0 {
		channels = 4
	}
	latentH, latentW := rc.Options.Height/8, rc.Options.Width/8

	mask, err := rc.Prompt.InputMask.GetImageTensor(latentH, latentW, api.ZeroToOne)
	if err != nil {
		return nil, nil, err
	}

	maskedImage, err := rc.Prompt.InputImage.GetImageTensor(rc.Options.Height, rc.Options.Width, api.MinusOneToOne)
	if err != nil {
		return nil, nil, err
	}
	maskedLatent, err := encodeImageLatent(rc, maskedImage, 0.18215)
	if err != nil {
		return nil, nil, err
	}

	v.mask = mask
	v.maskedLatent = maskedLatent

	shape := []int{1, channels, latentH, latentW}
	latents := rc.Sched.CreateRandomSample(rc.Options.Seed, shape, rc.Sched.InitNoiseSigma())
	return latents, rc.Sched.Timesteps(), nil
}

func (v *ImageInpaint) BuildExtras(rc *RunContext, t int, scaled *tensor.Tensor) (map[string]*tensor.Tensor, error) {
	batch := scaled.Shape[0]
	maskBatched := v.mask
	maskedBatched := v.maskedLatent
	if batch > 1 {
		maskBatched = tensor.Repeat(v.mask, batch)
		maskedBatched = tensor.Repeat(v.maskedLatent, batch)
	}

	sample, err := concatChannel(scaled, maskBatched, maskedBatched)
	if err != nil {
		return nil, err
	}
	return map[string]*tensor.Tensor{"sample": sample}, nil
}

func (v *ImageInpaint) PostStep(rc *RunContext, t int, noisePred, latents *tensor.Tensor, stepResult scheduler.StepResult) (*tensor.Tensor, error) {
	return latents, nil
}

// concatChannel joins latent, mask and maskedLatent along the channel axis
// (axis 1), building the UNet's 9-channel inpainting input.
func concatChannel(latent, mask, maskedLatent *tensor.Tensor) (*tensor.Tensor, error) {
	joined, err := tensor.ConcatenateAxis(latent, mask, 1)
	if err != nil {
		return nil, errkind.ShapeMismatch("inpaint", "latent||mask concat failed: "+err.Error())
	}
	joined, err = tensor.ConcatenateAxis(joined, maskedLatent, 1)
	if err != nil {
		return nil, errkind.ShapeMismatch("inpaint", "latent||mask||masked_latent concat failed: "+err.Error())
	}
	return joined, nil
}

// encodeImageLatent VAE-encodes an arbitrary already-normalized pixel
// tensor (used for the masked-image branch, whose pixels are pre-masked
// before encoding rather than coming straight from InputImage).
func encodeImageLatent(rc *RunContext, pixels *tensor.Tensor, scaleFactor float32) (*tensor.Tensor, error) {
	params := vaeEncodeParams(pixels)
	out, err := rc.Models.VAEEncoder.RunInference(params)
	if err != nil {
		return nil, err
	}
	moments, ok := out["latent_sample"]
	if !ok {
		return nil, errkind.ShapeMismatch("vae_encoder", "missing output latent_sample")
	}
	return tensor.MultiplyScalar(moments, scaleFactor), nil
}
