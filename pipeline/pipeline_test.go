package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coretensor/diffuse/api"
)

func testConfig() StableDiffusionModelSet {
	return StableDiffusionModelSet{
		Name: "test-model",
		SubModels: []SubModelConfig{
			{Component: "text_encoder", Path: "/models/text_encoder.onnx"},
			{Component: "unet", Path: "/models/unet.onnx"},
			{Component: "vae_decoder", Path: "/models/vae_decoder.onnx"},
		},
		SupportedDiffusers:  []api.DiffuserType{api.TextToImage, api.ImageToImage},
		SupportedSchedulers: []api.SchedulerType{api.SchedulerEuler},
		ScaleFactor:         0.18215,
	}
}

func TestNewRequiresTextEncoder(t *testing.T) {
	cfg := testConfig()
	cfg.SubModels = nil
	_, err := New(cfg, nil, api.MemoryMaximum)
	require.Error(t, err)
}

func TestValidateRejectsUnsupportedDiffuser(t *testing.T) {
	p, err := New(testConfig(), nil, api.MemoryMaximum)
	require.NoError(t, err)

	err = p.validate(api.PromptOptions{DiffuserType: api.ControlNet}, api.SchedulerOptions{SchedulerType: api.SchedulerEuler})
	require.Error(t, err)
}

func TestValidateRejectsUnsupportedScheduler(t *testing.T) {
	p, err := New(testConfig(), nil, api.MemoryMaximum)
	require.NoError(t, err)

	err = p.validate(api.PromptOptions{DiffuserType: api.TextToImage}, api.SchedulerOptions{SchedulerType: api.SchedulerDDIM})
	require.Error(t, err)
}

func TestValidateAccepts(t *testing.T) {
	p, err := New(testConfig(), nil, api.MemoryMaximum)
	require.NoError(t, err)

	err = p.validate(api.PromptOptions{DiffuserType: api.TextToImage}, api.SchedulerOptions{SchedulerType: api.SchedulerEuler})
	require.NoError(t, err)
}

func TestVariantKindForCoversEverySchedulerType(t *testing.T) {
	types := []api.SchedulerType{
		api.SchedulerLMS, api.SchedulerEuler, api.SchedulerEulerAncestral,
		api.SchedulerDDPM, api.SchedulerDDIM, api.SchedulerKDPM2,
	}
	for _, ty := range types {
		_, err := variantKindFor(ty)
		require.NoError(t, err)
	}
}

func TestBuildVariantCoversEveryDiffuserType(t *testing.T) {
	p, err := New(testConfig(), nil, api.MemoryMaximum)
	require.NoError(t, err)

	types := []api.DiffuserType{
		api.TextToImage, api.ImageToImage, api.ImageInpaintLegacy,
		api.ImageInpaint, api.ControlNet, api.ControlNetImage,
	}
	for _, ty := range types {
		v, err := p.buildVariant(ty)
		require.NoError(t, err)
		assert.NotNil(t, v)
	}
}

func TestRandomSeedIsNonZero(t *testing.T) {
	assert.NotEqual(t, uint64(0), randomSeed())
}

func TestScaleOrDefault(t *testing.T) {
	assert.InDelta(t, float32(0.18215), scaleOrDefault(0), 1e-6)
	assert.InDelta(t, float32(0.5), scaleOrDefault(0.5), 1e-6)
}
