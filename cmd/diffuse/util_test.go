package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coretensor/diffuse/api"
)

func TestParseSchedulerFlagDefaultsToEuler(t *testing.T) {
	st, err := parseSchedulerFlag("")
	require.NoError(t, err)
	assert.Equal(t, api.SchedulerEuler, st)
}

func TestParseSchedulerFlagRejectsUnknown(t *testing.T) {
	_, err := parseSchedulerFlag("bogus")
	require.Error(t, err)
}

func TestParseDiffuserFlagCoversEveryName(t *testing.T) {
	names := map[string]api.DiffuserType{
		"text_to_image":        api.TextToImage,
		"image_to_image":       api.ImageToImage,
		"image_inpaint_legacy": api.ImageInpaintLegacy,
		"image_inpaint":        api.ImageInpaint,
		"controlnet":           api.ControlNet,
		"controlnet_image":     api.ControlNetImage,
	}
	for name, want := range names {
		got, err := parseDiffuserFlag(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestInferDiffuserType(t *testing.T) {
	assert.Equal(t, api.TextToImage, inferDiffuserType("", "", ""))
	assert.Equal(t, api.ImageToImage, inferDiffuserType("img.png", "", ""))
	assert.Equal(t, api.ImageInpaint, inferDiffuserType("img.png", "mask.png", ""))
	assert.Equal(t, api.ControlNet, inferDiffuserType("", "", "ctrl.png"))
	assert.Equal(t, api.ControlNetImage, inferDiffuserType("img.png", "", "ctrl.png"))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a-cat-on-a-mat", sanitizeFilename("A Cat on a Mat!"))
	assert.Equal(t, "image", sanitizeFilename("???"))
}
