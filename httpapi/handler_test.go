package httpapi

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coretensor/diffuse/api"
)

func TestParseSizeValid(t *testing.T) {
	w, h := parseSize("768x512")
	assert.Equal(t, 768, w)
	assert.Equal(t, 512, h)
}

func TestParseSizeFallsBackOnMalformed(t *testing.T) {
	w, h := parseSize("garbage")
	assert.Equal(t, 512, w)
	assert.Equal(t, 512, h)
}

func TestParseSchedulerDefaultsToEuler(t *testing.T) {
	st, err := parseScheduler("")
	require.NoError(t, err)
	assert.Equal(t, api.SchedulerEuler, st)
}

func TestParseSchedulerRejectsUnknown(t *testing.T) {
	_, err := parseScheduler("not-a-scheduler")
	require.Error(t, err)
}

func TestDiffuserTypeForInfersFromInputs(t *testing.T) {
	assert.Equal(t, api.TextToImage, diffuserTypeFor(ImageGenerationRequest{}))
	assert.Equal(t, api.ImageToImage, diffuserTypeFor(ImageGenerationRequest{Image: "x"}))
	assert.Equal(t, api.ImageInpaint, diffuserTypeFor(ImageGenerationRequest{Image: "x", Mask: "y"}))
	assert.Equal(t, api.ControlNet, diffuserTypeFor(ImageGenerationRequest{ControlImage: "z"}))
	assert.Equal(t, api.ControlNetImage, diffuserTypeFor(ImageGenerationRequest{ControlImage: "z", Image: "x"}))
}

func TestDiffuserTypeForExplicitOverride(t *testing.T) {
	assert.Equal(t, api.ImageInpaintLegacy, diffuserTypeFor(ImageGenerationRequest{DiffuserType: "image_inpaint_legacy"}))
}

func TestDecodeInputImageEmptyReturnsNil(t *testing.T) {
	img, err := decodeInputImage("")
	require.NoError(t, err)
	assert.Nil(t, img)
}

func TestDecodeInputImageStripsDataURLPrefix(t *testing.T) {
	raw := []byte("fake-png-bytes")
	encoded := base64.StdEncoding.EncodeToString(raw)
	img, err := decodeInputImage("data:image/png;base64," + encoded)
	require.NoError(t, err)
	require.NotNil(t, img)
}

func TestDecodeInputImageRejectsInvalidBase64(t *testing.T) {
	_, err := decodeInputImage("not-base64!!!")
	require.Error(t, err)
}
