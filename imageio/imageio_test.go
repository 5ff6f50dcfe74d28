package imageio

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coretensor/diffuse/api"
	"github.com/coretensor/diffuse/tensor"
)

func TestNormalizeZeroToOne(t *testing.T) {
	assert.InDelta(t, 1.0, normalize(65535, api.ZeroToOne), 1e-4)
	assert.InDelta(t, 0.0, normalize(0, api.ZeroToOne), 1e-4)
}

func TestNormalizeMinusOneToOne(t *testing.T) {
	assert.InDelta(t, 1.0, normalize(65535, api.MinusOneToOne), 1e-4)
	assert.InDelta(t, -1.0, normalize(0, api.MinusOneToOne), 1e-4)
}

func TestDecodedImageGetImageTensorShape(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			src.Set(x, y, color.RGBA{R: 128, G: 64, B: 200, A: 255})
		}
	}

	out, err := DecodedImage{Image: src}.GetImageTensor(4, 4, api.ZeroToOne)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4, 4}, out.Shape)
}

func TestTensorImageRejectsWrongShape(t *testing.T) {
	tn := tensor.New(1, 3, 8, 8)
	_, err := TensorImage{Tensor: tn}.GetImageTensor(16, 16, api.ZeroToOne)
	require.Error(t, err)
}

func TestTensorToPNGRoundTripShape(t *testing.T) {
	tn := tensor.New(1, 3, 4, 4)
	for i := range tn.Data {
		tn.Data[i] = 0.5
	}
	data, err := TensorToPNG(tn)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	decoded, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 4, decoded.Bounds().Dx())
}

func TestTensorToPNGRejectsBadShape(t *testing.T) {
	tn := tensor.New(1, 4, 4, 4)
	_, err := TensorToPNG(tn)
	require.Error(t, err)
}
