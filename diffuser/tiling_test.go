package diffuser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coretensor/diffuse/tensor"
)

// identityDecode stands in for a VAE decoder that upscales by 1x: it
// reshapes an [1,C,h,w] latent tile into an [1,3,h,w] "image" tile by
// taking the first 3 channels, so tiling math can be checked without a
// real ONNX session.
func identityDecode(t *testing.T) func(*tensor.Tensor) (*tensor.Tensor, error) {
	return func(tile *tensor.Tensor) (*tensor.Tensor, error) {
		c, h, w := tile.Shape[1], tile.Shape[2], tile.Shape[3]
		require.GreaterOrEqual(t, c, 3)
		plane := h * w
		out := make([]float32, 3*plane)
		copy(out, tile.Data[:3*plane])
		return &tensor.Tensor{Data: out, Shape: []int{1, 3, h, w}}, nil
	}
}

func makeLatent(c, h, w int) *tensor.Tensor {
	data := make([]float32, c*h*w)
	for i := range data {
		data[i] = float32(i)
	}
	return &tensor.Tensor{Data: data, Shape: []int{1, c, h, w}}
}

func TestSliceNCHWExtractsPlanarSubregion(t *testing.T) {
	latent := makeLatent(2, 4, 4)
	tile := sliceNCHW(latent, 2, 1, 3, 1, 3)
	require.Equal(t, []int{1, 2, 2, 2}, tile.Shape)

	// channel 0, rows [1,3), cols [1,3) of a 4x4 plane: values 5,6,9,10
	assert.Equal(t, []float32{5, 6, 9, 10, 21, 22, 25, 26}, tile.Data)
}

func TestDecodeTiledNCHWMatchesWholeFrameBelowThreshold(t *testing.T) {
	latent := makeLatent(4, 8, 8)
	cfg := &TilingConfig{TileSize: 64, Overlap: 16}

	whole, err := identityDecode(t)(latent)
	require.NoError(t, err)

	tiled, err := decodeTiledNCHW(latent, cfg, identityDecode(t))
	require.NoError(t, err)

	assert.Equal(t, whole.Shape, tiled.Shape)
	assert.InDeltaSlice(t, whole.Data, tiled.Data, 1e-6)
}

func TestDecodeTiledNCHWProducesFullResolutionOutput(t *testing.T) {
	latent := makeLatent(4, 40, 40)
	cfg := &TilingConfig{TileSize: 16, Overlap: 4}

	tiled, err := decodeTiledNCHW(latent, cfg, identityDecode(t))
	require.NoError(t, err)

	require.Equal(t, []int{1, 3, 40, 40}, tiled.Shape)
	for _, v := range tiled.Data {
		assert.False(t, v < 0)
	}
}

func TestDecodeTiledNCHWRejectsInvertedOverlap(t *testing.T) {
	latent := makeLatent(4, 40, 40)
	cfg := &TilingConfig{TileSize: 16, Overlap: 16}

	_, err := decodeTiledNCHW(latent, cfg, identityDecode(t))
	require.Error(t, err)
}

func TestBlendVerticalInterpolatesBorder(t *testing.T) {
	// three identical planar channels, matching the decoder's [3,H,W] tiles
	above := &decodedTile{data: []float32{
		0, 0, 0, 0, 10, 10, 10, 10,
		0, 0, 0, 0, 10, 10, 10, 10,
		0, 0, 0, 0, 10, 10, 10, 10,
	}, height: 2, width: 4}
	current := &decodedTile{data: []float32{
		5, 5, 5, 5, 20, 20, 20, 20,
		5, 5, 5, 5, 20, 20, 20, 20,
		5, 5, 5, 5, 20, 20, 20, 20,
	}, height: 2, width: 4}
	blendVertical(above, current, 1)
	// blend row 0 of current with row 1 of above (alpha=0), fully takes above
	assert.Equal(t, float32(10), current.data[0])
}

func TestBlendHorizontalInterpolatesBorder(t *testing.T) {
	// three identical planar channels, matching the decoder's [3,H,W] tiles
	left := &decodedTile{data: []float32{1, 2, 3, 4, 1, 2, 3, 4, 1, 2, 3, 4}, height: 1, width: 4}
	current := &decodedTile{data: []float32{9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9}, height: 1, width: 4}
	blendHorizontal(left, current, 2)
	// alpha=0 at x=0 takes fully from left's tail column (index width-blend+0=2 -> value 3)
	assert.Equal(t, float32(3), current.data[0])
}
