package diffuser

import (
	"github.com/coretensor/diffuse/errkind"
	"github.com/coretensor/diffuse/submodel"
	"github.com/coretensor/diffuse/tensor"
)

// TilingConfig configures tiled VAE decoding: large latents are decoded in
// overlapping tiles and blended back together instead of in one pass, to
// bound the VAE decoder's peak memory use (spec.md §5's process-wide
// tensor-buffer pool ceiling).
type TilingConfig struct {
	TileSize int // latent-space tile size, e.g. 64 latent px -> 512 image px at 8x
	Overlap  int // latent-space overlap between adjacent tiles
}

// DefaultTilingConfig matches diffusers' tile_latent_min_size=64,
// tile_overlap_factor=0.25.
func DefaultTilingConfig() *TilingConfig {
	return &TilingConfig{TileSize: 64, Overlap: 16}
}

type decodedTile struct {
	data          []float32
	height, width int
}

// decodeLatentsTiled scales latents by rc.VAEScaleFactor and decodes them
// through rc.Models.VAEDecoder, tiling the work when either latent spatial
// dimension exceeds cfg.TileSize. Latents small enough to fit in one tile
// take the exact same single-call path decodeLatents would have taken, so
// output is bit-identical to the untiled decoder below the threshold.
func decodeLatentsTiled(rc *RunContext, latents *tensor.Tensor, cfg *TilingConfig) (*tensor.Tensor, error) {
	if cfg == nil {
		cfg = DefaultTilingConfig()
	}
	if len(latents.Shape) != 4 {
		return nil, errkind.ShapeMismatch("vae_decoder", "tiled decode expects a rank-4 [N,C,H,W] latent")
	}

	scaled := tensor.MultiplyScalar(latents, rc.VAEScaleFactor)
	h, w := scaled.Shape[2], scaled.Shape[3]
	if h <= cfg.TileSize && w <= cfg.TileSize {
		return decodeScaledLatents(rc, scaled)
	}

	decode := func(tile *tensor.Tensor) (*tensor.Tensor, error) {
		return decodeScaledLatents(rc, tile)
	}
	return decodeTiledNCHW(scaled, cfg, decode)
}

// decodeScaledLatents runs the VAE decoder on an already-scaled latent
// tensor and maps its [-1,1] output to [0,1], with no scaling or tiling.
func decodeScaledLatents(rc *RunContext, scaled *tensor.Tensor) (*tensor.Tensor, error) {
	params := submodel.NewInferenceParameters().
		AddInputTensor("latent_sample", scaled).
		AddOutputBuffer("sample")
	out, err := rc.Models.VAEDecoder.RunInference(params)
	if err != nil {
		return nil, err
	}
	sample, ok := out["sample"]
	if !ok {
		return nil, errkind.ShapeMismatch("vae_decoder", "missing output sample")
	}
	return tensor.NormalizeMinusOneToOne(sample), nil
}

// decodeTiledNCHW implements the diffusers tiled-VAE algorithm over an
// [N,C,H,W] latent: decode overlapping tiles, blend their shared borders,
// then crop and reassemble into one [N,3,H*scale,W*scale] image.
func decodeTiledNCHW(latents *tensor.Tensor, cfg *TilingConfig, decode func(*tensor.Tensor) (*tensor.Tensor, error)) (*tensor.Tensor, error) {
	c, h, w := latents.Shape[1], latents.Shape[2], latents.Shape[3]
	stride := cfg.TileSize - cfg.Overlap
	if stride <= 0 {
		return nil, errkind.ShapeMismatch("vae_decoder", "tile overlap must be smaller than tile size")
	}

	var scale int
	var rows [][]decodedTile
	for i := 0; i < h; i += stride {
		i2 := min(i+cfg.TileSize, h)
		var row []decodedTile
		for j := 0; j < w; j += stride {
			j2 := min(j+cfg.TileSize, w)
			tile := sliceNCHW(latents, c, i, i2, j, j2)
			decoded, err := decode(tile)
			if err != nil {
				return nil, err
			}
			if scale == 0 {
				scale = decoded.Shape[2] / (i2 - i)
			}
			if len(decoded.Shape) != 4 || decoded.Shape[1] != 3 {
				return nil, errkind.ShapeMismatch("vae_decoder", "tiled decode expects a [1,3,H,W] output")
			}
			row = append(row, decodedTile{data: decoded.Data, height: decoded.Shape[2], width: decoded.Shape[3]})
		}
		rows = append(rows, row)
	}

	blendExtent := cfg.Overlap * scale
	for i := range rows {
		for j := range rows[i] {
			tile := &rows[i][j]
			if i > 0 {
				blendVertical(&rows[i-1][j], tile, blendExtent)
			}
			if j > 0 {
				blendHorizontal(&rows[i][j-1], tile, blendExtent)
			}
		}
	}

	rowLimit := cfg.TileSize*scale - blendExtent
	colWidths := make([]int, len(rows[0]))
	for j := range rows[0] {
		if (j+1)*stride >= w {
			colWidths[j] = rows[0][j].width
		} else {
			colWidths[j] = rowLimit
		}
	}
	rowHeights := make([]int, len(rows))
	for i := range rows {
		if (i+1)*stride >= h {
			rowHeights[i] = rows[i][0].height
		} else {
			rowHeights[i] = rowLimit
		}
	}

	var totalW, totalH int
	for _, cw := range colWidths {
		totalW += cw
	}
	for _, rh := range rowHeights {
		totalH += rh
	}

	final := make([]float32, 3*totalH*totalW)
	dstPlane := totalH * totalW
	dstY := 0
	for i, row := range rows {
		keepH := rowHeights[i]
		for y := 0; y < keepH; y++ {
			dstX := 0
			for j, tile := range row {
				keepW := colWidths[j]
				tilePlane := tile.height * tile.width
				for x := 0; x < keepW; x++ {
					for ch := 0; ch < 3; ch++ {
						srcIdx := ch*tilePlane + y*tile.width + x
						dstIdx := ch*dstPlane + (dstY+y)*totalW + (dstX + x)
						final[dstIdx] = tile.data[srcIdx]
					}
				}
				dstX += keepW
			}
		}
		dstY += keepH
	}

	return &tensor.Tensor{Data: final, Shape: []int{1, 3, totalH, totalW}}, nil
}

// sliceNCHW extracts the [1,c,i2-i,j2-j] sub-tensor of an [N,c,H,W] tensor
// at rows [i,i2) and columns [j,j2).
func sliceNCHW(t *tensor.Tensor, c, i, i2, j, j2 int) *tensor.Tensor {
	h, w := t.Shape[2], t.Shape[3]
	tileH, tileW := i2-i, j2-j
	data := make([]float32, c*tileH*tileW)
	for ch := 0; ch < c; ch++ {
		for y := 0; y < tileH; y++ {
			srcOff := (ch*h+i+y)*w + j
			dstOff := (ch*tileH + y) * tileW
			copy(data[dstOff:dstOff+tileW], t.Data[srcOff:srcOff+tileW])
		}
	}
	return &tensor.Tensor{Data: data, Shape: []int{1, c, tileH, tileW}}
}

// blendVertical linearly blends the bottom rows of above into the top rows
// of current, in place, over blendExtent rows of planar [3,H,W] data.
func blendVertical(above, current *decodedTile, blendExtent int) {
	blend := min(blendExtent, min(above.height, current.height))
	if blend <= 0 {
		return
	}
	w := min(above.width, current.width)
	abovePlane := above.height * above.width
	currPlane := current.height * current.width
	for c := 0; c < 3; c++ {
		for y := 0; y < blend; y++ {
			alpha := float32(y) / float32(blend)
			for x := 0; x < w; x++ {
				aboveIdx := c*abovePlane + (above.height-blend+y)*above.width + x
				currIdx := c*currPlane + y*current.width + x
				current.data[currIdx] = above.data[aboveIdx]*(1-alpha) + current.data[currIdx]*alpha
			}
		}
	}
}

// blendHorizontal linearly blends the right columns of left into the left
// columns of current, in place.
func blendHorizontal(left, current *decodedTile, blendExtent int) {
	blend := min(blendExtent, min(left.width, current.width))
	if blend <= 0 {
		return
	}
	h := min(left.height, current.height)
	leftPlane := left.height * left.width
	currPlane := current.height * current.width
	for c := 0; c < 3; c++ {
		for y := 0; y < h; y++ {
			for x := 0; x < blend; x++ {
				alpha := float32(x) / float32(blend)
				leftIdx := c*leftPlane + y*left.width + (left.width - blend + x)
				currIdx := c*currPlane + y*current.width + x
				current.data[currIdx] = left.data[leftIdx]*(1-alpha) + current.data[currIdx]*alpha
			}
		}
	}
}
