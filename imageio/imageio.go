// Package imageio provides the concrete api.InputImage sources the core
// engine consumes — a file path, a raw byte buffer, an already-decoded Go
// image, or a pre-materialized pixel tensor — plus the pixel-tensor-to-PNG
// path back out, following this codebase's image-conversion conventions.
package imageio

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"

	"golang.org/x/image/draw"

	"github.com/coretensor/diffuse/api"
	"github.com/coretensor/diffuse/tensor"
)

// FileImage is an api.InputImage backed by a path on disk; the file is read
// and decoded on each GetImageTensor call.
type FileImage struct {
	Path string
}

var _ api.InputImage = FileImage{}

func (f FileImage) GetImageTensor(height, width int, mode api.NormalizeMode) (*tensor.Tensor, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("imageio: read %s: %w", f.Path, err)
	}
	return BytesImage{Data: data}.GetImageTensor(height, width, mode)
}

// BytesImage is an api.InputImage backed by an in-memory encoded image
// buffer (PNG/JPEG), as received over an HTTP request body.
type BytesImage struct {
	Data []byte
}

var _ api.InputImage = BytesImage{}

func (b BytesImage) GetImageTensor(height, width int, mode api.NormalizeMode) (*tensor.Tensor, error) {
	img, _, err := image.Decode(bytes.NewReader(b.Data))
	if err != nil {
		return nil, fmt.Errorf("imageio: decode: %w", err)
	}
	return DecodedImage{Image: img}.GetImageTensor(height, width, mode)
}

// DecodedImage is an api.InputImage backed by an already-decoded Go image,
// e.g. a video frame handed off by package video.
type DecodedImage struct {
	Image image.Image
}

var _ api.InputImage = DecodedImage{}

func (d DecodedImage) GetImageTensor(height, width int, mode api.NormalizeMode) (*tensor.Tensor, error) {
	resized := resize(d.Image, width, height)
	return imageToTensor(resized, mode), nil
}

// TensorImage is an api.InputImage that already holds a normalized pixel
// tensor of the requested shape — used when a caller already produced a
// [1,3,H,W] latent-adjacent buffer (e.g. a preview frame from a prior run).
type TensorImage struct {
	Tensor *tensor.Tensor
}

var _ api.InputImage = TensorImage{}

func (t TensorImage) GetImageTensor(height, width int, mode api.NormalizeMode) (*tensor.Tensor, error) {
	if t.Tensor.Shape[2] != height || t.Tensor.Shape[3] != width {
		return nil, fmt.Errorf("imageio: tensor image is %dx%d, requested %dx%d", t.Tensor.Shape[2], t.Tensor.Shape[3], height, width)
	}
	return t.Tensor, nil
}

// resize scales img to width x height using bilinear interpolation.
func resize(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// imageToTensor converts an image.Image to a [1,3,H,W] float32 tensor,
// normalized per mode.
func imageToTensor(img image.Image, mode api.NormalizeMode) *tensor.Tensor {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	data := make([]float32, 3*h*w)
	plane := h * w

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			idx := y*w + x
			data[0*plane+idx] = normalize(r, mode)
			data[1*plane+idx] = normalize(g, mode)
			data[2*plane+idx] = normalize(b, mode)
		}
	}
	return &tensor.Tensor{Data: data, Shape: []int{1, 3, h, w}}
}

// normalize maps a 16-bit RGBA channel value into [0,1] or [-1,1].
func normalize(c uint32, mode api.NormalizeMode) float32 {
	v := float32(c) / 65535
	if mode == api.MinusOneToOne {
		return v*2 - 1
	}
	return v
}

// TensorToPNG converts a decoded [1,3,H,W] pixel tensor in [0,1] range to
// PNG-encoded bytes, mirroring this codebase's array-to-image conversion.
func TensorToPNG(t *tensor.Tensor) ([]byte, error) {
	if len(t.Shape) != 4 || t.Shape[1] != 3 {
		return nil, fmt.Errorf("imageio: expected [1,3,H,W], got %v", t.Shape)
	}
	h, w := t.Shape[2], t.Shape[3]
	plane := h * w

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			dst := idx * 4
			img.Pix[dst+0] = toByte(t.Data[0*plane+idx])
			img.Pix[dst+1] = toByte(t.Data[1*plane+idx])
			img.Pix[dst+2] = toByte(t.Data[2*plane+idx])
			img.Pix[dst+3] = 255
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TensorToBase64PNG is TensorToPNG followed by standard base64 encoding,
// the shape the OpenAI-compatible httpapi surface returns images in.
func TensorToBase64PNG(t *tensor.Tensor) (string, error) {
	data, err := TensorToPNG(t)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func toByte(v float32) byte {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return byte(v*255 + 0.5)
}
