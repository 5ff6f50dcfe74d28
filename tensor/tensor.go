// Package tensor provides the dense float32 tensor and the pure,
// allocating elementwise operations the diffusion engine's numerics are
// built from (spec.md §4.A). It has no dependency on any other package in
// this module.
package tensor

import (
	"fmt"
)

// Tensor is a dense row-major float32 buffer with an explicit shape. Every
// operation below allocates a fresh Tensor; none mutate their inputs.
type Tensor struct {
	Data  []float32
	Shape []int
}

// New allocates a zeroed Tensor of the given shape.
func New(shape ...int) *Tensor {
	return &Tensor{Data: make([]float32, numel(shape)), Shape: append([]int(nil), shape...)}
}

// FromSlice wraps existing data with a shape, without copying.
func FromSlice(data []float32, shape ...int) (*Tensor, error) {
	if len(data) != numel(shape) {
		return nil, fmt.Errorf("tensor: data has %d elements, shape %v wants %d", len(data), shape, numel(shape))
	}
	return &Tensor{Data: data, Shape: append([]int(nil), shape...)}, nil
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Numel returns the total element count.
func (t *Tensor) Numel() int { return len(t.Data) }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.Data))
	copy(data, t.Data)
	return &Tensor{Data: data, Shape: append([]int(nil), t.Shape...)}
}

// Reshape returns a new Tensor viewing the same element count under a
// different shape. Returns an error (ShapeMismatch is the caller's concern
// to wrap) if the element counts differ.
func Reshape(t *Tensor, shape ...int) (*Tensor, error) {
	if numel(shape) != t.Numel() {
		return nil, fmt.Errorf("tensor: cannot reshape %v (%d elems) to %v (%d elems)", t.Shape, t.Numel(), shape, numel(shape))
	}
	data := make([]float32, len(t.Data))
	copy(data, t.Data)
	return &Tensor{Data: data, Shape: append([]int(nil), shape...)}, nil
}

// Repeat concatenates n copies of t along the batch (axis 0) dimension.
// Used to build the guidance-doubled UNet input from a single latent.
func Repeat(t *Tensor, n int) *Tensor {
	if n <= 0 {
		n = 1
	}
	shape := append([]int(nil), t.Shape...)
	shape[0] *= n
	data := make([]float32, len(t.Data)*n)
	for i := 0; i < n; i++ {
		copy(data[i*len(t.Data):(i+1)*len(t.Data)], t.Data)
	}
	return &Tensor{Data: data, Shape: shape}
}

// Concatenate joins a and b along the batch (axis 0) dimension. Used for the
// negative||positive guidance concatenation of prompt embeddings.
func Concatenate(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) != len(b.Shape) {
		return nil, fmt.Errorf("tensor: concatenate rank mismatch %v vs %v", a.Shape, b.Shape)
	}
	for i := 1; i < len(a.Shape); i++ {
		if a.Shape[i] != b.Shape[i] {
			return nil, fmt.Errorf("tensor: concatenate shape mismatch %v vs %v", a.Shape, b.Shape)
		}
	}
	shape := append([]int(nil), a.Shape...)
	shape[0] = a.Shape[0] + b.Shape[0]
	data := make([]float32, 0, len(a.Data)+len(b.Data))
	data = append(data, a.Data...)
	data = append(data, b.Data...)
	return &Tensor{Data: data, Shape: shape}, nil
}

// ConcatenateAxis joins a and b along an arbitrary axis, used to stack
// multiple CLIP-chunk text-encoder outputs along the sequence axis for
// long-prompt handling (spec.md §4.D).
func ConcatenateAxis(a, b *Tensor, axis int) (*Tensor, error) {
	if len(a.Shape) != len(b.Shape) {
		return nil, fmt.Errorf("tensor: concatenate_axis rank mismatch %v vs %v", a.Shape, b.Shape)
	}
	if axis < 0 || axis >= len(a.Shape) {
		return nil, fmt.Errorf("tensor: concatenate_axis axis %d out of range for shape %v", axis, a.Shape)
	}
	for i := range a.Shape {
		if i != axis && a.Shape[i] != b.Shape[i] {
			return nil, fmt.Errorf("tensor: concatenate_axis shape mismatch %v vs %v", a.Shape, b.Shape)
		}
	}

	outer := 1
	for i := 0; i < axis; i++ {
		outer *= a.Shape[i]
	}
	aInner, bInner := 1, 1
	for i := axis; i < len(a.Shape); i++ {
		aInner *= a.Shape[i]
		bInner *= b.Shape[i]
	}

	shape := append([]int(nil), a.Shape...)
	shape[axis] = a.Shape[axis] + b.Shape[axis]
	data := make([]float32, 0, len(a.Data)+len(b.Data))
	for i := 0; i < outer; i++ {
		data = append(data, a.Data[i*aInner:(i+1)*aInner]...)
		data = append(data, b.Data[i*bInner:(i+1)*bInner]...)
	}
	return &Tensor{Data: data, Shape: shape}, nil
}

// MultiplyScalar returns t * s, elementwise.
func MultiplyScalar(t *Tensor, s float32) *Tensor {
	out := make([]float32, len(t.Data))
	for i, v := range t.Data {
		out[i] = v * s
	}
	return &Tensor{Data: out, Shape: append([]int(nil), t.Shape...)}
}

// AddScalar returns t + s, elementwise.
func AddScalar(t *Tensor, s float32) *Tensor {
	out := make([]float32, len(t.Data))
	for i, v := range t.Data {
		out[i] = v + s
	}
	return &Tensor{Data: out, Shape: append([]int(nil), t.Shape...)}
}

// Add returns a + b, elementwise. a and b must have identical shapes.
func Add(a, b *Tensor) (*Tensor, error) {
	if len(a.Data) != len(b.Data) {
		return nil, fmt.Errorf("tensor: add length mismatch %d vs %d", len(a.Data), len(b.Data))
	}
	out := make([]float32, len(a.Data))
	for i := range out {
		out[i] = a.Data[i] + b.Data[i]
	}
	return &Tensor{Data: out, Shape: append([]int(nil), a.Shape...)}, nil
}

// Sub returns a - b, elementwise.
func Sub(a, b *Tensor) (*Tensor, error) {
	if len(a.Data) != len(b.Data) {
		return nil, fmt.Errorf("tensor: sub length mismatch %d vs %d", len(a.Data), len(b.Data))
	}
	out := make([]float32, len(a.Data))
	for i := range out {
		out[i] = a.Data[i] - b.Data[i]
	}
	return &Tensor{Data: out, Shape: append([]int(nil), a.Shape...)}, nil
}

// Lerp returns a + w*(b-a), elementwise — the classifier-free guidance
// combination `neg + w*(pos-neg)` (spec.md GLOSSARY).
func Lerp(a, b *Tensor, w float32) (*Tensor, error) {
	if len(a.Data) != len(b.Data) {
		return nil, fmt.Errorf("tensor: lerp length mismatch %d vs %d", len(a.Data), len(b.Data))
	}
	out := make([]float32, len(a.Data))
	for i := range out {
		out[i] = a.Data[i] + w*(b.Data[i]-a.Data[i])
	}
	return &Tensor{Data: out, Shape: append([]int(nil), a.Shape...)}, nil
}

// NormalizeMinusOneToOne maps values from [-1,1] to [0,1], clamped.
func NormalizeMinusOneToOne(t *Tensor) *Tensor {
	out := make([]float32, len(t.Data))
	for i, v := range t.Data {
		v = v/2 + 0.5
		out[i] = clamp01(v)
	}
	return &Tensor{Data: out, Shape: append([]int(nil), t.Shape...)}
}

// ToBytePixel converts a [-1,1]-range tensor to byte pixel values:
// round(clamp(x/2+0.5, 0, 1) * 255).
func ToBytePixel(t *Tensor) []byte {
	out := make([]byte, len(t.Data))
	for i, v := range t.Data {
		v = clamp01(v/2 + 0.5)
		out[i] = byte(v*255 + 0.5)
	}
	return out
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Split splits t along axis 0 into n equal chunks.
func Split(t *Tensor, n int) ([]*Tensor, error) {
	if n <= 0 || t.Shape[0]%n != 0 {
		return nil, fmt.Errorf("tensor: cannot split batch %d into %d equal chunks", t.Shape[0], n)
	}
	chunkBatch := t.Shape[0] / n
	chunkLen := len(t.Data) / n
	shape := append([]int(nil), t.Shape...)
	shape[0] = chunkBatch
	out := make([]*Tensor, n)
	for i := 0; i < n; i++ {
		data := make([]float32, chunkLen)
		copy(data, t.Data[i*chunkLen:(i+1)*chunkLen])
		out[i] = &Tensor{Data: data, Shape: append([]int(nil), shape...)}
	}
	return out, nil
}
