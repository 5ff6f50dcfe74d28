package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepeat(t *testing.T) {
	x, err := FromSlice([]float32{1, 2, 3, 4}, 1, 2, 2)
	require.NoError(t, err)

	r := Repeat(x, 2)
	assert.Equal(t, []int{2, 2, 2}, r.Shape)
	assert.Equal(t, []float32{1, 2, 3, 4, 1, 2, 3, 4}, r.Data)
}

func TestConcatenate(t *testing.T) {
	a, _ := FromSlice([]float32{1, 2}, 1, 2)
	b, _ := FromSlice([]float32{3, 4}, 1, 2)

	c, err := Concatenate(a, b)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, c.Shape)
	assert.Equal(t, []float32{1, 2, 3, 4}, c.Data)

	_, err = Concatenate(a, &Tensor{Data: []float32{1, 2, 3}, Shape: []int{1, 3}})
	assert.Error(t, err)
}

func TestMultiplyScalarAndAdd(t *testing.T) {
	x, _ := FromSlice([]float32{1, -2, 3}, 3)
	doubled := MultiplyScalar(x, 2)
	assert.Equal(t, []float32{2, -4, 6}, doubled.Data)

	sum, err := Add(x, doubled)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, -6, 9}, sum.Data)
}

func TestNormalizeMinusOneToOne(t *testing.T) {
	x, _ := FromSlice([]float32{-1, 0, 1, 2, -2}, 5)
	n := NormalizeMinusOneToOne(x)
	assert.InDeltaSlice(t, []float64{0, 0.5, 1, 1, 0}, toFloat64(n.Data), 1e-6)
}

func TestToBytePixel(t *testing.T) {
	x, _ := FromSlice([]float32{-1, 0, 1}, 3)
	b := ToBytePixel(x)
	assert.Equal(t, []byte{0, 128, 255}, b)
}

func TestLerpGuidance(t *testing.T) {
	neg, _ := FromSlice([]float32{0, 0}, 2)
	pos, _ := FromSlice([]float32{10, 20}, 2)

	out, err := Lerp(neg, pos, 1) // w=1 -> pos
	require.NoError(t, err)
	assert.Equal(t, []float32{10, 20}, out.Data)

	out, err = Lerp(neg, pos, 0) // w=0 -> neg
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0}, out.Data)
}

func TestSplit(t *testing.T) {
	x, _ := FromSlice([]float32{1, 2, 3, 4}, 2, 2)
	parts, err := Split(x, 2)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, []float32{1, 2}, parts[0].Data)
	assert.Equal(t, []float32{3, 4}, parts[1].Data)
}

func TestRandomNormalReproducible(t *testing.T) {
	a := RandomNormal(42, 8)
	b := RandomNormal(42, 8)
	assert.Equal(t, a.Data, b.Data)

	c := RandomNormal(43, 8)
	assert.NotEqual(t, a.Data, c.Data)
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
