package diffuser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coretensor/diffuse/tensor"
)

func TestRunStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "stepping", Stepping.String())
	assert.Equal(t, "done", Done.String())
	assert.Equal(t, "cancelled", Cancelled.String())
	assert.Equal(t, "failed", Failed.String())
}

func TestDiffuserStateTransitionsToDone(t *testing.T) {
	d := New(&TextToImage{})
	assert.Equal(t, Idle, d.State())
	d.setState(PreparingLatents)
	assert.Equal(t, PreparingLatents, d.State())
	d.setState(Done)
	assert.Equal(t, Done, d.State())
}

func TestImg2ImgStartStep(t *testing.T) {
	all := []int{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}
	got := img2imgStartStep(all, 0.5)
	assert.Equal(t, []int{4, 3, 2, 1, 0}, got)

	full := img2imgStartStep(all, 1.0)
	assert.Equal(t, all, full)

	minimal := img2imgStartStep(all, 0.0)
	assert.Len(t, minimal, 1)
}

func TestBlendMaskFullyKept(t *testing.T) {
	mask, err := tensor.FromSlice([]float32{1, 1, 1, 1}, 1, 1, 2, 2)
	require.NoError(t, err)
	keep, err := tensor.FromSlice([]float32{1, 1, 1, 1}, 1, 1, 2, 2)
	require.NoError(t, err)
	replace, err := tensor.FromSlice([]float32{9, 9, 9, 9}, 1, 1, 2, 2)
	require.NoError(t, err)

	out, err := blendMask(mask, keep, replace)
	require.NoError(t, err)
	assert.Equal(t, keep.Data, out.Data)
}

func TestBlendMaskFullyReplaced(t *testing.T) {
	mask, err := tensor.FromSlice([]float32{0, 0, 0, 0}, 1, 1, 2, 2)
	require.NoError(t, err)
	keep, err := tensor.FromSlice([]float32{1, 1, 1, 1}, 1, 1, 2, 2)
	require.NoError(t, err)
	replace, err := tensor.FromSlice([]float32{9, 9, 9, 9}, 1, 1, 2, 2)
	require.NoError(t, err)

	out, err := blendMask(mask, keep, replace)
	require.NoError(t, err)
	assert.Equal(t, replace.Data, out.Data)
}

func TestConcatChannelShape(t *testing.T) {
	latent := tensor.New(1, 4, 8, 8)
	mask := tensor.New(1, 1, 8, 8)
	maskedLatent := tensor.New(1, 4, 8, 8)

	out, err := concatChannel(latent, mask, maskedLatent)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 9, 8, 8}, out.Shape)
}

func TestCascadeSpatialDivisorIsExact(t *testing.T) {
	// spec.md §9: this must stay 42.67, not round to 42 or 43.
	assert.InDelta(t, 42.67, cascadeSpatialDivisor, 1e-9)
}
