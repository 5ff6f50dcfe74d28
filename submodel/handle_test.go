package submodel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coretensor/diffuse/tensor"
)

// fakeSession is a test double standing in for an ONNX Runtime session so
// lifecycle and error-propagation behavior can be tested without a real
// model file or the "onnx" build tag.
type fakeSession struct {
	md        Metadata
	runOutput map[string]*tensor.Tensor
	runErr    error
	closed    bool
	loadErr   error
}

func (f *fakeSession) run(ctx context.Context, params *InferenceParameters) (map[string]*tensor.Tensor, error) {
	if f.runErr != nil {
		return nil, f.runErr
	}
	return f.runOutput, nil
}

func (f *fakeSession) metadata() (Metadata, error) { return f.md, nil }
func (f *fakeSession) close() error                { f.closed = true; return nil }

func withFakeFactory(t *testing.T, fake *fakeSession, loadErr error) {
	t.Helper()
	orig := sessionFactory
	sessionFactory = func(path string) (session, error) {
		if loadErr != nil {
			return nil, loadErr
		}
		return fake, nil
	}
	t.Cleanup(func() { sessionFactory = orig })
}

func TestHandleLifecycle(t *testing.T) {
	fake := &fakeSession{md: Metadata{Inputs: []TensorSpec{{Name: "x"}}}}
	withFakeFactory(t, fake, nil)

	h := New("unet", "/models/unet.onnx")
	assert.Equal(t, Unloaded, h.State())

	require.NoError(t, h.Load())
	assert.Equal(t, Loaded, h.State())

	md, err := h.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "x", md.Inputs[0].Name)

	require.NoError(t, h.Unload())
	assert.Equal(t, Unloaded, h.State())
	assert.True(t, fake.closed)

	// Metadata survives unload.
	md2, err := h.Metadata()
	require.NoError(t, err)
	assert.Equal(t, md, md2)
}

func TestHandleLoadFailure(t *testing.T) {
	withFakeFactory(t, nil, errors.New("file not found"))

	h := New("vae", "/models/vae.onnx")
	err := h.Load()
	require.Error(t, err)
	assert.Equal(t, Unloaded, h.State())
}

func TestRunInferenceRequiresLoaded(t *testing.T) {
	fake := &fakeSession{}
	withFakeFactory(t, fake, nil)

	h := New("unet", "/models/unet.onnx")
	_, err := h.RunInference(NewInferenceParameters())
	require.Error(t, err)
}

func TestRunInferenceAsync(t *testing.T) {
	want := map[string]*tensor.Tensor{"out": {Data: []float32{1, 2, 3}, Shape: []int{3}}}
	fake := &fakeSession{md: Metadata{}, runOutput: want}
	withFakeFactory(t, fake, nil)

	h := New("unet", "/models/unet.onnx")
	require.NoError(t, h.Load())

	res := <-h.RunInferenceAsync(context.Background(), NewInferenceParameters())
	require.NoError(t, res.Err)
	assert.Equal(t, want, res.Outputs)
}

func TestRunInferenceAsyncCancelled(t *testing.T) {
	fake := &fakeSession{}
	withFakeFactory(t, fake, nil)

	h := New("unet", "/models/unet.onnx")
	require.NoError(t, h.Load())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := <-h.RunInferenceAsync(ctx, NewInferenceParameters())
	require.Error(t, res.Err)
}
