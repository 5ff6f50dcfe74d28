// Package submodel provides thin, stateful holders around ONNX-compiled
// neural sub-models (text encoder, tokenizer, UNet, ControlNet, VAE
// encoder/decoder) — spec.md §4.B and §6. The actual inference engine is
// treated as an opaque backend; the ONNX Runtime binding used to drive it
// lives in onnx_session.go, gated behind the "onnx" build tag the way the
// teacher gates its native accelerator bindings behind "mlx"/"cgo".
package submodel

import (
	"context"
	"fmt"
	"sync"

	"github.com/coretensor/diffuse/errkind"
	"github.com/coretensor/diffuse/tensor"
)

// State is the lifecycle of a sub-model handle (spec.md §3).
type State int

const (
	Unloaded State = iota
	Loaded
)

func (s State) String() string {
	if s == Loaded {
		return "loaded"
	}
	return "unloaded"
}

// TensorSpec describes one named input or output of an ONNX graph.
type TensorSpec struct {
	Name  string
	Shape []int64
	Dtype string
}

// Metadata is the input/output signature of a loaded (or previously loaded)
// graph. It is cached at load time so an Unloaded handle can still report it
// (spec.md §4.B invariant: "an Unloaded handle is still addressable and
// reports metadata from a cached signature").
type Metadata struct {
	Inputs  []TensorSpec
	Outputs []TensorSpec
}

// session is the minimal surface a concrete ONNX Runtime binding must
// implement; backend is a *onnxSession when built with the "onnx" tag, or a
// fake in tests.
type session interface {
	run(ctx context.Context, params *InferenceParameters) (map[string]*tensor.Tensor, error)
	metadata() (Metadata, error)
	close() error
}

// sessionFactory constructs a backend session for a model file path. It is
// swappable for tests; production code sets it to newOnnxSession (see
// onnx_session.go).
var sessionFactory = newOnnxSession

// Handle is a named ONNX graph with explicit load/unload lifecycle.
type Handle struct {
	Name string
	Path string

	mu       sync.Mutex
	state    State
	sess     session
	cachedMD Metadata
	hasMD    bool
}

// New creates an Unloaded handle for the graph at path.
func New(name, path string) *Handle {
	return &Handle{Name: name, Path: path, state: Unloaded}
}

// State reports the handle's current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Load opens the ONNX session backing this handle. Loading an already-Loaded
// handle is a no-op.
func (h *Handle) Load() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == Loaded {
		return nil
	}

	sess, err := sessionFactory(h.Path)
	if err != nil {
		return errkind.ModelLoadFailed(h.Name, "failed to open ONNX session for "+h.Path, err)
	}

	md, err := sess.metadata()
	if err != nil {
		sess.close()
		return errkind.ModelLoadFailed(h.Name, "failed to read model metadata", err)
	}

	h.sess = sess
	h.cachedMD = md
	h.hasMD = true
	h.state = Loaded
	return nil
}

// Unload releases the ONNX session. Unloading an already-Unloaded handle is
// a no-op. The cached Metadata survives unload.
func (h *Handle) Unload() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == Unloaded {
		return nil
	}
	err := h.sess.close()
	h.sess = nil
	h.state = Unloaded
	return err
}

// Metadata returns the graph's input/output signature. Valid in both
// Loaded and Unloaded states once the graph has been loaded at least once.
func (h *Handle) Metadata() (Metadata, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.hasMD {
		return Metadata{}, fmt.Errorf("submodel %s: metadata unavailable before first load", h.Name)
	}
	return h.cachedMD, nil
}

// RunInference executes the graph synchronously. The handle must be Loaded.
func (h *Handle) RunInference(params *InferenceParameters) (map[string]*tensor.Tensor, error) {
	h.mu.Lock()
	if h.state != Loaded {
		h.mu.Unlock()
		return nil, errkind.InferenceFailed(h.Name, "run_inference called on an unloaded handle", nil)
	}
	sess := h.sess
	h.mu.Unlock()

	out, err := sess.run(context.Background(), params)
	if err != nil {
		return nil, errkind.InferenceFailed(h.Name, "inference call failed", err)
	}
	return out, nil
}

// inferenceResult is the payload delivered on the channel returned by
// RunInferenceAsync.
type inferenceResult struct {
	Outputs map[string]*tensor.Tensor
	Err     error
}

// RunInferenceAsync runs inference on its own goroutine and returns a
// channel that receives exactly one result. This is the async façade
// spec.md §5 requires so a driver task is never blocked on device
// execution; ctx cancellation is observed before the blocking call starts
// but (per §5) does not interrupt an in-flight call.
func (h *Handle) RunInferenceAsync(ctx context.Context, params *InferenceParameters) <-chan inferenceResult {
	ch := make(chan inferenceResult, 1)
	go func() {
		select {
		case <-ctx.Done():
			ch <- inferenceResult{Err: errkind.Cancelled(h.Name)}
			return
		default:
		}

		h.mu.Lock()
		if h.state != Loaded {
			h.mu.Unlock()
			ch <- inferenceResult{Err: errkind.InferenceFailed(h.Name, "run_inference called on an unloaded handle", nil)}
			return
		}
		sess := h.sess
		h.mu.Unlock()

		out, err := sess.run(ctx, params)
		if err != nil {
			ch <- inferenceResult{Err: errkind.InferenceFailed(h.Name, "inference call failed", err)}
			return
		}
		ch <- inferenceResult{Outputs: out}
	}()
	return ch
}
