//go:build onnx

package submodel

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/coretensor/diffuse/tensor"
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func initRuntime() error {
	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// onnxSession is the ONNX Runtime-backed implementation of the session
// interface, grounded on the teacher pack's onnx/session.go (ONNX Runtime
// session lifecycle via yalue/onnxruntime_go).
type onnxSession struct {
	path    string
	inner   *ort.DynamicAdvancedSession
	inputs  []ort.InputOutputInfo
	outputs []ort.InputOutputInfo
}

func newOnnxSession(path string) (session, error) {
	if err := initRuntime(); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("read model signature: %w", err)
	}

	inputNames := make([]string, len(inputs))
	for i, in := range inputs {
		inputNames[i] = in.Name
	}
	outputNames := make([]string, len(outputs))
	for i, out := range outputs {
		outputNames[i] = out.Name
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()

	inner, err := ort.NewDynamicAdvancedSession(path, inputNames, outputNames, opts)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &onnxSession{path: path, inner: inner, inputs: inputs, outputs: outputs}, nil
}

func (s *onnxSession) metadata() (Metadata, error) {
	md := Metadata{
		Inputs:  make([]TensorSpec, len(s.inputs)),
		Outputs: make([]TensorSpec, len(s.outputs)),
	}
	for i, in := range s.inputs {
		md.Inputs[i] = TensorSpec{Name: in.Name, Shape: shapeOf(in.Dimensions), Dtype: in.DataType.String()}
	}
	for i, out := range s.outputs {
		md.Outputs[i] = TensorSpec{Name: out.Name, Shape: shapeOf(out.Dimensions), Dtype: out.DataType.String()}
	}
	return md, nil
}

func shapeOf(dims ort.Shape) []int64 {
	out := make([]int64, len(dims))
	copy(out, dims)
	return out
}

func (s *onnxSession) run(ctx context.Context, params *InferenceParameters) (map[string]*tensor.Tensor, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	inputTensors := make([]ort.ArbitraryTensor, 0, len(s.inputs))
	for _, in := range params.Inputs() {
		switch in.kind {
		case "tensor":
			shape := int64Shape(in.tensorValue.Shape)
			t, err := ort.NewTensor(ort.NewShape(shape...), in.tensorValue.Data)
			if err != nil {
				return nil, fmt.Errorf("build input tensor %q: %w", in.name, err)
			}
			defer t.Destroy()
			inputTensors = append(inputTensors, t)
		case "int64":
			t, err := ort.NewTensor(ort.NewShape(int64(len(in.int64Value))), in.int64Value)
			if err != nil {
				return nil, fmt.Errorf("build input tensor %q: %w", in.name, err)
			}
			defer t.Destroy()
			inputTensors = append(inputTensors, t)
		case "float64":
			t, err := ort.NewTensor(ort.NewShape(1), []float64{in.float64Val})
			if err != nil {
				return nil, fmt.Errorf("build input tensor %q: %w", in.name, err)
			}
			defer t.Destroy()
			inputTensors = append(inputTensors, t)
		case "string":
			t, err := ort.NewTensor(ort.NewShape(1), []string{in.stringVal})
			if err != nil {
				return nil, fmt.Errorf("build input tensor %q: %w", in.name, err)
			}
			defer t.Destroy()
			inputTensors = append(inputTensors, t)
		}
	}

	outputTensors := make([]ort.ArbitraryTensor, len(s.outputs))
	created := make([]*ort.Tensor[float32], 0, len(s.outputs))
	for i, out := range s.outputs {
		shape, ok := params.OutputShapes()[out.Name]
		if !ok || len(shape) == 0 {
			shape = out.Dimensions
		}
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(shape...))
		if err != nil {
			return nil, fmt.Errorf("allocate output buffer %q: %w", out.Name, err)
		}
		created = append(created, t)
		outputTensors[i] = t
	}
	defer func() {
		for _, t := range created {
			t.Destroy()
		}
	}()

	if err := s.inner.Run(inputTensors, outputTensors); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}

	results := make(map[string]*tensor.Tensor, len(s.outputs))
	for i, out := range s.outputs {
		data := append([]float32(nil), created[i].GetData()...)
		results[out.Name] = &tensor.Tensor{Data: data, Shape: intShape(created[i].GetShape())}
	}
	return results, nil
}

func (s *onnxSession) close() error {
	if s.inner != nil {
		s.inner.Destroy()
		s.inner = nil
	}
	return nil
}

func int64Shape(in []int) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}

func intShape(in ort.Shape) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}
