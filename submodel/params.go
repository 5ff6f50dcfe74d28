package submodel

import "github.com/coretensor/diffuse/tensor"

// namedValue is a typed, named input the backend accepts besides plain
// float32 tensors — int64 token ids, a float64 ControlNet conditioning
// scale, or a raw string for the tokenizer session (spec.md §6).
type namedValue struct {
	name string
	kind string // "tensor" | "int64" | "float64" | "string"

	tensorValue *tensor.Tensor
	int64Value  []int64
	float64Val  float64
	stringVal   string
}

// InferenceParameters is a builder for one run_inference call, matching the
// teacher's OnnxInferenceParameters (spec.md §4.B).
type InferenceParameters struct {
	inputs        []namedValue
	outputShapes  map[string][]int64 // empty shape = let backend allocate
}

// NewInferenceParameters returns an empty parameter builder.
func NewInferenceParameters() *InferenceParameters {
	return &InferenceParameters{outputShapes: make(map[string][]int64)}
}

// AddInputTensor adds a positionally-implicit float tensor input, named by
// the sub-model's declared input order.
func (p *InferenceParameters) AddInputTensor(name string, t *tensor.Tensor) *InferenceParameters {
	p.inputs = append(p.inputs, namedValue{name: name, kind: "tensor", tensorValue: t})
	return p
}

// AddInputInt64 adds an int64 tensor input (token ids, timestep index).
func (p *InferenceParameters) AddInputInt64(name string, values []int64) *InferenceParameters {
	p.inputs = append(p.inputs, namedValue{name: name, kind: "int64", int64Value: values})
	return p
}

// AddInputFloat64 adds a scalar float64 input (e.g. ControlNet
// conditioning_scale, which spec.md §6 calls out as float64).
func (p *InferenceParameters) AddInputFloat64(name string, value float64) *InferenceParameters {
	p.inputs = append(p.inputs, namedValue{name: name, kind: "float64", float64Val: value})
	return p
}

// AddInputString adds a string input (tokenizer session text-in).
func (p *InferenceParameters) AddInputString(name, value string) *InferenceParameters {
	p.inputs = append(p.inputs, namedValue{name: name, kind: "string", stringVal: value})
	return p
}

// AddOutputBuffer declares an expected output by name and (optionally) a
// pre-allocated shape; an empty shape lets the backend allocate.
func (p *InferenceParameters) AddOutputBuffer(name string, shape ...int64) *InferenceParameters {
	p.outputShapes[name] = shape
	return p
}

// Inputs returns the accumulated input list in insertion order.
func (p *InferenceParameters) Inputs() []namedValue { return p.inputs }

// OutputShapes returns the declared output buffers.
func (p *InferenceParameters) OutputShapes() map[string][]int64 { return p.outputShapes }
