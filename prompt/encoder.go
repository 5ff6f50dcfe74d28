package prompt

import (
	"github.com/coretensor/diffuse/errkind"
	"github.com/coretensor/diffuse/submodel"
	"github.com/coretensor/diffuse/tensor"
)

// Embeddings is the sequence and (optionally) pooled text embedding pair a
// single call to Encode produces for one string (spec.md §4.D).
type Embeddings struct {
	Sequence *tensor.Tensor // [1, seq_len * chunk_count, hidden]
	Pooled   *tensor.Tensor // nil unless the text encoder exposes a pooled output
}

// Encoder wraps a tokenizer and a loaded text-encoder submodel.Handle,
// turning prompt strings into embeddings ready for classifier-free
// guidance concatenation (spec.md §4.D).
type Encoder struct {
	Tokenizer   *Tokenizer
	TextEncoder *submodel.Handle

	// InputName/OutputName/PooledOutputName bind this encoder's graph I/O
	// names; SDXL-style dual encoders expose a second pooled vector, single
	// encoders (SD 1.x) leave PooledOutputName empty.
	InputName        string
	OutputName       string
	PooledOutputName string
}

// NewEncoder builds an Encoder with the conventional CLIP graph I/O names.
func NewEncoder(tok *Tokenizer, textEncoder *submodel.Handle) *Encoder {
	return &Encoder{
		Tokenizer:   tok,
		TextEncoder: textEncoder,
		InputName:   "input_ids",
		OutputName:  "last_hidden_state",
	}
}

// Encode tokenizes text, chunks it to the tokenizer's positional limit, runs
// the text encoder once per chunk, and concatenates the per-chunk sequence
// outputs along the sequence axis (spec.md §4.D). The pooled output, when
// the graph exposes one, is taken from the first chunk only, matching how
// CLIP pooling is defined over a single 77-token window.
func (e *Encoder) Encode(text string) (Embeddings, error) {
	chunks := e.Tokenizer.Chunk(text)

	var seq *tensor.Tensor
	var pooled *tensor.Tensor
	for i, chunk := range chunks {
		ids := make([]int64, len(chunk))
		for j, id := range chunk {
			ids[j] = int64(id)
		}

		params := submodel.NewInferenceParameters().
			AddInputInt64(e.InputName, ids).
			AddOutputBuffer(e.OutputName)
		if e.PooledOutputName != "" {
			params.AddOutputBuffer(e.PooledOutputName)
		}

		out, err := e.TextEncoder.RunInference(params)
		if err != nil {
			return Embeddings{}, err
		}
		hidden, ok := out[e.OutputName]
		if !ok {
			return Embeddings{}, errkind.ShapeMismatch("text_encoder", "missing output "+e.OutputName)
		}

		if i == 0 {
			seq = hidden
			if e.PooledOutputName != "" {
				pooled = out[e.PooledOutputName]
			}
		} else {
			joined, err := tensor.ConcatenateAxis(seq, hidden, 1)
			if err != nil {
				return Embeddings{}, errkind.ShapeMismatch("text_encoder", "chunk concatenation failed: "+err.Error())
			}
			seq = joined
		}
	}

	return Embeddings{Sequence: seq, Pooled: pooled}, nil
}

// EncodeGuided encodes both prompt and negativePrompt and, when guidance is
// enabled, returns the negative||positive batch concatenation the shared
// diffuser loop feeds the UNet in one guided pass (spec.md §4.D, GLOSSARY:
// "classifier-free guidance").
func EncodeGuided(e *Encoder, prompt, negativePrompt string, guidanceEnabled bool) (Embeddings, error) {
	pos, err := e.Encode(prompt)
	if err != nil {
		return Embeddings{}, err
	}
	if !guidanceEnabled {
		return pos, nil
	}

	neg, err := e.Encode(negativePrompt)
	if err != nil {
		return Embeddings{}, err
	}

	seq, err := tensor.Concatenate(neg.Sequence, pos.Sequence)
	if err != nil {
		return Embeddings{}, errkind.ShapeMismatch("text_encoder", "guidance concatenation failed: "+err.Error())
	}

	var pooled *tensor.Tensor
	if neg.Pooled != nil && pos.Pooled != nil {
		pooled, err = tensor.Concatenate(neg.Pooled, pos.Pooled)
		if err != nil {
			return Embeddings{}, errkind.ShapeMismatch("text_encoder", "pooled guidance concatenation failed: "+err.Error())
		}
	}

	return Embeddings{Sequence: seq, Pooled: pooled}, nil
}
