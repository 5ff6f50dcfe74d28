package prompt

// Chunk splits token ids into fixed-width windows of size ChunkSize,
// BOS/EOS-wrapped and pad-filled, for prompts longer than the text
// encoder's positional limit (spec.md §4.D: "prompts exceeding the
// tokenizer limit are split into chunk_size windows, each independently
// embedded, then concatenated along the sequence axis").
func (t *Tokenizer) Chunk(text string) [][]int32 {
	body := t.Encode(text, false)
	limit := t.ChunkSize - 2
	if limit <= 0 {
		limit = t.ChunkSize
	}

	if len(body) == 0 {
		return [][]int32{t.padChunk(nil)}
	}

	var chunks [][]int32
	for start := 0; start < len(body); start += limit {
		end := start + limit
		if end > len(body) {
			end = len(body)
		}
		chunks = append(chunks, t.padChunk(body[start:end]))
	}
	return chunks
}

func (t *Tokenizer) padChunk(body []int32) []int32 {
	out := make([]int32, 0, t.ChunkSize)
	if t.vocab.BOS >= 0 {
		out = append(out, t.vocab.BOS)
	}
	out = append(out, body...)
	if t.vocab.EOS >= 0 {
		out = append(out, t.vocab.EOS)
	}
	pad := t.vocab.PAD
	if pad < 0 {
		pad = t.vocab.EOS
	}
	for len(out) < t.ChunkSize {
		out = append(out, pad)
	}
	if len(out) > t.ChunkSize {
		out = out[:t.ChunkSize]
	}
	return out
}
