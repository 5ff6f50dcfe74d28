package prompt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testVocab() *Vocabulary {
	json := []byte(`{
		"model": {
			"type": "BPE",
			"vocab": {
				"<|startoftext|>": 0,
				"<|endoftext|>": 1,
				"Ġa": 2,
				"Ġcat": 3,
				"Ġc": 4,
				"a": 5,
				"t": 6,
				"c": 7
			},
			"merges": ["Ġc a", "Ġca t"]
		},
		"added_tokens": [
			{"id": 0, "content": "<|startoftext|>"},
			{"id": 1, "content": "<|endoftext|>"}
		]
	}`)
	v, err := parseVocabulary(json)
	if err != nil {
		panic(err)
	}
	return v
}

func TestEncodeSingleToken(t *testing.T) {
	v := testVocab()
	tok := NewTokenizer(v, "")
	tok.ChunkSize = 8

	ids := tok.Encode(" a", false)
	require.Equal(t, []int32{2}, ids)
}

func TestEncodeAddsSpecialTokens(t *testing.T) {
	v := testVocab()
	tok := NewTokenizer(v, "")
	ids := tok.Encode(" a", true)
	require.Equal(t, int32(0), ids[0])
	require.Equal(t, int32(1), ids[len(ids)-1])
}

func TestChunkPadsToChunkSize(t *testing.T) {
	v := testVocab()
	tok := NewTokenizer(v, "")
	tok.ChunkSize = 6

	chunks := tok.Chunk(" a")
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0], 6)
	require.Equal(t, int32(0), chunks[0][0])
}

func TestChunkSplitsLongPrompts(t *testing.T) {
	v := testVocab()
	tok := NewTokenizer(v, "")
	tok.ChunkSize = 4 // 2 body tokens per chunk after BOS/EOS

	chunks := tok.Chunk(" a a a a a")
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		require.Len(t, c, 4)
		require.Equal(t, int32(0), c[0])
	}
}

func TestVocabularyMergeLookup(t *testing.T) {
	v := testVocab()
	require.Equal(t, 0, v.Merge("Ġc", "a"))
	require.Equal(t, -1, v.Merge("x", "y"))
}
