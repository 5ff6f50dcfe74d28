// Package prompt implements Component D: tokenization, chunking and
// text-encoder invocation that turns api.PromptOptions into
// api.PromptEmbeddings (spec.md §4.D).
package prompt

import (
	"encoding/json"
	"fmt"
	"os"
)

// Vocabulary holds a BPE vocabulary and merge-rank table loaded from a
// HuggingFace-style tokenizer.json (spec.md §4.D: "byte-level BPE
// vocabulary + merges").
type Vocabulary struct {
	Values  []string
	Reverse map[string]int32
	Merges  map[string]int

	BOS int32
	EOS int32
	PAD int32

	specials map[string]int32
}

// Encode looks up a token string's ID, returning -1 if absent.
func (v *Vocabulary) Encode(token string) int32 {
	if id, ok := v.Reverse[token]; ok {
		return id
	}
	return -1
}

// Decode returns the token string for an ID, or "" if out of range.
func (v *Vocabulary) Decode(id int32) string {
	if id < 0 || int(id) >= len(v.Values) {
		return ""
	}
	return v.Values[id]
}

// Merge returns the merge rank of the pair (left, right), or -1 if the pair
// never merges.
func (v *Vocabulary) Merge(left, right string) int {
	if rank, ok := v.Merges[left+" "+right]; ok {
		return rank
	}
	return -1
}

// SpecialVocabulary returns every added/special token string, longest first
// isn't required here since callers scan the whole set.
func (v *Vocabulary) SpecialVocabulary() []string {
	out := make([]string, 0, len(v.specials))
	for s := range v.specials {
		out = append(out, s)
	}
	return out
}

type tokenizerJSON struct {
	Model struct {
		Type   string           `json:"type"`
		Vocab  map[string]int32 `json:"vocab"`
		Merges json.RawMessage  `json:"merges"`
	} `json:"model"`
	AddedTokens []struct {
		ID      int32  `json:"id"`
		Content string `json:"content"`
	} `json:"added_tokens"`
}

// LoadVocabulary reads a tokenizer.json file describing a CLIP/GPT-2 style
// byte-level BPE vocabulary.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompt: read tokenizer: %w", err)
	}
	return parseVocabulary(data)
}

func parseVocabulary(data []byte) (*Vocabulary, error) {
	var raw tokenizerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("prompt: parse tokenizer.json: %w", err)
	}

	var mergeStrings []string
	if raw.Model.Merges != nil {
		if err := json.Unmarshal(raw.Model.Merges, &mergeStrings); err != nil {
			var pairs [][]string
			if err := json.Unmarshal(raw.Model.Merges, &pairs); err != nil {
				return nil, fmt.Errorf("prompt: parse merges: %w", err)
			}
			mergeStrings = make([]string, len(pairs))
			for i, p := range pairs {
				mergeStrings[i] = p[0] + " " + p[1]
			}
		}
	}

	v := &Vocabulary{
		Values:   make([]string, len(raw.Model.Vocab)),
		Reverse:  raw.Model.Vocab,
		Merges:   make(map[string]int, len(mergeStrings)),
		BOS:      -1,
		EOS:      -1,
		PAD:      -1,
		specials: make(map[string]int32),
	}
	for token, id := range raw.Model.Vocab {
		v.growTo(id)
		v.Values[id] = token
	}
	for i, m := range mergeStrings {
		v.Merges[m] = i
	}
	for _, tok := range raw.AddedTokens {
		v.growTo(tok.ID)
		v.Values[tok.ID] = tok.Content
		v.specials[tok.Content] = tok.ID
	}

	if id, ok := v.specials["<|startoftext|>"]; ok {
		v.BOS = id
	} else if id, ok := v.specials["<s>"]; ok {
		v.BOS = id
	}
	if id, ok := v.specials["<|endoftext|>"]; ok {
		v.EOS = id
		v.PAD = id
	} else if id, ok := v.specials["</s>"]; ok {
		v.EOS = id
	}
	return v, nil
}

func (v *Vocabulary) growTo(id int32) {
	if int(id) >= len(v.Values) {
		grown := make([]string, id+1)
		copy(grown, v.Values)
		v.Values = grown
	}
}
