package prompt

import (
	"cmp"

	"github.com/dlclark/regexp2"
	heap "github.com/emirpasic/gods/v2/trees/binaryheap"
)

// defaultPretokenizer is the byte-level pretokenizer pattern shared by
// GPT-2/CLIP-family tokenizers (spec.md §4.D), identical to the pattern
// HuggingFace's tokenizers library ships as its ByteLevel default.
const defaultPretokenizer = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

// byteToRune is the GPT-2 byte-level encoding table: every raw byte maps to
// a printable rune so BPE merges operate on a fully printable alphabet.
var byteToRune [256]rune

func init() {
	for b := 0; b < 256; b++ {
		r := rune(b)
		switch {
		case r == 0x00ad:
			r = 0x0143
		case r <= 0x0020:
			r += 0x0100
		case r >= 0x007f && r <= 0x00a0:
			r += 0x00a2
		}
		byteToRune[b] = r
	}
}

// Tokenizer implements byte-level BPE encode/decode using a heap-ordered
// merge (spec.md §4.D), grounded on the same regexp2 + binaryheap
// combination used for pretokenization and rank-ordered pair merging
// elsewhere in this codebase's lineage.
type Tokenizer struct {
	vocab   *Vocabulary
	pretok  *regexp2.Regexp
	ChunkSize int // token budget per encoder pass, CLIP default 77
}

// NewTokenizer wraps a Vocabulary with the byte-level BPE pretokenizer.
func NewTokenizer(vocab *Vocabulary, pattern string) *Tokenizer {
	if pattern == "" {
		pattern = defaultPretokenizer
	}
	return &Tokenizer{
		vocab:     vocab,
		pretok:    regexp2.MustCompile(pattern, regexp2.RE2),
		ChunkSize: 77,
	}
}

// Vocabulary exposes the underlying vocabulary, e.g. for BOS/EOS/PAD ids.
func (t *Tokenizer) Vocabulary() *Vocabulary { return t.vocab }

// split runs the pretokenizer regex over s, yielding the runs it matches
// plus any leftover text between matches.
func (t *Tokenizer) split(s string) []string {
	r := []rune(s)
	var parts []string
	offset := 0
	m, _ := t.pretok.FindRunesMatch(r)
	for m != nil {
		if m.Index != offset {
			parts = append(parts, string(r[offset:m.Index]))
		}
		parts = append(parts, m.String())
		offset = m.Index + m.Length
		m, _ = t.pretok.FindNextMatch(m)
	}
	if offset < len(r) {
		parts = append(parts, string(r[offset:]))
	}
	return parts
}

type pair struct {
	a, b  int
	rank  int
	value string
}

type mergeNode struct {
	prev, next int
	runes      []rune
}

// Encode tokenizes s into vocabulary IDs. addSpecial prefixes BOS and
// suffixes EOS, each only when the vocabulary defines it.
func (t *Tokenizer) Encode(s string, addSpecial bool) []int32 {
	var ids []int32
	for _, chunk := range t.split(s) {
		var encoded []rune
		for _, b := range []byte(chunk) {
			encoded = append(encoded, byteToRune[b])
		}
		encStr := string(encoded)
		if id := t.vocab.Encode(encStr); id >= 0 {
			ids = append(ids, id)
			continue
		}
		ids = append(ids, t.mergeEncode(encoded)...)
	}

	if addSpecial {
		out := make([]int32, 0, len(ids)+2)
		if t.vocab.BOS >= 0 {
			out = append(out, t.vocab.BOS)
		}
		out = append(out, ids...)
		if t.vocab.EOS >= 0 {
			out = append(out, t.vocab.EOS)
		}
		return out
	}
	return ids
}

// mergeEncode runs the rank-ordered BPE merge over a single pretokenized
// fragment already mapped through the byte-to-rune table (grounded on the
// same heap-based merge structure this codebase's byte-pair encoder uses
// elsewhere).
func (t *Tokenizer) mergeEncode(runes []rune) []int32 {
	nodes := make([]mergeNode, len(runes))
	for i, r := range runes {
		nodes[i] = mergeNode{prev: i - 1, next: i + 1, runes: []rune{r}}
	}

	pairwise := func(a, b int) *pair {
		if a < 0 || b >= len(nodes) || len(nodes[a].runes) == 0 || len(nodes[b].runes) == 0 {
			return nil
		}
		left, right := string(nodes[a].runes), string(nodes[b].runes)
		rank := t.vocab.Merge(left, right)
		if rank < 0 {
			return nil
		}
		return &pair{a: a, b: b, rank: rank, value: left + right}
	}

	pairs := heap.NewWith(func(x, y *pair) int { return cmp.Compare(x.rank, y.rank) })
	for i := 0; i < len(nodes)-1; i++ {
		if p := pairwise(i, i+1); p != nil {
			pairs.Push(p)
		}
	}

	for !pairs.Empty() {
		p, _ := pairs.Pop()
		left, right := nodes[p.a], nodes[p.b]
		if len(left.runes) == 0 || len(right.runes) == 0 || string(left.runes)+string(right.runes) != p.value {
			continue
		}
		nodes[p.a].runes = append(left.runes, right.runes...)
		nodes[p.b].runes = nil
		nodes[p.a].next = right.next
		if right.next < len(nodes) {
			nodes[right.next].prev = p.a
		}
		if np := pairwise(nodes[p.a].prev, p.a); np != nil {
			pairs.Push(np)
		}
		if np := pairwise(p.a, nodes[p.a].next); np != nil {
			pairs.Push(np)
		}
	}

	var ids []int32
	for _, n := range nodes {
		if len(n.runes) == 0 {
			continue
		}
		if id := t.vocab.Encode(string(n.runes)); id >= 0 {
			ids = append(ids, id)
		}
	}
	return ids
}
