// Package fields turns raw example values into padded, numericalized
// batch tensors. A Field describes one named example attribute; ForData
// returns the canonical field set for hierarchical text corpora.
package fields

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/kortemaki/opennmt-go/vocab"
)

// Postprocess converts the raw values of one field across a batch into
// a tensor, bypassing vocabulary numericalization. Used for fields that
// already hold indices, such as the copy-attention map.
type Postprocess func(values []any) (*tensor.Dense, error)

// Field describes how one named attribute is batched. Exactly one of
// the three shapes applies: scalar (Sequential false), a token sequence
// (Sequential), or a sentence-nested token sequence (Sequential and
// Nested).
type Field struct {
	Sequential bool
	Nested     bool
	// UseVocab selects vocabulary numericalization; fields carrying
	// ready-made indices leave it false and set Postprocess.
	UseVocab  bool
	InitToken string
	EosToken  string
	PadToken  string
	UnkToken  string
	// IncludeLengths makes Process report pre-padding lengths.
	IncludeLengths bool
	Postprocess    Postprocess
}

// ForData builds the field map for a corpus with the given numbers of
// source and target feature channels.
func ForData(nSrcFeats, nTgtFeats int) map[string]*Field {
	f := map[string]*Field{
		"src": {
			Sequential:     true,
			Nested:         true,
			UseVocab:       true,
			InitToken:      vocab.BosWord,
			EosToken:       vocab.EosWord,
			PadToken:       vocab.PadWord,
			UnkToken:       vocab.UnkWord,
			IncludeLengths: true,
		},
		"tgt": {
			Sequential: true,
			UseVocab:   true,
			InitToken:  vocab.BosWord,
			EosToken:   vocab.EosWord,
			PadToken:   vocab.PadWord,
			UnkToken:   vocab.UnkWord,
		},
		"src_map":   {Postprocess: MakeSrcMap},
		"alignment": {Postprocess: MakeAlignment},
		"indices":   {},
	}
	for j := 0; j < nSrcFeats; j++ {
		f[fmt.Sprintf("src_feat_%d", j)] = &Field{
			Sequential: true,
			Nested:     true,
			UseVocab:   true,
			PadToken:   vocab.PadWord,
			UnkToken:   vocab.UnkWord,
		}
	}
	for j := 0; j < nTgtFeats; j++ {
		f[fmt.Sprintf("tgt_feat_%d", j)] = &Field{
			Sequential: true,
			UseVocab:   true,
			InitToken:  vocab.BosWord,
			EosToken:   vocab.EosWord,
			PadToken:   vocab.PadWord,
			UnkToken:   vocab.UnkWord,
		}
	}
	return f
}

// Process batches the raw values of this field. The vocabulary is only
// consulted when UseVocab is set. Lengths are nil unless IncludeLengths
// is set (for nested fields they are sentence counts).
func (f *Field) Process(values []any, v *vocab.Vocab) (*tensor.Dense, []int, error) {
	if f.Postprocess != nil {
		t, err := f.Postprocess(values)
		return t, nil, err
	}
	if !f.Sequential {
		return scalarBatch(values)
	}
	if f.Nested {
		return f.nestedBatch(values, v)
	}
	return f.flatBatch(values, v)
}

func scalarBatch(values []any) (*tensor.Dense, []int, error) {
	data := make([]int64, len(values))
	for i, val := range values {
		n, ok := val.(int)
		if !ok {
			return nil, nil, fmt.Errorf("scalar field value %d is %T, want int", i, val)
		}
		data[i] = int64(n)
	}
	t := tensor.New(tensor.WithShape(len(values)), tensor.WithBacking(data))
	return t, nil, nil
}

// flatBatch pads token sequences to a common length and numericalizes
// them into a time-major [maxLen, batch] tensor.
func (f *Field) flatBatch(values []any, v *vocab.Vocab) (*tensor.Dense, []int, error) {
	seqs := make([][]string, len(values))
	maxLen := 0
	for i, val := range values {
		toks, ok := val.([]string)
		if !ok {
			return nil, nil, fmt.Errorf("sequential field value %d is %T, want []string", i, val)
		}
		seqs[i] = f.wrap(toks)
		if len(seqs[i]) > maxLen {
			maxLen = len(seqs[i])
		}
	}

	var lengths []int
	if f.IncludeLengths {
		lengths = make([]int, len(seqs))
	}
	data := make([]int64, maxLen*len(seqs))
	pad := int64(f.index(v, f.PadToken))
	for i := range data {
		data[i] = pad
	}
	for b, seq := range seqs {
		if lengths != nil {
			lengths[b] = len(seq)
		}
		for t, tok := range seq {
			data[t*len(seqs)+b] = int64(f.index(v, tok))
		}
	}
	out := tensor.New(tensor.WithShape(maxLen, len(seqs)), tensor.WithBacking(data))
	return out, lengths, nil
}

// nestedBatch pads documents to a common sentence count and sentences
// to a common length, producing a [batch, maxSents, maxLen] tensor.
func (f *Field) nestedBatch(values []any, v *vocab.Vocab) (*tensor.Dense, []int, error) {
	docs := make([][][]string, len(values))
	maxSents, maxLen := 0, 0
	for i, val := range values {
		doc, ok := val.([][]string)
		if !ok {
			return nil, nil, fmt.Errorf("nested field value %d is %T, want [][]string", i, val)
		}
		wrapped := make([][]string, len(doc))
		for j, sent := range doc {
			wrapped[j] = f.wrap(sent)
			if len(wrapped[j]) > maxLen {
				maxLen = len(wrapped[j])
			}
		}
		docs[i] = wrapped
		if len(wrapped) > maxSents {
			maxSents = len(wrapped)
		}
	}

	var lengths []int
	if f.IncludeLengths {
		lengths = make([]int, len(docs))
	}
	data := make([]int64, len(docs)*maxSents*maxLen)
	pad := int64(f.index(v, f.PadToken))
	for i := range data {
		data[i] = pad
	}
	for b, doc := range docs {
		if lengths != nil {
			lengths[b] = len(doc)
		}
		for s, sent := range doc {
			for t, tok := range sent {
				data[(b*maxSents+s)*maxLen+t] = int64(f.index(v, tok))
			}
		}
	}
	out := tensor.New(tensor.WithShape(len(docs), maxSents, maxLen), tensor.WithBacking(data))
	return out, lengths, nil
}

// wrap surrounds a sequence with the init/eos markers when configured.
func (f *Field) wrap(toks []string) []string {
	out := make([]string, 0, len(toks)+2)
	if f.InitToken != "" {
		out = append(out, f.InitToken)
	}
	out = append(out, toks...)
	if f.EosToken != "" {
		out = append(out, f.EosToken)
	}
	return out
}

func (f *Field) index(v *vocab.Vocab, tok string) int {
	if v == nil {
		return 0
	}
	return v.Index(tok)
}

// MakeSrcMap builds the copy-attention map: a one-hot float tensor of
// shape [maxSrcLen, batch, maxLocalVocab] from per-example token->local
// vocabulary indices. Nested maps are flattened across sentences.
func MakeSrcMap(values []any) (*tensor.Dense, error) {
	flat := make([][]int64, len(values))
	maxLen := 0
	var maxIdx int64
	for i, val := range values {
		switch m := val.(type) {
		case [][]int64:
			for _, sent := range m {
				flat[i] = append(flat[i], sent...)
			}
		case []int64:
			flat[i] = m
		default:
			return nil, fmt.Errorf("src_map value %d is %T, want [][]int64 or []int64", i, val)
		}
		if len(flat[i]) > maxLen {
			maxLen = len(flat[i])
		}
		for _, idx := range flat[i] {
			if idx > maxIdx {
				maxIdx = idx
			}
		}
	}

	vocabSize := int(maxIdx) + 1
	data := make([]float32, maxLen*len(values)*vocabSize)
	for b, seq := range flat {
		for t, idx := range seq {
			data[(t*len(values)+b)*vocabSize+int(idx)] = 1
		}
	}
	return tensor.New(tensor.WithShape(maxLen, len(values), vocabSize), tensor.WithBacking(data)), nil
}

// MakeAlignment stacks per-example alignment vectors into a
// [maxTgtLen, batch] tensor, zero-padded at the tail.
func MakeAlignment(values []any) (*tensor.Dense, error) {
	seqs := make([][]int64, len(values))
	maxLen := 0
	for i, val := range values {
		seq, ok := val.([]int64)
		if !ok {
			return nil, fmt.Errorf("alignment value %d is %T, want []int64", i, val)
		}
		seqs[i] = seq
		if len(seq) > maxLen {
			maxLen = len(seq)
		}
	}

	data := make([]int64, maxLen*len(values))
	for b, seq := range seqs {
		for t, idx := range seq {
			data[t*len(values)+b] = idx
		}
	}
	return tensor.New(tensor.WithShape(maxLen, len(values)), tensor.WithBacking(data)), nil
}
