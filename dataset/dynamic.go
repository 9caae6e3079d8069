package dataset

import (
	"fmt"

	"github.com/kortemaki/opennmt-go/corpus"
	"github.com/kortemaki/opennmt-go/vocab"
)

// dynamicDict decorates a record stream with the copy-mechanism fields.
// For every example it builds a fresh vocabulary from the example's own
// source tokens, records it on the dataset, and adds:
//
//	src_map   per-token index into the local vocabulary, mirroring the
//	          sentence nesting of src;
//	alignment per-target-token local index, wrapped in 0 for the BOS
//	          and EOS markers, 0 for tokens the source never produced.
//
// The append to ds.SrcVocabs must follow emission order exactly: the
// collapser later indexes the list by each example's document index.
type dynamicDict struct {
	next corpus.Iterator
	ds   *Dataset
}

func (dd *dynamicDict) Next() (corpus.Record, error) {
	rec, err := dd.next.Next()
	if err != nil {
		return nil, err
	}
	src, ok := rec["src"].([][]string)
	if !ok {
		return nil, fmt.Errorf("dynamic dictionary needs a hierarchical src field, got %T", rec["src"])
	}

	counts := make(map[string]int)
	for _, sent := range src {
		for _, w := range sent {
			counts[w]++
		}
	}
	sv := vocab.FromCounts(counts, []string{vocab.UnkWord, vocab.PadWord})
	dd.ds.SrcVocabs = append(dd.ds.SrcVocabs, sv)

	srcMap := make([][]int64, len(src))
	for i, sent := range src {
		row := make([]int64, len(sent))
		for j, w := range sent {
			row[j] = int64(sv.Index(w))
		}
		srcMap[i] = row
	}
	rec["src_map"] = srcMap

	if tgt, ok := rec["tgt"].([]string); ok {
		align := make([]int64, 0, len(tgt)+2)
		align = append(align, 0)
		for _, w := range tgt {
			align = append(align, int64(sv.Index(w)))
		}
		align = append(align, 0)
		rec["alignment"] = align
	}
	return rec, nil
}
