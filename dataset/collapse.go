package dataset

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/kortemaki/opennmt-go/vocab"
)

// collapseEps replaces a drained expanded-region score. Not exactly
// zero so a later log of the distribution stays finite.
const collapseEps = 1e-10

// CollapseCopyScores merges copy-mechanism probability mass back onto
// the shared target vocabulary. scores is a [steps, batch, width]
// float32 tensor over the expanded vocabulary: the shared target
// vocabulary followed by the batch's per-example local vocabularies.
// indices holds each batch element's document index, used to look up
// its local vocabulary in srcVocabs.
//
// For every local-vocabulary token (the reserved slot 0 excluded) that
// is also a known target word, the expanded column's mass is added to
// the shared column and the expanded column is set to collapseEps, so
// the model cannot hedge across two representations of one word.
// Local tokens unknown to the target vocabulary keep their mass in the
// expanded region. The transform mutates scores in place.
func CollapseCopyScores(scores *tensor.Dense, indices []int, tgtVocab *vocab.Vocab, srcVocabs []*vocab.Vocab) error {
	shape := scores.Shape()
	if len(shape) != 3 {
		return fmt.Errorf("scores must be [steps, batch, vocab], got shape %v", shape)
	}
	steps, batch, width := shape[0], shape[1], shape[2]
	if batch != len(indices) {
		return fmt.Errorf("batch size %d does not match %d example indices", batch, len(indices))
	}
	data, ok := scores.Data().([]float32)
	if !ok {
		return fmt.Errorf("scores must hold float32, got %T", scores.Data())
	}
	st := scores.Strides()

	offset := tgtVocab.Len()
	for b, docIdx := range indices {
		if docIdx < 0 || docIdx >= len(srcVocabs) {
			return fmt.Errorf("no source vocabulary for document index %d", docIdx)
		}
		sv := srcVocabs[docIdx]
		for i := 1; i < sv.Len(); i++ {
			ti := tgtVocab.Index(sv.Word(i))
			if ti == 0 {
				continue
			}
			col := offset + i
			if col >= width {
				return fmt.Errorf("expanded column %d out of range (vocab width %d)", col, width)
			}
			for t := 0; t < steps; t++ {
				base := t*st[0] + b*st[1]
				data[base+ti*st[2]] += data[base+col*st[2]]
				data[base+col*st[2]] = collapseEps
			}
		}
	}
	return nil
}
