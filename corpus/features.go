package corpus

import (
	"fmt"
	"strings"
)

// FeatDelim separates a token's surface word from its feature values,
// e.g. "went￨VBD￨O". The delimiter is a full-width bar so it never
// collides with ordinary corpus text.
const FeatDelim = "￨"

// ExtractFeatures splits a whitespace-tokenized line into the word
// sequence and one value sequence per feature channel. Every token on
// the line must carry the same number of feature values; a mismatch is
// an error because it silently corrupts tensor shapes downstream.
// Tokens with an empty word part are skipped.
func ExtractFeatures(tokens []string) (words []string, feats [][]string, nFeats int, err error) {
	split := make([][]string, 0, len(tokens))
	for _, tok := range tokens {
		parts := strings.Split(tok, FeatDelim)
		if parts[0] == "" {
			continue
		}
		split = append(split, parts)
	}
	if len(split) == 0 {
		return nil, nil, 0, nil
	}

	nFeats = len(split[0]) - 1
	if nFeats > 0 {
		feats = make([][]string, nFeats)
	}
	for i, parts := range split {
		if len(parts)-1 != nFeats {
			return nil, nil, 0, fmt.Errorf(
				"token %d %q has %d features, want %d", i, strings.Join(parts, FeatDelim), len(parts)-1, nFeats)
		}
		words = append(words, parts[0])
		for k := 0; k < nFeats; k++ {
			feats[k] = append(feats[k], parts[k+1])
		}
	}
	return words, feats, nFeats, nil
}
