package vocab

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Special tokens shared by every side of the pipeline. The unknown word
// must sit at index 0: lookups of out-of-vocabulary tokens return 0.
const (
	UnkWord = "<unk>"
	PadWord = "<blank>"
	BosWord = "<s>"
	EosWord = "</s>"
)

// Vocab is a bidirectional token<->index mapping built from a frequency
// multiset. Indices are assigned to the specials first, in the order
// given, then to the remaining tokens by descending frequency with
// alphabetical tie-break, so construction is deterministic.
type Vocab struct {
	Itos  []string
	Freqs map[string]int

	stoi map[string]int
}

// FromCounts builds a vocabulary from token counts and reserved specials.
// Specials are always included (frequency 0 unless counted) and claim the
// lowest indices.
func FromCounts(counts map[string]int, specials []string) *Vocab {
	v := &Vocab{
		Freqs: make(map[string]int, len(counts)),
		stoi:  make(map[string]int, len(counts)+len(specials)),
	}
	for w, c := range counts {
		v.Freqs[w] = c
	}
	for _, s := range specials {
		v.push(s)
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	// Alphabetical first, then a stable sort by frequency, so equal-count
	// tokens keep a reproducible order.
	sort.Strings(words)
	sort.SliceStable(words, func(i, j int) bool {
		return counts[words[i]] > counts[words[j]]
	})
	for _, w := range words {
		v.push(w)
	}
	return v
}

func (v *Vocab) push(w string) {
	if _, ok := v.stoi[w]; ok {
		return
	}
	v.stoi[w] = len(v.Itos)
	v.Itos = append(v.Itos, w)
}

// Len returns the number of entries, specials included.
func (v *Vocab) Len() int {
	return len(v.Itos)
}

// Index returns the index of a token, or 0 (the unknown slot) when the
// token is not present.
func (v *Vocab) Index(w string) int {
	if i, ok := v.stoi[w]; ok {
		return i
	}
	return 0
}

// Lookup returns the index of a token and whether it is present.
func (v *Vocab) Lookup(w string) (int, bool) {
	i, ok := v.stoi[w]
	return i, ok
}

// Word returns the token at index i.
func (v *Vocab) Word(i int) string {
	return v.Itos[i]
}

// Save writes the vocabulary as one "token frequency" pair per line, in
// index order, so a reload reproduces the same indices.
func (v *Vocab) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	writer := bufio.NewWriter(file)

	for _, w := range v.Itos {
		if _, err := fmt.Fprintf(writer, "%s %d\n", w, v.Freqs[w]); err != nil {
			return err
		}
	}
	return writer.Flush()
}

// Load reads a vocabulary saved by Save. Entries keep the order they
// appear in on disk.
func Load(path string) (*Vocab, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	v := &Vocab{
		Freqs: make(map[string]int),
		stoi:  make(map[string]int),
	}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		word := parts[0]
		freq := 0
		if len(parts) >= 2 {
			if n, err := strconv.Atoi(parts[1]); err == nil {
				freq = n
			}
		}
		v.Freqs[word] = freq
		v.push(word)
	}
	return v, scanner.Err()
}
