package corpus

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Side selects which half of a parallel corpus a reader produces.
type Side string

const (
	SideSrc Side = "src"
	SideTgt Side = "tgt"
)

// Config carries the truncation and normalization policy for one side.
// The zero value reads everything untouched.
type Config struct {
	// InnerTruncate caps the number of tokens kept per sentence (per
	// line for src, for the whole flattened stream for tgt). 0 is
	// unlimited.
	InnerTruncate int `yaml:"inner_truncate"`
	// MaxSentences caps the number of lines read from a src document.
	// 0 is unlimited. Target documents are always read whole.
	MaxSentences int `yaml:"max_sentences"`
	// Outer enables the document-level truncation window applied to the
	// sentence list after the whole document is read.
	Outer bool `yaml:"outer"`
	// OuterStart is the window start. Negative keeps a suffix of that
	// many sentences, positive drops that many from the front. 0 keeps
	// the front.
	OuterStart int `yaml:"outer_start"`
	// OuterEnd caps the window after OuterStart is applied. 0 is open.
	OuterEnd int `yaml:"outer_end"`
	// NormalizeNFC applies Unicode NFC normalization to every line
	// before tokenization.
	NormalizeNFC bool `yaml:"normalize_nfc"`
}

// Record is one document's worth of example fields, keyed by field name:
// the side key ("src" or "tgt"), "<side>_feat_<k>" per feature channel,
// and "indices" for the document's position within its shard.
type Record map[string]any

// Iterator is a pull-based stream of document records. Next returns
// io.EOF when the stream (or the current shard) is exhausted.
type Iterator interface {
	Next() (Record, error)
}

// Reader walks every file of a corpus directory in lexicographic order
// and emits one record per file. src files are hierarchical (one
// sentence per line); tgt files are flattened into a single token
// stream.
type Reader struct {
	side  Side
	cfg   Config
	files []string
	pos   int

	// nFeats is the corpus-wide feature count, fixed by the first line
	// seen. -1 until then.
	nFeats int
}

// NewReader lists dir and prepares a reader over its files. A missing
// or unreadable directory is an error; callers treat it as fatal.
func NewReader(dir string, side Side, cfg Config) (*Reader, error) {
	files, err := listDir(dir)
	if err != nil {
		return nil, err
	}
	return &Reader{side: side, cfg: cfg, files: files, nFeats: -1}, nil
}

// Next reads the next document. Returns io.EOF after the last file.
func (r *Reader) Next() (Record, error) {
	if r.pos >= len(r.files) {
		return nil, io.EOF
	}
	path := r.files[r.pos]
	index := r.pos
	r.pos++
	rec, err := readDocument(path, r.side, r.cfg, index, &r.nFeats)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// NumFeats peeks the first line of the first file and reports the
// corpus feature count without consuming anything.
func (r *Reader) NumFeats() (int, error) {
	if r.pos >= len(r.files) {
		return 0, fmt.Errorf("corpus is empty")
	}
	return peekNumFeats(r.files[r.pos], r.cfg)
}

// NumFeatures peeks the feature count of a corpus directory. All lines
// of a corpus must agree, so looking at the first is enough.
func NumFeatures(dir string, cfg Config) (int, error) {
	files, err := listDir(dir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("corpus directory %s is empty", dir)
	}
	return peekNumFeats(files[0], cfg)
}

func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	// Directory listing order is platform-dependent; document indices
	// must be reproducible.
	sort.Strings(files)
	return files, nil
}

func peekNumFeats(path string, cfg Config) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return 0, scanner.Err()
	}
	line := prepareLine(scanner.Text(), cfg)
	tokens := strings.Fields(line)
	if cfg.InnerTruncate > 0 && len(tokens) > cfg.InnerTruncate {
		tokens = tokens[:cfg.InnerTruncate]
	}
	_, _, nFeats, err := ExtractFeatures(tokens)
	return nFeats, err
}

func prepareLine(line string, cfg Config) string {
	line = strings.TrimSpace(line)
	if cfg.NormalizeNFC {
		line = norm.NFC.String(line)
	}
	return line
}

// readDocument turns one corpus file into a record. want points at the
// corpus-wide feature count: -1 fixes it from the first line, any later
// disagreement is a hard error.
func readDocument(path string, side Side, cfg Config, index int, want *int) (Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus file %s: %w", path, err)
	}
	defer file.Close()

	if side == SideTgt {
		return readFlat(file, path, side, cfg, index, want)
	}
	return readHierarchical(file, path, side, cfg, index, want)
}

// readFlat reads the whole file as one token stream: line breaks count
// as plain whitespace.
func readFlat(file *os.File, path string, side Side, cfg Config, index int, want *int) (Record, error) {
	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus file %s: %w", path, err)
	}
	text := prepareLine(string(content), cfg)
	tokens := strings.Fields(text)
	if cfg.InnerTruncate > 0 && len(tokens) > cfg.InnerTruncate {
		tokens = tokens[:cfg.InnerTruncate]
	}

	words, feats, nFeats, err := ExtractFeatures(tokens)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := checkFeats(want, nFeats, path, 0); err != nil {
		return nil, err
	}

	rec := Record{string(side): words, "indices": index}
	for k, f := range feats {
		rec[featKey(side, k)] = f
	}
	return rec, nil
}

// readHierarchical reads one sentence per line, then applies the outer
// truncation window to the sentence list.
func readHierarchical(file *os.File, path string, side Side, cfg Config, index int, want *int) (Record, error) {
	var sents [][]string
	var featChans [][][]string

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 1024*1024)
	scanner.Buffer(buf, 1024*1024)

	for lineNo := 0; scanner.Scan(); lineNo++ {
		if cfg.MaxSentences > 0 && lineNo >= cfg.MaxSentences {
			break
		}
		line := prepareLine(scanner.Text(), cfg)
		tokens := strings.Fields(line)
		if cfg.InnerTruncate > 0 && len(tokens) > cfg.InnerTruncate {
			tokens = tokens[:cfg.InnerTruncate]
		}

		words, feats, nFeats, err := ExtractFeatures(tokens)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, lineNo+1, err)
		}
		if len(words) > 0 {
			if err := checkFeats(want, nFeats, path, lineNo+1); err != nil {
				return nil, err
			}
		}

		sents = append(sents, words)
		if featChans == nil && len(feats) > 0 {
			featChans = make([][][]string, len(feats))
			// Sentences read before the channels were known (empty
			// lines) get empty value lists to keep alignment.
			for k := range featChans {
				featChans[k] = make([][]string, len(sents)-1)
			}
		}
		for k := range featChans {
			var vals []string
			if k < len(feats) {
				vals = feats[k]
			}
			featChans[k] = append(featChans[k], vals)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read corpus file %s: %w", path, err)
	}

	if cfg.Outer {
		lo, hi := outerWindow(len(sents), cfg)
		sents = sents[lo:hi]
		for k := range featChans {
			featChans[k] = featChans[k][lo:hi]
		}
	}

	rec := Record{string(side): sents, "indices": index}
	for k, f := range featChans {
		rec[featKey(side, k)] = f
	}
	return rec, nil
}

// outerWindow resolves the document-level window to slice bounds.
// OuterStart slices first (negative keeps a suffix), then OuterEnd caps
// the result.
func outerWindow(n int, cfg Config) (int, int) {
	lo := 0
	if cfg.OuterStart != 0 {
		lo = cfg.OuterStart
		if lo < 0 {
			lo += n
		}
		if lo < 0 {
			lo = 0
		}
		if lo > n {
			lo = n
		}
	}
	hi := n
	if cfg.OuterEnd != 0 {
		end := cfg.OuterEnd
		if end < 0 {
			end += n - lo
		}
		if end < 0 {
			end = 0
		}
		if lo+end < hi {
			hi = lo + end
		}
	}
	return lo, hi
}

func checkFeats(want *int, got int, path string, lineNo int) error {
	if *want < 0 {
		*want = got
		return nil
	}
	if got != *want {
		return fmt.Errorf("%s line %d: feature count mismatch: got %d, want %d", path, lineNo, got, *want)
	}
	return nil
}

func featKey(side Side, k int) string {
	return fmt.Sprintf("%s_feat_%d", side, k)
}
