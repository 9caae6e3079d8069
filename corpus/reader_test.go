package corpus

import (
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// writeCorpus lays out a corpus directory with the given file contents,
// keyed by file name.
func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func readAll(t *testing.T, it Iterator) []Record {
	t.Helper()
	var recs []Record
	for {
		rec, err := it.Next()
		if err == io.EOF {
			return recs
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		recs = append(recs, rec)
	}
}

func TestReader_Src(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"a.txt": "the cat\nsat down\n",
		"b.txt": "a dog ran\n",
	})

	r, err := NewReader(dir, SideSrc, Config{})
	if err != nil {
		t.Fatal(err)
	}
	recs := readAll(t, r)

	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	wantA := [][]string{{"the", "cat"}, {"sat", "down"}}
	if got := recs[0]["src"]; !reflect.DeepEqual(got, wantA) {
		t.Errorf("record 0 src = %v, want %v", got, wantA)
	}
	wantB := [][]string{{"a", "dog", "ran"}}
	if got := recs[1]["src"]; !reflect.DeepEqual(got, wantB) {
		t.Errorf("record 1 src = %v, want %v", got, wantB)
	}
	for i, rec := range recs {
		if got := rec["indices"]; got != i {
			t.Errorf("record %d indices = %v, want %d", i, got, i)
		}
	}
}

func TestReader_TgtFlattensLines(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"a.txt": "le chat\ns'est assis\n",
	})

	r, err := NewReader(dir, SideTgt, Config{})
	if err != nil {
		t.Fatal(err)
	}
	recs := readAll(t, r)

	want := []string{"le", "chat", "s'est", "assis"}
	if got := recs[0]["tgt"]; !reflect.DeepEqual(got, want) {
		t.Errorf("tgt = %v, want %v", got, want)
	}
}

func TestReader_Features(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"a.txt": "the￨DT cat￨NN\nsat￨VBD down￨RB\n",
	})

	r, err := NewReader(dir, SideSrc, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if n, err := r.NumFeats(); err != nil || n != 1 {
		t.Fatalf("NumFeats() = (%d, %v), want (1, nil)", n, err)
	}
	recs := readAll(t, r)

	want := [][]string{{"DT", "NN"}, {"VBD", "RB"}}
	if got := recs[0]["src_feat_0"]; !reflect.DeepEqual(got, want) {
		t.Errorf("src_feat_0 = %v, want %v", got, want)
	}
}

func TestReader_FeatureCountMismatchAcrossLines(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"a.txt": "the￨DT cat￨NN\nsat down\n",
	})

	r, err := NewReader(dir, SideSrc, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Next(); err == nil {
		t.Fatal("expected corpus-wide feature count mismatch, got nil")
	}
}

func TestReader_InnerTruncate(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"a.txt": "one two three four five\nsix seven\n",
	})

	r, err := NewReader(dir, SideSrc, Config{InnerTruncate: 3})
	if err != nil {
		t.Fatal(err)
	}
	recs := readAll(t, r)

	sents := recs[0]["src"].([][]string)
	for i, s := range sents {
		if len(s) > 3 {
			t.Errorf("sentence %d has %d tokens, want <= 3", i, len(s))
		}
	}
	want := [][]string{{"one", "two", "three"}, {"six", "seven"}}
	if !reflect.DeepEqual(sents, want) {
		t.Errorf("src = %v, want %v", sents, want)
	}
}

func TestReader_OuterSuffixWindow(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"a.txt": "s0\ns1\ns2\ns3\ns4\ns5\ns6\n",
		"b.txt": "s0\ns1\n",
	})

	// Keep the last 5 sentences of each document.
	r, err := NewReader(dir, SideSrc, Config{Outer: true, OuterStart: -5})
	if err != nil {
		t.Fatal(err)
	}
	recs := readAll(t, r)

	want0 := [][]string{{"s2"}, {"s3"}, {"s4"}, {"s5"}, {"s6"}}
	if got := recs[0]["src"]; !reflect.DeepEqual(got, want0) {
		t.Errorf("doc 0 src = %v, want %v", got, want0)
	}
	// Shorter than the window: kept whole.
	want1 := [][]string{{"s0"}, {"s1"}}
	if got := recs[1]["src"]; !reflect.DeepEqual(got, want1) {
		t.Errorf("doc 1 src = %v, want %v", got, want1)
	}
}

func TestReader_OuterEnd(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"a.txt": "s0\ns1\ns2\ns3\n",
	})

	r, err := NewReader(dir, SideSrc, Config{Outer: true, OuterStart: 1, OuterEnd: 2})
	if err != nil {
		t.Fatal(err)
	}
	recs := readAll(t, r)

	want := [][]string{{"s1"}, {"s2"}}
	if got := recs[0]["src"]; !reflect.DeepEqual(got, want) {
		t.Errorf("src = %v, want %v", got, want)
	}
}

func TestReader_MaxSentences(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"a.txt": "s0\ns1\ns2\ns3\n",
	})

	r, err := NewReader(dir, SideSrc, Config{MaxSentences: 2})
	if err != nil {
		t.Fatal(err)
	}
	recs := readAll(t, r)

	if got := len(recs[0]["src"].([][]string)); got != 2 {
		t.Errorf("sentence count = %d, want 2", got)
	}
}

func TestReader_MissingDir(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "nope"), SideSrc, Config{}); err == nil {
		t.Fatal("expected error for missing directory, got nil")
	}
}

func TestReader_DeterministicOrder(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"b.txt": "second\n",
		"a.txt": "first\n",
		"c.txt": "third\n",
	})

	r, err := NewReader(dir, SideSrc, Config{})
	if err != nil {
		t.Fatal(err)
	}
	recs := readAll(t, r)

	var first []string
	for _, rec := range recs {
		sents := rec["src"].([][]string)
		first = append(first, sents[0][0])
	}
	want := []string{"first", "second", "third"}
	if !reflect.DeepEqual(first, want) {
		t.Errorf("document order = %v, want %v", first, want)
	}
}

func TestOuterWindow(t *testing.T) {
	tests := []struct {
		n      int
		cfg    Config
		lo, hi int
	}{
		{10, Config{OuterStart: -5}, 5, 10},
		{3, Config{OuterStart: -5}, 0, 3},
		{10, Config{OuterStart: 2}, 2, 10},
		{10, Config{OuterStart: 2, OuterEnd: 3}, 2, 5},
		{10, Config{OuterEnd: 4}, 0, 4},
		{2, Config{OuterEnd: 4}, 0, 2},
	}
	for _, tt := range tests {
		lo, hi := outerWindow(tt.n, tt.cfg)
		if lo != tt.lo || hi != tt.hi {
			t.Errorf("outerWindow(%d, %+v) = (%d, %d), want (%d, %d)", tt.n, tt.cfg, lo, hi, tt.lo, tt.hi)
		}
	}
}
