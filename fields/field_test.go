package fields

import (
	"reflect"
	"testing"

	"github.com/kortemaki/opennmt-go/vocab"
)

func testVocab() *vocab.Vocab {
	counts := map[string]int{"the": 3, "cat": 2, "sat": 1}
	return vocab.FromCounts(counts, []string{
		vocab.UnkWord, vocab.PadWord, vocab.BosWord, vocab.EosWord,
	})
}

func TestForData(t *testing.T) {
	f := ForData(2, 1)
	for _, name := range []string{
		"src", "tgt", "src_map", "alignment", "indices",
		"src_feat_0", "src_feat_1", "tgt_feat_0",
	} {
		if f[name] == nil {
			t.Errorf("ForData missing field %q", name)
		}
	}
	if f["src_feat_2"] != nil {
		t.Error("ForData created more src feature fields than asked")
	}
	if !f["src"].Nested || !f["src"].IncludeLengths {
		t.Error("src field must be nested with lengths")
	}
}

func TestFlatBatch(t *testing.T) {
	v := testVocab()
	f := ForData(0, 0)["tgt"]

	out, _, err := f.Process([]any{
		[]string{"the", "cat"},
		[]string{"sat"},
	}, v)
	if err != nil {
		t.Fatal(err)
	}

	// Wrapped lengths 4 and 3, padded to 4, time-major.
	if !equalShape(out.Shape(), 4, 2) {
		t.Fatalf("shape = %v, want [4 2]", out.Shape())
	}
	data := out.Data().([]int64)
	bos := int64(v.Index(vocab.BosWord))
	eos := int64(v.Index(vocab.EosWord))
	pad := int64(v.Index(vocab.PadWord))
	want := []int64{
		bos, bos,
		int64(v.Index("the")), int64(v.Index("sat")),
		int64(v.Index("cat")), eos,
		eos, pad,
	}
	if !reflect.DeepEqual(data, want) {
		t.Errorf("data = %v, want %v", data, want)
	}
}

func TestFlatBatch_UnknownToken(t *testing.T) {
	v := testVocab()
	f := ForData(0, 0)["tgt"]

	out, _, err := f.Process([]any{[]string{"missing"}}, v)
	if err != nil {
		t.Fatal(err)
	}
	data := out.Data().([]int64)
	// bos, unk, eos
	if data[1] != 0 {
		t.Errorf("unknown token mapped to %d, want 0", data[1])
	}
}

func TestNestedBatch(t *testing.T) {
	v := testVocab()
	f := ForData(0, 0)["src"]

	out, lengths, err := f.Process([]any{
		[][]string{{"the", "cat"}, {"sat"}},
		[][]string{{"the"}},
	}, v)
	if err != nil {
		t.Fatal(err)
	}
	if !equalShape(out.Shape(), 2, 2, 4) {
		t.Fatalf("shape = %v, want [2 2 4]", out.Shape())
	}
	if !reflect.DeepEqual(lengths, []int{2, 1}) {
		t.Errorf("lengths = %v, want [2 1]", lengths)
	}

	data := out.Data().([]int64)
	pad := int64(v.Index(vocab.PadWord))
	// Second document, second sentence slot is all padding.
	for i := 0; i < 4; i++ {
		if got := data[(1*2+1)*4+i]; got != pad {
			t.Errorf("pad slot %d = %d, want %d", i, got, pad)
		}
	}
}

func TestScalarBatch(t *testing.T) {
	f := ForData(0, 0)["indices"]
	out, _, err := f.Process([]any{0, 1, 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{0, 1, 2}
	if !reflect.DeepEqual(out.Data().([]int64), want) {
		t.Errorf("data = %v, want %v", out.Data(), want)
	}
}

func TestMakeSrcMap(t *testing.T) {
	out, err := MakeSrcMap([]any{
		[][]int64{{2, 3}, {4}},
		[][]int64{{2}},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Flattened lengths 3 and 1, local vocab size 5.
	if !equalShape(out.Shape(), 3, 2, 5) {
		t.Fatalf("shape = %v, want [3 2 5]", out.Shape())
	}
	data := out.Data().([]float32)
	at := func(pos, b, v int) float32 { return data[(pos*2+b)*5+v] }
	if at(0, 0, 2) != 1 || at(1, 0, 3) != 1 || at(2, 0, 4) != 1 {
		t.Error("one-hot positions for example 0 not set")
	}
	if at(0, 1, 2) != 1 {
		t.Error("one-hot position for example 1 not set")
	}
	if at(1, 1, 0) != 0 {
		t.Error("padding position unexpectedly set")
	}
}

func TestMakeAlignment(t *testing.T) {
	out, err := MakeAlignment([]any{
		[]int64{0, 2, 3, 0},
		[]int64{0, 4, 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !equalShape(out.Shape(), 4, 2) {
		t.Fatalf("shape = %v, want [4 2]", out.Shape())
	}
	data := out.Data().([]int64)
	want := []int64{
		0, 0,
		2, 4,
		3, 0,
		0, 0,
	}
	if !reflect.DeepEqual(data, want) {
		t.Errorf("data = %v, want %v", data, want)
	}
}

func equalShape(got []int, want ...int) bool {
	return reflect.DeepEqual(got, want)
}
