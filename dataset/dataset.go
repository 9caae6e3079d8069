// Package dataset assembles corpus record streams into an in-memory
// dataset of examples for minibatch training, optionally building the
// per-example source vocabularies a copy-mechanism model scores
// against.
package dataset

import (
	"fmt"
	"io"
	"log"
	"sort"

	"github.com/kortemaki/opennmt-go/corpus"
	"github.com/kortemaki/opennmt-go/fields"
	"github.com/kortemaki/opennmt-go/vocab"
)

// Options controls assembly of one dataset (typically one shard).
type Options struct {
	// SrcSeqLength and TgtSeqLength bound example lengths for the
	// filter predicate. 0 disables the corresponding bound.
	SrcSeqLength int
	TgtSeqLength int
	// DynamicDict builds per-example source vocabularies along with the
	// src_map and alignment fields.
	DynamicDict bool
	// UseFilterPred applies the length filter while materializing.
	UseFilterPred bool
}

// Example is one materialized training example. Values are keyed by
// field name; fields absent from a record are nil.
type Example struct {
	values map[string]any
}

// Get returns the raw value of a field, or nil.
func (e *Example) Get(name string) any {
	return e.values[name]
}

// Src returns the sentence-nested source tokens.
func (e *Example) Src() [][]string {
	src, _ := e.values["src"].([][]string)
	return src
}

// Tgt returns the flat target tokens, or nil for source-only examples.
func (e *Example) Tgt() []string {
	tgt, _ := e.values["tgt"].([]string)
	return tgt
}

// Index returns the example's document index within its shard.
func (e *Example) Index() int {
	i, _ := e.values["indices"].(int)
	return i
}

// Values exposes the raw field map, for serialization. Callers must not
// mutate it.
func (e *Example) Values() map[string]any {
	return e.values
}

// Dataset holds the materialized examples of one shard, the field set
// inferred from them, and the per-example source vocabularies indexed
// by document index.
type Dataset struct {
	Examples []*Example
	// Keys are the inferred field names, in deterministic order.
	Keys   []string
	Fields map[string]*fields.Field
	// SrcVocabs[i] is the local vocabulary of the document with
	// indices == i, appended in emission order by the dynamic
	// dictionary builder.
	SrcVocabs []*vocab.Vocab

	opts Options
}

// New joins the source stream with the optional target stream, applies
// the dynamic dictionary builder when enabled, and materializes every
// example. The field set is inferred by peeking the first joined
// record; fields without a definition in flds stay nil. Examples
// failing the length filter are dropped, but their source vocabularies
// are kept so document indices keep lining up.
func New(opts Options, flds map[string]*fields.Field, src, tgt corpus.Iterator) (*Dataset, error) {
	if src == nil {
		return nil, fmt.Errorf("source iterator is required")
	}
	d := &Dataset{
		Fields: make(map[string]*fields.Field),
		opts:   opts,
	}

	var it corpus.Iterator = src
	if tgt != nil {
		it = &zipIterator{src: src, tgt: tgt}
	}
	if opts.DynamicDict {
		it = &dynamicDict{next: it, ds: d}
	}
	p := NewPeekable(it)

	first, err := p.Peek()
	if err == io.EOF {
		return d, nil
	}
	if err != nil {
		return nil, err
	}
	for k := range first {
		d.Keys = append(d.Keys, k)
		d.Fields[k] = flds[k]
	}
	sort.Strings(d.Keys)

	srcSize := 0
	total := 0
	for {
		rec, err := p.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		ex := &Example{values: make(map[string]any, len(d.Keys))}
		for _, k := range d.Keys {
			ex.values[k] = rec[k]
		}
		srcSize += len(ex.Src())
		total++
		if d.FilterPred(ex) {
			d.Examples = append(d.Examples, ex)
		}
	}
	if total > 0 {
		log.Printf("average src size %.2f over %d examples", float64(srcSize)/float64(total), total)
	}
	return d, nil
}

// FilterPred reports whether an example survives the length filter:
// 0 < len(src) <= SrcSeqLength and, when a target exists,
// 0 < len(tgt) <= TgtSeqLength. Disabled filtering or unset bounds keep
// everything.
func (d *Dataset) FilterPred(ex *Example) bool {
	if !d.opts.UseFilterPred || d.opts.SrcSeqLength <= 0 || d.opts.TgtSeqLength <= 0 {
		return true
	}
	n := len(ex.Src())
	if n <= 0 || n > d.opts.SrcSeqLength {
		return false
	}
	if tgt := ex.Tgt(); tgt != nil {
		if len(tgt) <= 0 || len(tgt) > d.opts.TgtSeqLength {
			return false
		}
	}
	return true
}

// SortKey is the batching key: source length first, target length
// second when present. Length-bucketed batching minimizes padding.
func (d *Dataset) SortKey(ex *Example) (int, int) {
	if tgt := ex.Tgt(); tgt != nil {
		return len(ex.Src()), len(tgt)
	}
	return len(ex.Src()), 0
}

// Sort orders the examples by SortKey, stably.
func (d *Dataset) Sort() {
	sort.SliceStable(d.Examples, func(i, j int) bool {
		si, ti := d.SortKey(d.Examples[i])
		sj, tj := d.SortKey(d.Examples[j])
		if si != sj {
			return si < sj
		}
		return ti < tj
	})
}

// Peekable buffers one record of an iterator so the head can be
// inspected without consuming it.
type Peekable struct {
	it       corpus.Iterator
	buf      corpus.Record
	buffered bool
}

// NewPeekable wraps an iterator.
func NewPeekable(it corpus.Iterator) *Peekable {
	return &Peekable{it: it}
}

// Peek returns the next record without consuming it.
func (p *Peekable) Peek() (corpus.Record, error) {
	if !p.buffered {
		rec, err := p.it.Next()
		if err != nil {
			return nil, err
		}
		p.buf = rec
		p.buffered = true
	}
	return p.buf, nil
}

// Next returns the next record, consuming any buffered one first.
func (p *Peekable) Next() (corpus.Record, error) {
	if p.buffered {
		rec := p.buf
		p.buf = nil
		p.buffered = false
		return rec, nil
	}
	return p.it.Next()
}

// zipIterator joins two parallel streams positionally. It stops at the
// shorter stream; associate-locked sharding is responsible for
// detecting count mismatches.
type zipIterator struct {
	src, tgt corpus.Iterator
}

func (z *zipIterator) Next() (corpus.Record, error) {
	s, err := z.src.Next()
	if err != nil {
		return nil, err
	}
	t, err := z.tgt.Next()
	if err != nil {
		return nil, err
	}
	for k, v := range t {
		// The source side owns the document index: it is the key into
		// the per-shard local vocabularies.
		if k == "indices" {
			continue
		}
		s[k] = v
	}
	return s, nil
}
