// Command preprocess reads paired source/target corpus directories,
// assembles one in-memory dataset per shard, and reports statistics.
// Assembled examples can be dumped as JSON lines and shared
// vocabularies saved for training.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kortemaki/opennmt-go/corpus"
	"github.com/kortemaki/opennmt-go/dataset"
	"github.com/kortemaki/opennmt-go/fields"
	"github.com/kortemaki/opennmt-go/vocab"
)

type config struct {
	SrcDir       string        `yaml:"src_dir"`
	TgtDir       string        `yaml:"tgt_dir"`
	ShardSize    int64         `yaml:"shard_size"`
	SrcSeqLength int           `yaml:"src_seq_length"`
	TgtSeqLength int           `yaml:"tgt_seq_length"`
	DynamicDict  bool          `yaml:"dynamic_dict"`
	Filter       bool          `yaml:"filter"`
	Src          corpus.Config `yaml:"src"`
	Tgt          corpus.Config `yaml:"tgt"`
	OutFile      string        `yaml:"out_file"`
	SrcVocabOut  string        `yaml:"src_vocab_out"`
	TgtVocabOut  string        `yaml:"tgt_vocab_out"`
}

func main() {
	cfgPath := flag.String("config", "", "Optional YAML config file; flags override its values")
	srcDir := flag.String("src", "", "Directory of source documents (one file per document)")
	tgtDir := flag.String("tgt", "", "Directory of target documents (optional)")
	shardSize := flag.Int64("shard-size", 0, "Shard byte budget, 0 for a single shard")
	srcSeqLength := flag.Int("src-seq-length", 0, "Maximum source length for filtering, 0 unlimited")
	tgtSeqLength := flag.Int("tgt-seq-length", 0, "Maximum target length for filtering, 0 unlimited")
	dynamicDict := flag.Bool("dynamic-dict", true, "Build per-example source vocabularies for the copy mechanism")
	filter := flag.Bool("filter", false, "Drop examples outside the configured length bounds")
	innerTruncate := flag.Int("inner-truncate", 0, "Maximum tokens per sentence, 0 unlimited")
	maxSentences := flag.Int("max-sentences", 0, "Maximum sentences read per source document, 0 unlimited")
	outerStart := flag.Int("outer-start", 0, "Document window start; negative keeps a suffix")
	outerEnd := flag.Int("outer-end", 0, "Document window end, 0 open")
	nfc := flag.Bool("nfc", false, "Apply Unicode NFC normalization to corpus lines")
	outFile := flag.String("out", "", "Write assembled examples as JSON lines to this file")
	srcVocabOut := flag.String("src-vocab", "", "Save the shared source vocabulary to this file")
	tgtVocabOut := flag.String("tgt-vocab", "", "Save the shared target vocabulary to this file")
	flag.Parse()

	var cfg config
	cfg.DynamicDict = true
	if *cfgPath != "" {
		raw, err := os.ReadFile(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %v\n", err)
			os.Exit(1)
		}
	}

	// Explicitly set flags win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "src":
			cfg.SrcDir = *srcDir
		case "tgt":
			cfg.TgtDir = *tgtDir
		case "shard-size":
			cfg.ShardSize = *shardSize
		case "src-seq-length":
			cfg.SrcSeqLength = *srcSeqLength
		case "tgt-seq-length":
			cfg.TgtSeqLength = *tgtSeqLength
		case "dynamic-dict":
			cfg.DynamicDict = *dynamicDict
		case "filter":
			cfg.Filter = *filter
		case "inner-truncate":
			cfg.Src.InnerTruncate = *innerTruncate
			cfg.Tgt.InnerTruncate = *innerTruncate
		case "max-sentences":
			cfg.Src.MaxSentences = *maxSentences
		case "outer-start":
			cfg.Src.Outer = true
			cfg.Src.OuterStart = *outerStart
		case "outer-end":
			cfg.Src.Outer = true
			cfg.Src.OuterEnd = *outerEnd
		case "nfc":
			cfg.Src.NormalizeNFC = *nfc
			cfg.Tgt.NormalizeNFC = *nfc
		case "out":
			cfg.OutFile = *outFile
		case "src-vocab":
			cfg.SrcVocabOut = *srcVocabOut
		case "tgt-vocab":
			cfg.TgtVocabOut = *tgtVocabOut
		}
	})

	if cfg.SrcDir == "" {
		fmt.Fprintln(os.Stderr, "Please provide a source directory using -src or the config file")
		os.Exit(1)
	}

	log.SetPrefix("[PREP] ")
	if err := run(cfg); err != nil {
		log.Fatalf("preprocess failed: %v", err)
	}
}

func run(cfg config) error {
	src, err := corpus.NewShardedReader(cfg.SrcDir, corpus.SideSrc, cfg.Src, cfg.ShardSize, nil)
	if err != nil {
		return err
	}
	var tgt *corpus.ShardedReader
	if cfg.TgtDir != "" {
		tgt, err = corpus.NewShardedReader(cfg.TgtDir, corpus.SideTgt, cfg.Tgt, 0, src)
		if err != nil {
			return err
		}
	}

	nSrcFeats, err := src.NumFeats()
	if err != nil {
		return fmt.Errorf("peeking source features: %w", err)
	}
	nTgtFeats := 0
	if tgt != nil {
		if nTgtFeats, err = tgt.NumFeats(); err != nil {
			return fmt.Errorf("peeking target features: %w", err)
		}
	}
	log.Printf("source features: %d, target features: %d", nSrcFeats, nTgtFeats)
	flds := fields.ForData(nSrcFeats, nTgtFeats)

	var out *bufio.Writer
	if cfg.OutFile != "" {
		f, err := os.Create(cfg.OutFile)
		if err != nil {
			return err
		}
		defer f.Close()
		out = bufio.NewWriter(f)
		defer out.Flush()
	}

	opts := dataset.Options{
		SrcSeqLength:  cfg.SrcSeqLength,
		TgtSeqLength:  cfg.TgtSeqLength,
		DynamicDict:   cfg.DynamicDict,
		UseFilterPred: cfg.Filter,
	}
	srcCounts := make(map[string]int)
	tgtCounts := make(map[string]int)

	shard := 0
	total := 0
	for !src.Eof() {
		var tgtIter corpus.Iterator
		if tgt != nil {
			tgtIter = tgt
		}
		d, err := dataset.New(opts, flds, src, tgtIter)
		if err != nil {
			return fmt.Errorf("shard %d: %w", shard, err)
		}
		if len(d.Examples) == 0 && src.Eof() {
			break
		}
		d.Sort()
		countTokens(d, srcCounts, tgtCounts)
		if out != nil {
			if err := dumpExamples(out, d); err != nil {
				return err
			}
		}
		log.Printf("shard %d: %d examples, %d local vocabularies", shard, len(d.Examples), len(d.SrcVocabs))
		total += len(d.Examples)
		shard++
	}
	if tgt != nil {
		// The target side must end exactly with the source side.
		if _, err := tgt.Next(); err != io.EOF {
			if err != nil {
				return err
			}
			return corpus.ErrCountMismatch
		}
	}
	log.Printf("done: %d examples in %d shards", total, shard)

	if cfg.SrcVocabOut != "" {
		v := vocab.FromCounts(srcCounts, []string{vocab.UnkWord, vocab.PadWord, vocab.BosWord, vocab.EosWord})
		if err := v.Save(cfg.SrcVocabOut); err != nil {
			return err
		}
		log.Printf("saved source vocabulary (%d entries) to %s", v.Len(), cfg.SrcVocabOut)
	}
	if cfg.TgtVocabOut != "" {
		v := vocab.FromCounts(tgtCounts, []string{vocab.UnkWord, vocab.PadWord, vocab.BosWord, vocab.EosWord})
		if err := v.Save(cfg.TgtVocabOut); err != nil {
			return err
		}
		log.Printf("saved target vocabulary (%d entries) to %s", v.Len(), cfg.TgtVocabOut)
	}
	return nil
}

func countTokens(d *dataset.Dataset, srcCounts, tgtCounts map[string]int) {
	for _, ex := range d.Examples {
		for _, sent := range ex.Src() {
			for _, w := range sent {
				srcCounts[w]++
			}
		}
		for _, w := range ex.Tgt() {
			tgtCounts[w]++
		}
	}
}

func dumpExamples(out *bufio.Writer, d *dataset.Dataset) error {
	enc := json.NewEncoder(out)
	for _, ex := range d.Examples {
		if err := enc.Encode(ex.Values()); err != nil {
			return err
		}
	}
	return nil
}
