package corpus

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrCountMismatch reports that two associate-locked corpora disagree on
// their number of documents. Continuing would silently misalign
// source/target pairs, so callers must treat it as fatal.
var ErrCountMismatch = errors.New("two corpora must have the same number of examples")

// ShardedReader iterates a corpus directory in memory-bounded shards.
// Next returns io.EOF at each shard boundary; Eof reports whether the
// whole corpus is consumed, so callers loop shards with:
//
//	for !r.Eof() {
//		for {
//			rec, err := r.Next()
//			if err == io.EOF {
//				break
//			}
//			...
//		}
//	}
//
// With a nonzero shardSize the reader accumulates file sizes and closes
// a shard before consuming the file that would push the running total
// to or past the budget (check-then-add; the file is taken up by the
// next shard). A file arriving on an empty shard is always consumed, so
// a single file larger than the budget forms a shard of its own.
//
// With an associate, byte budgeting is replaced by lock-stepping: the
// reader consumes files only until its file index catches up with the
// associate's, guaranteeing shard-for-shard alignment of two parallel
// corpora.
type ShardedReader struct {
	side      Side
	cfg       Config
	files     []string
	pos       int
	shardSize int64
	assoc     *ShardedReader

	curSize    int64
	fileIndex  int // global index of the last consumed file
	shardIndex int // per-shard document index, resets at boundaries
	shardNum   int // shards started so far; locked readers sync to the associate's
	eof        bool
	nFeats     int
}

// NewShardedReader lists dir and prepares a sharded reader. shardSize 0
// never splits. assoc, when non-nil, lock-steps this reader's shard
// boundaries to the associate's.
func NewShardedReader(dir string, side Side, cfg Config, shardSize int64, assoc *ShardedReader) (*ShardedReader, error) {
	files, err := listDir(dir)
	if err != nil {
		return nil, err
	}
	return &ShardedReader{
		side:       side,
		cfg:        cfg,
		files:      files,
		shardSize:  shardSize,
		assoc:      assoc,
		fileIndex:  -1,
		shardIndex: -1,
		nFeats:     -1,
	}, nil
}

// Next returns the next document of the current shard, or io.EOF at the
// shard boundary. After io.EOF, check Eof to tell a boundary from the
// end of the corpus.
func (r *ShardedReader) Next() (Record, error) {
	if r.eof {
		return nil, io.EOF
	}
	if r.assoc != nil {
		return r.nextLocked()
	}
	return r.nextBudgeted()
}

func (r *ShardedReader) nextBudgeted() (Record, error) {
	if r.pos >= len(r.files) {
		r.eof = true
		return nil, io.EOF
	}
	path := r.files[r.pos]
	if r.shardSize != 0 {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat corpus file %s: %w", path, err)
		}
		if r.curSize > 0 && r.curSize+info.Size() >= r.shardSize {
			// Budget reached: the triggering file opens the next shard.
			r.curSize = 0
			r.shardIndex = -1
			r.shardNum++
			return nil, io.EOF
		}
		r.curSize += info.Size()
	}
	return r.consume(path)
}

func (r *ShardedReader) nextLocked() (Record, error) {
	if r.fileIndex < r.assoc.fileIndex {
		if r.pos >= len(r.files) {
			return nil, ErrCountMismatch
		}
		// A positional join stops pulling this reader at the associate's
		// boundary, so the boundary may only be visible here: restart the
		// document index when the associate has moved on to a new shard.
		if r.shardNum != r.assoc.shardNum {
			r.shardNum = r.assoc.shardNum
			r.shardIndex = -1
		}
		return r.consume(r.files[r.pos])
	}
	// Caught up with the associate: its shard is over.
	if r.assoc.Eof() {
		if r.pos < len(r.files) {
			return nil, ErrCountMismatch
		}
		r.eof = true
	}
	r.shardIndex = -1
	r.shardNum = r.assoc.shardNum
	return nil, io.EOF
}

func (r *ShardedReader) consume(path string) (Record, error) {
	r.pos++
	r.fileIndex++
	r.shardIndex++
	rec, err := readDocument(path, r.side, r.cfg, r.shardIndex, &r.nFeats)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Eof reports whether the whole corpus has been consumed. It is
// observable out-of-band because associate-locking queries it between
// shards.
func (r *ShardedReader) Eof() bool {
	return r.eof
}

// NumFeats peeks the first line of the next unconsumed file and reports
// the corpus feature count without advancing the reader.
func (r *ShardedReader) NumFeats() (int, error) {
	if r.pos >= len(r.files) {
		return 0, fmt.Errorf("corpus is empty")
	}
	return peekNumFeats(r.files[r.pos], r.cfg)
}
