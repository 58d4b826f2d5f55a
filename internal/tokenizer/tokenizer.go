// Package tokenizer implements the byte-level BPE tokenizer used by CLIP text
// encoders. Encode always returns exactly MaxLen ids and never fails; asset
// problems surface once, when the tokenizer is constructed.
package tokenizer

import (
	"fmt"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	merrors "github.com/Aman-CERP/memesearch/internal/errors"
)

const (
	// MaxLen is the CLIP text context length.
	MaxLen = 77

	// PadID fills the slots after the end sentinel.
	PadID = 0

	StartToken = "<|startoftext|>"
	EndToken   = "<|endoftext|>"

	// Fallback sentinel ids for CLIP ViT-B/32 when the vocabulary lacks them.
	DefaultStartID = 49406
	DefaultEndID   = 49407

	// DefaultMemoSize bounds the per-span BPE memo.
	DefaultMemoSize = 4096
)

type pair struct{ a, b string }

// Tokenizer is safe for concurrent use.
type Tokenizer struct {
	vocab   map[string]int64
	inverse map[int64]string
	ranks   map[pair]int

	startID int64
	endID   int64

	memo *lru.Cache[string, []string]
}

// New builds a tokenizer from in-memory tables. merges are ordered by rank,
// each entry being the two symbols to fuse.
func New(vocab map[string]int64, merges [][2]string) (*Tokenizer, error) {
	if len(vocab) == 0 {
		return nil, merrors.AssetLoad("vocabulary", fmt.Errorf("vocabulary is empty"))
	}
	if len(merges) == 0 {
		return nil, merrors.AssetLoad("merges", fmt.Errorf("merge table is empty"))
	}

	t := &Tokenizer{
		vocab:   vocab,
		inverse: make(map[int64]string, len(vocab)),
		ranks:   make(map[pair]int, len(merges)),
		startID: DefaultStartID,
		endID:   DefaultEndID,
	}
	for tok, id := range vocab {
		t.inverse[id] = tok
	}
	for rank, m := range merges {
		p := pair{m[0], m[1]}
		if _, dup := t.ranks[p]; !dup {
			t.ranks[p] = rank
		}
	}
	if id, ok := vocab[StartToken]; ok {
		t.startID = id
	}
	if id, ok := vocab[EndToken]; ok {
		t.endID = id
	}

	memo, err := lru.New[string, []string](DefaultMemoSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create bpe memo: %w", err)
	}
	t.memo = memo
	return t, nil
}

// VocabSize returns the number of vocabulary entries.
func (t *Tokenizer) VocabSize() int { return len(t.vocab) }

// Encode converts text into exactly MaxLen ids: start sentinel, BPE ids,
// end sentinel, zero padding. Overlong input is truncated with the last slot
// forced to the end sentinel. Unknown pieces are dropped.
func (t *Tokenizer) Encode(text string) []int64 {
	ids := make([]int64, 0, MaxLen+1)
	ids = append(ids, t.startID)

	for _, span := range segment(text) {
		for _, sym := range t.bpe(span) {
			if id, ok := t.vocab[sym]; ok {
				ids = append(ids, id)
			}
		}
		// Past this point every further id would be cut anyway.
		if len(ids) > MaxLen {
			break
		}
	}
	ids = append(ids, t.endID)

	if len(ids) > MaxLen {
		ids = ids[:MaxLen]
		ids[MaxLen-1] = t.endID
	}

	out := make([]int64, MaxLen)
	copy(out, ids)
	return out
}

// EncodeWithMask returns the ids plus an attention mask that is 1 up to and
// including the first end sentinel and 0 afterwards.
func (t *Tokenizer) EncodeWithMask(text string) (ids, mask []int64) {
	ids = t.Encode(text)
	mask = make([]int64, len(ids))
	for i, id := range ids {
		mask[i] = 1
		if id == t.endID {
			break
		}
	}
	return ids, mask
}

// Decode turns ids back into text, skipping sentinels and padding.
func (t *Tokenizer) Decode(ids []int64) string {
	var buf []byte
	for _, id := range ids {
		if id == t.startID || id == t.endID || id == PadID {
			continue
		}
		if tok, ok := t.inverse[id]; ok {
			buf = append(buf, decodeBytes(tok)...)
		}
	}
	return strings.ToValidUTF8(string(buf), "�")
}

// bpe merges the byte symbols of one span. Each iteration fuses every
// occurrence of the lowest-ranked adjacent pair, so the symbol count strictly
// shrinks and the loop terminates.
func (t *Tokenizer) bpe(span string) []string {
	if cached, ok := t.memo.Get(span); ok {
		return cached
	}

	word := encodeBytes(span)
	for len(word) > 1 {
		best := pair{}
		bestRank := math.MaxInt
		for i := 0; i+1 < len(word); i++ {
			if r, ok := t.ranks[pair{word[i], word[i+1]}]; ok && r < bestRank {
				bestRank = r
				best = pair{word[i], word[i+1]}
			}
		}
		if bestRank == math.MaxInt {
			break
		}

		merged := make([]string, 0, len(word)-1)
		for i := 0; i < len(word); {
			if i+1 < len(word) && word[i] == best.a && word[i+1] == best.b {
				merged = append(merged, best.a+best.b)
				i += 2
				continue
			}
			merged = append(merged, word[i])
			i++
		}
		word = merged
	}

	t.memo.Add(span, word)
	return word
}
