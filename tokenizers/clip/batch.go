package clip

import (
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// minParallelBatch is the smallest batch encoded concurrently.
const minParallelBatch = 4

// TokenizeBatch encodes each text into a row of exactly contextLength IDs, ready to be fed to a CLIP
// text encoder.
//
// Each row holds the start-of-text marker, the IDs of the text and the end-of-text marker, followed by
// PadID up to contextLength. If the text is too long, its IDs are truncated so that the end-of-text marker
// takes the last position of the row.
//
// It returns an error wrapping ErrInvalidContextLength if contextLength is not in [2, MaxContextLength].
func (t *Tokenizer) TokenizeBatch(contextLength int, texts ...string) ([][]int, error) {
	if contextLength < 2 {
		return nil, errors.Wrapf(ErrInvalidContextLength, "context length must be at least 2 (room for start and end markers), got %d",
			contextLength)
	}
	if contextLength > MaxContextLength {
		return nil, errors.Wrapf(ErrInvalidContextLength, "context length must be at most %d, got %d",
			MaxContextLength, contextLength)
	}
	rows := make([][]int, len(texts))
	if t.parallelism <= 1 || len(texts) < minParallelBatch {
		for i, text := range texts {
			rows[i] = t.tokenizeRow(contextLength, text)
		}
		return rows, nil
	}

	var g errgroup.Group
	g.SetLimit(t.parallelism)
	for i, text := range texts {
		g.Go(func() error {
			rows[i] = t.tokenizeRow(contextLength, text)
			return nil
		})
	}
	_ = g.Wait() // Rows never fail.
	return rows, nil
}

// Tokenize is TokenizeBatch with the Tokenizer's context length, see WithContextLength.
func (t *Tokenizer) Tokenize(texts ...string) ([][]int, error) {
	return t.TokenizeBatch(t.contextLength, texts...)
}

// tokenizeRow builds one row of a batch. contextLength must be in [2, MaxContextLength].
func (t *Tokenizer) tokenizeRow(contextLength int, text string) []int {
	// Clusters yield at most one ID per byte, so the row rarely grows past this.
	row := make([]int, 1, min(contextLength, len(text)+2))
	row[0] = t.vocab.StartOfText()
	row = t.encode(text, row)
	if len(row) > contextLength-1 {
		row = row[:contextLength-1]
	}
	row = append(row, t.vocab.EndOfText())
	for len(row) < contextLength {
		row = append(row, PadID)
	}
	return row
}
