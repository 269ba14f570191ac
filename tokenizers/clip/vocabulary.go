package clip

import (
	"bufio"
	"compress/gzip"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
)

const (
	// DefaultVocabularySize is the number of tokens of the vocabulary used by OpenAI's CLIP models:
	// 512 byte symbols, 48894 merges and the two markers.
	DefaultVocabularySize = 49408

	// StartOfTextID is the ID of the start-of-text marker in the default vocabulary.
	StartOfTextID = DefaultVocabularySize - 2

	// EndOfTextID is the ID of the end-of-text marker in the default vocabulary.
	EndOfTextID = DefaultVocabularySize - 1

	// PadID is the value used to pad rows built by Tokenizer.TokenizeBatch.
	PadID = 0

	// StartOfTextToken and EndOfTextToken are the token strings of the two markers.
	StartOfTextToken = "<start_of_text>"
	EndOfTextToken   = "<end_of_text>"

	numSpecialTokens = 2
)

// symbolPair is an ordered pair of adjacent symbol IDs.
type symbolPair struct {
	left, right int
}

// Vocabulary holds the token strings, their IDs and the merge rules of a byte-level BPE vocabulary.
//
// It is built once from a merges resource and is read-only afterwards, so it is safe for concurrent use.
//
// Token IDs are dense:
//   - 0..255: the byte symbols, in rune order (see EncodeByte).
//   - 256..511: the same symbols with the word-boundary suffix "</w>".
//   - 512..: one token per merge rule, in rank order.
//   - the last two IDs: start-of-text and end-of-text.
type Vocabulary struct {
	tokens []string
	bytes  [][]byte
	ids    map[string]int

	// merges maps a pair of symbols to the ID of the merged token. Merged IDs grow with the rank of the
	// rule, so the lowest ID is also the highest priority merge.
	merges map[symbolPair]int

	startOfText, endOfText int
}

// NewVocabulary parses a merges resource in the format used by OpenAI's CLIP ("bpe_simple_vocab_16e6.txt")
// and HuggingFace ("merges.txt"): a header line, followed by one merge rule per line, each rule being two
// whitespace separated symbols.
//
// maxSize is the total vocabulary size including the byte symbols and the two markers: only the first
// maxSize-514 merge rules are used, and the resource must have at least that many. If maxSize <= 0 all
// rules are used.
//
// Any problem with the resource content is reported as ErrMalformedVocabulary.
func NewVocabulary(r io.Reader, maxSize int) (*Vocabulary, error) {
	numMerges := -1
	if maxSize > 0 {
		numMerges = maxSize - 2*numByteSymbols - numSpecialTokens
		if numMerges < 0 {
			return nil, errors.Wrapf(ErrMalformedVocabulary, "vocabulary size %d can't hold the %d byte symbols and %d markers",
				maxSize, 2*numByteSymbols, numSpecialTokens)
		}
	}

	v := newByteVocabulary(maxSize)
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, errors.Wrap(err, "failed to read vocabulary header")
		}
		return nil, errors.Wrap(ErrMalformedVocabulary, "empty resource")
	}

	lineNum := 1
	for numMerges < 0 || len(v.merges) < numMerges {
		if !scanner.Scan() {
			break
		}
		lineNum++
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			return nil, errors.Wrapf(ErrMalformedVocabulary, "line %d: a merge rule needs 2 symbols, got %q",
				lineNum, scanner.Text())
		}
		if err := v.addMerge(fields[0], fields[1]); err != nil {
			return nil, errors.WithMessagef(err, "line %d", lineNum)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read vocabulary at line %d", lineNum+1)
	}
	if numMerges >= 0 && len(v.merges) < numMerges {
		return nil, errors.Wrapf(ErrMalformedVocabulary, "truncated resource: found %d merge rules, vocabulary size %d needs %d",
			len(v.merges), maxSize, numMerges)
	}

	v.startOfText = len(v.tokens)
	v.endOfText = v.startOfText + 1
	for _, marker := range []string{StartOfTextToken, EndOfTextToken} {
		if err := v.add(marker, nil); err != nil {
			return nil, err
		}
	}
	slog.Debug("CLIP vocabulary loaded", "tokens", len(v.tokens), "merges", len(v.merges))
	return v, nil
}

// OpenVocabulary reads the vocabulary from the file in filePath, see NewVocabulary. The file may be
// gzip-compressed, as the one distributed with OpenAI's CLIP.
func OpenVocabulary(filePath string, maxSize int) (*Vocabulary, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open vocabulary file %q", filePath)
	}
	defer func() { _ = f.Close() }()

	br := bufio.NewReader(f)
	var r io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decompress vocabulary file %q", filePath)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	v, err := NewVocabulary(r, maxSize)
	if err != nil {
		return nil, errors.WithMessagef(err, "vocabulary file %q", filePath)
	}
	return v, nil
}

// newByteVocabulary creates a vocabulary holding only the byte symbols and their word-final variants.
func newByteVocabulary(sizeHint int) *Vocabulary {
	if sizeHint <= 0 {
		sizeHint = 2 * numByteSymbols
	}
	v := &Vocabulary{
		tokens: make([]string, 0, sizeHint),
		bytes:  make([][]byte, 0, sizeHint),
		ids:    make(map[string]int, sizeHint),
		merges: make(map[symbolPair]int, sizeHint),
	}
	for _, suffix := range []string{"", wordBoundary} {
		for id := 0; id < numByteSymbols; id++ {
			b := symbolBytes[id]
			raw := append([]byte{b}, suffix...)
			// Byte symbols are distinct by construction.
			_ = v.add(string(byteRunes[b])+suffix, raw)
		}
	}
	return v
}

// add appends a new token, failing if the string is already in the vocabulary.
func (v *Vocabulary) add(token string, raw []byte) error {
	if prev, found := v.ids[token]; found {
		return errors.Wrapf(ErrMalformedVocabulary, "duplicate token %q (ids %d and %d)", token, prev, len(v.tokens))
	}
	v.ids[token] = len(v.tokens)
	v.tokens = append(v.tokens, token)
	v.bytes = append(v.bytes, raw)
	return nil
}

// addMerge registers the merge rule of the two given symbols, with the next rank.
func (v *Vocabulary) addMerge(left, right string) error {
	leftID, found := v.ids[left]
	if !found {
		return errors.Wrapf(ErrMalformedVocabulary, "merge rule uses unknown symbol %q", left)
	}
	rightID, found := v.ids[right]
	if !found {
		return errors.Wrapf(ErrMalformedVocabulary, "merge rule uses unknown symbol %q", right)
	}
	pair := symbolPair{leftID, rightID}
	if _, found := v.merges[pair]; found {
		return errors.Wrapf(ErrMalformedVocabulary, "duplicate merge rule %q %q", left, right)
	}
	raw := make([]byte, 0, len(v.bytes[leftID])+len(v.bytes[rightID]))
	raw = append(append(raw, v.bytes[leftID]...), v.bytes[rightID]...)
	id := len(v.tokens)
	if err := v.add(left+right, raw); err != nil {
		return err
	}
	v.merges[pair] = id
	return nil
}

// Size returns the number of tokens, markers included. Valid IDs are 0 to Size()-1.
func (v *Vocabulary) Size() int {
	return len(v.tokens)
}

// NumMerges returns the number of merge rules.
func (v *Vocabulary) NumMerges() int {
	return len(v.merges)
}

// StartOfText returns the ID of the start-of-text marker.
func (v *Vocabulary) StartOfText() int {
	return v.startOfText
}

// EndOfText returns the ID of the end-of-text marker.
func (v *Vocabulary) EndOfText() int {
	return v.endOfText
}

// IsSpecial reports whether id is one of the two markers.
func (v *Vocabulary) IsSpecial(id int) bool {
	return id == v.startOfText || id == v.endOfText
}

// ID returns the ID of the given token string, e.g. "a</w>" or "<end_of_text>".
func (v *Vocabulary) ID(token string) (int, error) {
	id, found := v.ids[token]
	if !found {
		return 0, errors.Wrapf(ErrUnknownToken, "%q", token)
	}
	return id, nil
}

// Token returns the token string for the given ID.
func (v *Vocabulary) Token(id int) (string, error) {
	if err := v.checkID(id); err != nil {
		return "", err
	}
	return v.tokens[id], nil
}

// Bytes returns the raw bytes a token stands for, including a trailing "</w>" for word-final tokens.
// Markers have no bytes. The returned slice must not be modified.
func (v *Vocabulary) Bytes(id int) ([]byte, error) {
	if err := v.checkID(id); err != nil {
		return nil, err
	}
	return v.bytes[id], nil
}

// MergeRank returns the rank of the merge rule joining the two given symbols: 0 is applied first.
// It returns false if there is no such rule.
func (v *Vocabulary) MergeRank(left, right string) (int, bool) {
	leftID, found := v.ids[left]
	if !found {
		return 0, false
	}
	rightID, found := v.ids[right]
	if !found {
		return 0, false
	}
	id, found := v.merges[symbolPair{leftID, rightID}]
	if !found {
		return 0, false
	}
	return id - 2*numByteSymbols, true
}

func (v *Vocabulary) checkID(id int) error {
	if id < 0 || id >= len(v.tokens) {
		return errors.Wrapf(ErrInvalidID, "%d is outside of [0, %d)", id, len(v.tokens))
	}
	return nil
}
