// Package clip implements the byte-level BPE tokenizer used by CLIP text encoders.
//
// A Tokenizer lowercases the text, splits it into clusters (words, single digits, runs of punctuation
// and English contractions), and encodes each cluster with the merge rules of the vocabulary. Every byte
// has a symbol, so any text can be encoded.
//
// Use NewDefault for the vocabulary of OpenAI's CLIP models, NewFromFile with OpenAI's
// "bpe_simple_vocab_16e6.txt.gz", or New (registered with the tokenizers package) to build one from a
// HuggingFace repository holding a "merges.txt" file.
package clip

import (
	"io"
	"os"
	"runtime"
	"strings"
	"unicode/utf8"

	"github.com/gomlx/go-clip-tokenizer/hub"
	"github.com/gomlx/go-clip-tokenizer/tokenizers/api"
	"github.com/pkg/errors"
)

const (
	// DefaultContextLength is the number of tokens per row used by all released CLIP models.
	DefaultContextLength = 77

	// MergesFileName is the name of the merge rules file in HuggingFace CLIP repositories.
	MergesFileName = "merges.txt"

	// MaxContextLength bounds the row length of TokenizeBatch. A larger model_max_length in a
	// tokenizer_config.json is HuggingFace's way to say "no limit", and is ignored.
	MaxContextLength = 1 << 20

	// DefaultRepo is the HuggingFace repository whose merges.txt holds OpenAI's CLIP vocabulary.
	DefaultRepo = "openai/clip-vit-base-patch32"

	// VocabularyFileEnv names the environment variable NewDefault reads a local vocabulary file from.
	VocabularyFileEnv = "CLIP_VOCAB_FILE"
)

// Tokenizer converts text to CLIP token IDs and back.
//
// It is safe for concurrent use. The With* configuration methods are not, and should be called before use.
type Tokenizer struct {
	vocab   *Vocabulary
	pretok  *pretokenizer
	encoder *bytePairEncoder

	// specials maps the recognized special-token substrings to their IDs.
	specials map[string]int

	contextLength int
	parallelism   int
	config        *api.Config
}

// Compile time assert that clip.Tokenizer implements the tokenizer interfaces.
var (
	_ api.Tokenizer      = &Tokenizer{}
	_ api.BatchTokenizer = &Tokenizer{}
)

// NewFromVocabulary creates a Tokenizer for the given vocabulary.
//
// config is optional: if given, its model_max_length sets the default context length, and its bos/eos
// strings are also recognized as start-of-text and end-of-text substrings in the text being encoded.
func NewFromVocabulary(config *api.Config, vocab *Vocabulary) (*Tokenizer, error) {
	if vocab == nil {
		return nil, errors.New("clip.NewFromVocabulary requires a vocabulary")
	}
	t := &Tokenizer{
		vocab:         vocab,
		contextLength: DefaultContextLength,
		parallelism:   runtime.GOMAXPROCS(0),
		config:        config,
		specials: map[string]int{
			StartOfTextToken: vocab.StartOfText(),
			EndOfTextToken:   vocab.EndOfText(),
		},
	}
	if config != nil {
		if bos := string(config.BosToken); bos != "" {
			t.specials[bos] = vocab.StartOfText()
		}
		if eos := string(config.EosToken); eos != "" {
			t.specials[eos] = vocab.EndOfText()
		}
		if m := config.ModelMaxLength; m >= 2 && m <= MaxContextLength {
			t.contextLength = int(m)
		}
	}

	var err error
	t.pretok, err = newPretokenizer(t.specials)
	if err != nil {
		return nil, err
	}
	cache, err := newEncodeCache(DefaultCacheSize)
	if err != nil {
		return nil, err
	}
	t.encoder = &bytePairEncoder{vocab: vocab, cache: cache}
	return t, nil
}

// NewFromReader creates a Tokenizer from a merges resource, see NewVocabulary.
//
// Use maxSize = DefaultVocabularySize for OpenAI's vocabulary file. The start-of-text and end-of-text IDs
// are the last two IDs of the vocabulary.
func NewFromReader(r io.Reader, maxSize int) (*Tokenizer, error) {
	vocab, err := NewVocabulary(r, maxSize)
	if err != nil {
		return nil, err
	}
	return NewFromVocabulary(nil, vocab)
}

// NewFromFile creates a Tokenizer from a merges file, optionally gzip-compressed, with the default
// vocabulary size. config is optional, see NewFromVocabulary.
func NewFromFile(config *api.Config, filePath string) (*Tokenizer, error) {
	vocab, err := OpenVocabulary(filePath, DefaultVocabularySize)
	if err != nil {
		return nil, err
	}
	return NewFromVocabulary(config, vocab)
}

// NewDefault creates the Tokenizer of OpenAI's CLIP models: DefaultVocabularySize tokens, with the markers at
// StartOfTextID and EndOfTextID.
//
// The vocabulary is read from the file named by $CLIP_VOCAB_FILE (e.g. OpenAI's "bpe_simple_vocab_16e6.txt.gz")
// if set. Otherwise the "merges.txt" of DefaultRepo is used, fetched into the HuggingFace cache on first use.
func NewDefault() (*Tokenizer, error) {
	if filePath := os.Getenv(VocabularyFileEnv); filePath != "" {
		return NewFromFile(nil, filePath)
	}
	mergesFile, err := hub.New(DefaultRepo).DownloadFile(MergesFileName)
	if err != nil {
		return nil, errors.WithMessagef(err, "can't fetch the CLIP vocabulary from %q", DefaultRepo)
	}
	return NewFromFile(nil, mergesFile)
}

// New creates a CLIP Tokenizer from the "merges.txt" file of a HuggingFace repository. The file holds exactly
// the merges of the vocabulary, so all of them are used.
//
// It implements a tokenizers.TokenizerConstructor function signature.
func New(config *api.Config, repo *hub.Repo) (api.Tokenizer, error) {
	if !repo.HasFile(MergesFileName) {
		return nil, errors.Errorf("%q file not found in repo %q", MergesFileName, repo)
	}
	mergesFile, err := repo.DownloadFile(MergesFileName)
	if err != nil {
		return nil, errors.WithMessagef(err, "can't download %q file", MergesFileName)
	}
	vocab, err := OpenVocabulary(mergesFile, 0)
	if err != nil {
		return nil, err
	}
	return NewFromVocabulary(config, vocab)
}

// WithCacheSize sets the number of clusters whose encoding is memoized. Set to 0 to disable the cache.
// Defaults to DefaultCacheSize.
func (t *Tokenizer) WithCacheSize(size int) *Tokenizer {
	cache, err := newEncodeCache(size)
	if err != nil {
		// Only non-positive sizes are rejected by the LRU, and those never reach it.
		panic(err)
	}
	t.encoder.cache = cache
	return t
}

// WithParallelism sets how many texts TokenizeBatch encodes concurrently. Values <= 1 make it sequential.
// Defaults to runtime.GOMAXPROCS(0).
func (t *Tokenizer) WithParallelism(parallelism int) *Tokenizer {
	t.parallelism = parallelism
	return t
}

// WithContextLength sets the row length used by Tokenize. It must be in [2, MaxContextLength].
func (t *Tokenizer) WithContextLength(contextLength int) *Tokenizer {
	t.contextLength = contextLength
	return t
}

// Vocabulary used by the Tokenizer.
func (t *Tokenizer) Vocabulary() *Vocabulary {
	return t.vocab
}

// Config returns the HuggingFace tokenizer configuration, if the Tokenizer was created with one.
func (t *Tokenizer) Config() *api.Config {
	return t.config
}

// ContextLength returns the row length used by Tokenize.
func (t *Tokenizer) ContextLength() int {
	return t.contextLength
}

// StartOfText returns the ID of the start-of-text marker.
func (t *Tokenizer) StartOfText() int {
	return t.vocab.StartOfText()
}

// EndOfText returns the ID of the end-of-text marker.
func (t *Tokenizer) EndOfText() int {
	return t.vocab.EndOfText()
}

// CacheLen returns the number of clusters currently memoized.
func (t *Tokenizer) CacheLen() int {
	return t.encoder.cache.len()
}

// ClearCache drops all memoized cluster encodings.
func (t *Tokenizer) ClearCache() {
	t.encoder.cache.purge()
}

// Encode returns the token IDs of text, without start-of-text and end-of-text markers.
//
// The text is lowercased first. Special-token substrings (e.g. "<start_of_text>") that are split as a
// cluster of their own are encoded as the corresponding marker. Empty or whitespace-only text yields no IDs.
func (t *Tokenizer) Encode(text string) []int {
	return t.encode(text, nil)
}

// encode appends the IDs of text to out.
func (t *Tokenizer) encode(text string, out []int) []int {
	for _, cluster := range t.pretok.split(text) {
		if id, found := t.pretok.special(cluster); found {
			out = append(out, id)
			continue
		}
		out = t.encoder.encode(cluster, out)
	}
	return out
}

// Decode returns an approximation of the text that generated ids: it is lowercase and every word is
// followed by a space. Markers decode to the empty string.
//
// It returns an error wrapping ErrInvalidID if any ID is out of the vocabulary range.
func (t *Tokenizer) Decode(ids []int) (string, error) {
	var raw []byte
	for pos, id := range ids {
		b, err := t.vocab.Bytes(id)
		if err != nil {
			return "", errors.WithMessagef(err, "decoding token at position %d", pos)
		}
		raw = append(raw, b...)
	}
	return strings.ReplaceAll(decodeLossy(raw), wordBoundary, " "), nil
}

// Pieces returns the text of each token of the encoded text, decoded on its own. Word-final tokens end
// with a space.
func (t *Tokenizer) Pieces(text string) []string {
	ids := t.Encode(text)
	pieces := make([]string, len(ids))
	for i, id := range ids {
		if t.vocab.IsSpecial(id) {
			pieces[i] = t.vocab.tokens[id]
			continue
		}
		pieces[i] = strings.ReplaceAll(decodeLossy(t.vocab.bytes[id]), wordBoundary, " ")
	}
	return pieces
}

// SpecialTokenID returns the ID of the given special token: the start-of-text and end-of-text markers
// serve as beginning and end of sentence, and padding uses PadID.
func (t *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	switch token {
	case api.TokBeginningOfSentence:
		return t.vocab.StartOfText(), nil
	case api.TokEndOfSentence:
		return t.vocab.EndOfText(), nil
	case api.TokPad:
		return PadID, nil
	}
	return 0, errors.Errorf("unknown special token: %s (%d)", token, token)
}

// decodeLossy converts raw to a string, replacing each maximal invalid UTF-8 subsequence (the longest
// prefix of a valid encoding) by U+FFFD.
func decodeLossy(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	var sb strings.Builder
	sb.Grow(len(raw) + 8)
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		if r != utf8.RuneError || size > 1 {
			sb.Write(raw[:size])
			raw = raw[size:]
			continue
		}
		sb.WriteRune(utf8.RuneError)
		raw = raw[invalidPrefixLen(raw):]
	}
	return sb.String()
}

// invalidPrefixLen returns the length of the maximal prefix of raw that starts a valid UTF-8 encoding,
// or 1 if raw[0] can't start one. raw must not start with a valid encoding.
func invalidPrefixLen(raw []byte) int {
	lead := raw[0]
	var need int
	lo, hi := byte(0x80), byte(0xBF)
	switch {
	case lead >= 0xC2 && lead <= 0xDF:
		need = 1
	case lead == 0xE0:
		need, lo = 2, 0xA0
	case lead == 0xED:
		need, hi = 2, 0x9F
	case lead >= 0xE1 && lead <= 0xEF:
		need = 2
	case lead == 0xF0:
		need, lo = 3, 0x90
	case lead == 0xF4:
		need, hi = 3, 0x8F
	case lead >= 0xF1 && lead <= 0xF3:
		need = 3
	default:
		return 1
	}
	n := 1
	for ; n <= need && n < len(raw); n++ {
		if raw[n] < lo || raw[n] > hi {
			break
		}
		lo, hi = 0x80, 0xBF
	}
	return n
}
