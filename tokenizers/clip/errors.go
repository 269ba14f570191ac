package clip

import "github.com/pkg/errors"

var (
	// ErrMalformedVocabulary is returned while building a Vocabulary from a resource that is empty, truncated,
	// references unknown symbols or holds duplicate entries. A Tokenizer cannot be created from such a resource.
	ErrMalformedVocabulary = errors.New("malformed vocabulary")

	// ErrInvalidID is returned when decoding a token ID outside the vocabulary range.
	ErrInvalidID = errors.New("invalid token id")

	// ErrInvalidContextLength is returned by TokenizeBatch when the context length can't hold both the
	// start-of-text and end-of-text markers.
	ErrInvalidContextLength = errors.New("invalid context length")

	// ErrUnknownToken is returned when looking up a token string that is not part of the vocabulary.
	// Encode never produces one, since every byte has a symbol.
	ErrUnknownToken = errors.New("unknown token")
)
