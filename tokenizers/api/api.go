// Package api holds the interfaces implemented by tokenizers and the tokenizer_config.json schema.
// Implementations (e.g. package clip) import it, so package tokenizers can register them without an import cycle.
package api

import "fmt"

// Tokenizer converts text to token ids and back, and maps the special tokens shared by all tokenizers
// (padding, sentence markers) to its own ids.
type Tokenizer interface {
	Encode(text string) []int

	// Decode returns the text for the given ids, or an error if some id is not valid.
	Decode(ids []int) (string, error)

	// SpecialTokenID returns the id of token, or an error if the tokenizer has none.
	SpecialTokenID(token SpecialToken) (int, error)
}

// BatchTokenizer is implemented by tokenizers that produce fixed-length rows of ids, padded and
// truncated, as expected by text encoders.
type BatchTokenizer interface {
	Tokenizer

	// TokenizeBatch returns one row of exactly contextLength ids per text.
	TokenizeBatch(contextLength int, texts ...string) ([][]int, error)
}

// SpecialToken enumerates special tokens by role.
type SpecialToken int

const (
	TokBeginningOfSentence SpecialToken = iota
	TokEndOfSentence
	TokUnknown
	TokPad
	TokMask
	TokClassification
	TokSpecialTokensCount
)

var specialTokenNames = [...]string{
	TokBeginningOfSentence: "beginning_of_sentence",
	TokEndOfSentence:       "end_of_sentence",
	TokUnknown:             "unknown",
	TokPad:                 "pad",
	TokMask:                "mask",
	TokClassification:      "classification",
	TokSpecialTokensCount:  "special_tokens_count",
}

// String implements fmt.Stringer.
func (t SpecialToken) String() string {
	if t < 0 || int(t) >= len(specialTokenNames) {
		return fmt.Sprintf("SpecialToken(%d)", int(t))
	}
	return specialTokenNames[t]
}
