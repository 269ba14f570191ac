package api

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

type TokensDecoder struct {
	Content    string `json:"content"`
	Lstrip     bool   `json:"lstrip"`
	Normalized bool   `json:"normalized"`
	Rstrip     bool   `json:"rstrip"`
	SingleWord bool   `json:"single_word"`
	Special    bool   `json:"special"`
}

// TokenString is a special token as stored in tokenizer_config.json: either a plain string, or an
// "AddedToken" object, in which case only its content is kept.
type TokenString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *TokenString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '{' {
		var added TokensDecoder
		if err := json.Unmarshal(data, &added); err != nil {
			return errors.Wrapf(err, "failed to parse special token object %s", data)
		}
		*s = TokenString(added.Content)
		return nil
	}
	var plain string
	if err := json.Unmarshal(data, &plain); err != nil {
		return errors.Wrapf(err, "failed to parse special token %s", data)
	}
	*s = TokenString(plain)
	return nil
}

// Config struct to hold HuggingFace's tokenizer_config.json contents.
// There is no formal schema for this file, but these are some common fields that may be of use.
// Specific tokenizer classes are free to implement additional features as they see fit.
//
// The extra field ConfigFile holds the path to the file with the full config.
type Config struct {
	ConfigFile     string
	TokenizerClass string `json:"tokenizer_class"`

	ModelMaxLength float64 `json:"model_max_length"`
	MaxLength      float64 `json:"max_length"`

	UnkToken TokenString `json:"unk_token"`
	BosToken TokenString `json:"bos_token"`
	EosToken TokenString `json:"eos_token"`
	PadToken TokenString `json:"pad_token"`

	AddBosToken        bool                  `json:"add_bos_token"`
	AddEosToken        bool                  `json:"add_eos_token"`
	AddedTokensDecoder map[int]TokensDecoder `json:"added_tokens_decoder"`

	DoLowerCase               bool   `json:"do_lower_case"`
	CleanUpTokenizationSpaces bool   `json:"clean_up_tokenization_spaces"`
	Errors                    string `json:"errors"`
	NameOrPath                string `json:"name_or_path"`

	TruncationSide     string `json:"truncation_side"`
	TruncationStrategy string `json:"truncation_strategy"`
}

// ParseConfigFile parses the given file (holding a tokenizer_config.json file) into a Config structure.
func ParseConfigFile(filePath string) (*Config, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read file %q", filePath)
	}
	config, err := ParseConfigContent(content)
	if err != nil {
		return nil, errors.WithMessagef(err, "read from file %q", filePath)
	}
	config.ConfigFile = filePath
	return config, nil
}

// ParseConfigContent parses the given json content (of a tokenizer_config.json file) into a Config structure.
func ParseConfigContent(jsonContent []byte) (*Config, error) {
	config := &Config{}
	err := json.Unmarshal(jsonContent, config)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse tokenizer_config json content")
	}
	return config, nil
}
