// Package tokenizers creates tokenizers from HuggingFace repositories.
//
// The "tokenizer_class" of the repository's "tokenizer_config.json" selects a registered constructor, which
// fetches the files it needs. The CLIP classes ("CLIPTokenizer", "CLIPTokenizerFast") are registered by default.
package tokenizers

import (
	"slices"
	"sync"

	"github.com/gomlx/go-clip-tokenizer/hub"
	"github.com/gomlx/go-clip-tokenizer/tokenizers/api"
	"github.com/gomlx/go-clip-tokenizer/tokenizers/clip"
	"github.com/pkg/errors"
)

// ConfigFileName is the tokenizer configuration file of HuggingFace repositories.
const ConfigFileName = "tokenizer_config.json"

type (
	Tokenizer      = api.Tokenizer
	BatchTokenizer = api.BatchTokenizer
	SpecialToken   = api.SpecialToken
	Config         = api.Config
)

const (
	TokBeginningOfSentence = api.TokBeginningOfSentence
	TokEndOfSentence       = api.TokEndOfSentence
	TokUnknown             = api.TokUnknown
	TokPad                 = api.TokPad
	TokMask                = api.TokMask
	TokClassification      = api.TokClassification
	TokSpecialTokensCount  = api.TokSpecialTokensCount
)

// TokenizerConstructor builds the tokenizer of a registered class from the parsed configuration and the
// repository holding its files.
type TokenizerConstructor func(config *api.Config, repo *hub.Repo) (api.Tokenizer, error)

var (
	classesMu sync.RWMutex
	classes   = make(map[string]TokenizerConstructor)
)

// RegisterTokenizerClass makes New use constructor for repositories whose tokenizer_class is name.
// Registering a name again replaces its constructor.
func RegisterTokenizerClass(name string, constructor TokenizerConstructor) {
	classesMu.Lock()
	defer classesMu.Unlock()
	classes[name] = constructor
}

// RegisteredClasses returns the sorted names of the registered tokenizer classes.
func RegisteredClasses() []string {
	classesMu.RLock()
	defer classesMu.RUnlock()
	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// New creates the tokenizer of the given repository (see hub.New).
func New(repo *hub.Repo) (Tokenizer, error) {
	config, err := GetConfig(repo)
	if err != nil {
		return nil, err
	}
	classesMu.RLock()
	constructor, found := classes[config.TokenizerClass]
	classesMu.RUnlock()
	if !found {
		return nil, errors.Errorf("repository %q uses unsupported tokenizer class %q (supported: %v)",
			repo, config.TokenizerClass, RegisteredClasses())
	}
	return constructor(config, repo)
}

// GetConfig fetches and parses the repository's tokenizer_config.json.
func GetConfig(repo *hub.Repo) (*api.Config, error) {
	configPath, err := repo.DownloadFile(ConfigFileName)
	if err != nil {
		return nil, err
	}
	return api.ParseConfigFile(configPath)
}

func init() {
	// The slow and fast HuggingFace classes share the merges file.
	RegisterTokenizerClass("CLIPTokenizer", clip.New)
	RegisterTokenizerClass("CLIPTokenizerFast", clip.New)
}
