// Package config loads the cliptok command line configuration from defaults, an optional config file,
// CLIPTOK_* environment variables and flags, in increasing order of precedence.
package config

import (
	"log/slog"
	"strings"

	"github.com/gomlx/go-clip-tokenizer/internal/files"
	"github.com/gomlx/go-clip-tokenizer/tokenizers/clip"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Vocabulary VocabularyConfig `mapstructure:"vocabulary"`
	Tokenizer  TokenizerConfig  `mapstructure:"tokenizer"`
	Hub        HubConfig        `mapstructure:"hub"`
	LogLevel   string           `mapstructure:"log_level"`
	LogFormat  string           `mapstructure:"log_format"`
}

// VocabularyConfig selects a local merges file. If Path is empty, the vocabulary is downloaded from the hub.
type VocabularyConfig struct {
	Path string `mapstructure:"path"`
	Size int    `mapstructure:"size"`
}

// TokenizerConfig tunes the tokenizer. A ContextLength of 0 keeps the tokenizer's own: the model_max_length of
// the hub repository, or 77.
type TokenizerConfig struct {
	ContextLength int `mapstructure:"context_length"`
	Parallelism   int `mapstructure:"parallelism"`
	CacheSize     int `mapstructure:"cache_size"`
}

type HubConfig struct {
	Repo        string `mapstructure:"repo"`
	Revision    string `mapstructure:"revision"`
	CacheDir    string `mapstructure:"cache_dir"`
	Endpoint    string `mapstructure:"endpoint"`
	ProgressBar bool   `mapstructure:"progress_bar"`

	// Token is only read from the config file or the environment (CLIPTOK_HUB_TOKEN or HF_TOKEN).
	Token string `mapstructure:"token"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

func DefaultConfig() Config {
	return Config{
		Vocabulary: VocabularyConfig{
			Path: "",
			Size: clip.DefaultVocabularySize,
		},
		Tokenizer: TokenizerConfig{
			ContextLength: 0,
			Parallelism:   0,
			CacheSize:     1 << 16,
		},
		Hub: HubConfig{
			Repo:        clip.DefaultRepo,
			Revision:    "main",
			CacheDir:    "",
			Endpoint:    "",
			ProgressBar: true,
		},
		LogLevel:  "warn",
		LogFormat: LogFormatText,
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("vocabulary-path", defaults.Vocabulary.Path, "Local merges file (bpe_simple_vocab_16e6.txt[.gz] or merges.txt); if empty the vocabulary is downloaded from the hub")
	fs.Int("vocabulary-size", defaults.Vocabulary.Size, "Vocabulary size including byte symbols and markers (0 uses all merges of the file)")
	fs.Int("tokenizer-context-length", defaults.Tokenizer.ContextLength, "Number of ids per row built by tokenize (0 uses the model_max_length of the repository, or 77)")
	fs.Int("tokenizer-parallelism", defaults.Tokenizer.Parallelism, "Texts tokenized concurrently (0 uses GOMAXPROCS)")
	fs.Int("tokenizer-cache-size", defaults.Tokenizer.CacheSize, "Number of words whose encoding is memoized (0 disables the cache)")
	fs.String("hub-repo", defaults.Hub.Repo, "HuggingFace repository holding tokenizer_config.json and merges.txt")
	fs.String("hub-revision", defaults.Hub.Revision, "Repository revision: branch, tag or commit hash")
	fs.String("hub-cache-dir", defaults.Hub.CacheDir, "HuggingFace cache directory (defaults to ~/.cache/huggingface/hub)")
	fs.String("hub-endpoint", defaults.Hub.Endpoint, "HuggingFace endpoint (defaults to $HF_ENDPOINT or https://huggingface.co)")
	fs.Bool("hub-progress-bar", defaults.Hub.ProgressBar, "Display a progress bar while downloading")
	fs.String("log-level", defaults.LogLevel, "Log level: debug|info|warn|error")
	fs.String("log-format", defaults.LogFormat, "Log format: text|json")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("CLIPTOK")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("hub.token", "CLIPTOK_HUB_TOKEN", "HF_TOKEN"); err != nil {
		return Config{}, errors.Wrap(err, "bind token env vars")
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, "read config file")
		}
	} else {
		v.SetConfigName("cliptok")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, errors.Wrap(err, "read config file")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	var err error
	if cfg.Vocabulary.Path, err = files.ExpandPath(cfg.Vocabulary.Path); err != nil {
		return Config{}, errors.WithMessage(err, "vocabulary.path")
	}
	if cfg.Hub.CacheDir, err = files.ExpandPath(cfg.Hub.CacheDir); err != nil {
		return Config{}, errors.WithMessage(err, "hub.cache_dir")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that can't be used, so errors are reported before any download.
func (c Config) Validate() error {
	if n := c.Tokenizer.ContextLength; n != 0 && (n < 2 || n > clip.MaxContextLength) {
		return errors.Errorf("tokenizer.context_length must be 0 (model default) or in [2, %d], got %d",
			clip.MaxContextLength, n)
	}
	if c.Vocabulary.Size < 0 {
		return errors.Errorf("vocabulary.size must not be negative, got %d", c.Vocabulary.Size)
	}
	if c.Vocabulary.Path == "" && c.Hub.Repo == "" {
		return errors.New("either vocabulary.path or hub.repo must be set")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return errors.Errorf("invalid log_format %q (expected %s|%s)", c.LogFormat, LogFormatText, LogFormatJSON)
	}
	return nil
}

// ParseLogLevel converts a level name (case-insensitive) to a slog.Level.
func ParseLogLevel(raw string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo, errors.Wrapf(err, "invalid log_level %q (expected debug|info|warn|error)", raw)
	}
	return lvl, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("vocabulary.path", c.Vocabulary.Path)
	v.SetDefault("vocabulary.size", c.Vocabulary.Size)
	v.SetDefault("tokenizer.context_length", c.Tokenizer.ContextLength)
	v.SetDefault("tokenizer.parallelism", c.Tokenizer.Parallelism)
	v.SetDefault("tokenizer.cache_size", c.Tokenizer.CacheSize)
	v.SetDefault("hub.repo", c.Hub.Repo)
	v.SetDefault("hub.revision", c.Hub.Revision)
	v.SetDefault("hub.cache_dir", c.Hub.CacheDir)
	v.SetDefault("hub.endpoint", c.Hub.Endpoint)
	v.SetDefault("hub.progress_bar", c.Hub.ProgressBar)
	v.SetDefault("hub.token", c.Hub.Token)
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("log_format", c.LogFormat)
}

// flagKeys maps each flag to its configuration key. Flags are bound to the nested keys, so values from
// the config file are not shadowed by flag defaults.
var flagKeys = map[string]string{
	"vocabulary-path":          "vocabulary.path",
	"vocabulary-size":          "vocabulary.size",
	"tokenizer-context-length": "tokenizer.context_length",
	"tokenizer-parallelism":    "tokenizer.parallelism",
	"tokenizer-cache-size":     "tokenizer.cache_size",
	"hub-repo":                 "hub.repo",
	"hub-revision":             "hub.revision",
	"hub-cache-dir":            "hub.cache_dir",
	"hub-endpoint":             "hub.endpoint",
	"hub-progress-bar":         "hub.progress_bar",
	"log-level":                "log_level",
	"log-format":               "log_format",
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return errors.Wrapf(err, "bind flag --%s", name)
		}
	}
	return nil
}
