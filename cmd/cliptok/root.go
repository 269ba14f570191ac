package main

import (
	"io"
	"log/slog"
	"runtime"
	"strings"

	cliptokenizer "github.com/gomlx/go-clip-tokenizer"
	"github.com/gomlx/go-clip-tokenizer/hub"
	"github.com/gomlx/go-clip-tokenizer/internal/config"
	"github.com/gomlx/go-clip-tokenizer/tokenizers"
	"github.com/gomlx/go-clip-tokenizer/tokenizers/clip"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	activeCfg config.Config
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "cliptok",
		Short:         "CLIP byte-level BPE tokenizer",
		Version:       cliptokenizer.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			setupLogger(cmd.ErrOrStderr(), loaded.LogLevel, loaded.LogFormat)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newEncodeCmd())
	cmd.AddCommand(newDecodeCmd())
	cmd.AddCommand(newTokenizeCmd())
	cmd.AddCommand(newDownloadCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(w io.Writer, levelStr, format string) {
	lvl, err := config.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if format == config.LogFormatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// newRepo returns the hub repository configured by cfg.
func newRepo(cfg config.Config) *hub.Repo {
	repo := hub.New(cfg.Hub.Repo).
		WithRevision(cfg.Hub.Revision).
		WithAuth(cfg.Hub.Token).
		WithProgressBar(cfg.Hub.ProgressBar)
	if cfg.Hub.CacheDir != "" {
		repo = repo.WithCacheDir(cfg.Hub.CacheDir)
	}
	if cfg.Hub.Endpoint != "" {
		repo = repo.WithEndpoint(cfg.Hub.Endpoint)
	}
	return repo
}

// loadTokenizer creates the tokenizer from the local vocabulary file, if one is configured, or from the
// hub repository otherwise.
func loadTokenizer(cfg config.Config) (*clip.Tokenizer, error) {
	var tok *clip.Tokenizer
	if cfg.Vocabulary.Path != "" {
		vocab, err := clip.OpenVocabulary(cfg.Vocabulary.Path, cfg.Vocabulary.Size)
		if err != nil {
			return nil, err
		}
		tok, err = clip.NewFromVocabulary(nil, vocab)
		if err != nil {
			return nil, err
		}
	} else {
		repo := newRepo(cfg)
		loaded, err := tokenizers.New(repo)
		if err != nil {
			return nil, errors.WithMessagef(err, "loading tokenizer from %q", repo)
		}
		var ok bool
		tok, ok = loaded.(*clip.Tokenizer)
		if !ok {
			return nil, errors.Errorf("repository %q does not hold a CLIP tokenizer (got %T)", repo, loaded)
		}
	}

	parallelism := cfg.Tokenizer.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	tok = tok.WithCacheSize(cfg.Tokenizer.CacheSize).WithParallelism(parallelism)
	// 0 keeps the repository's model_max_length, or the CLIP default.
	if cfg.Tokenizer.ContextLength > 0 {
		tok = tok.WithContextLength(cfg.Tokenizer.ContextLength)
	}
	slog.Debug("tokenizer loaded", "vocabulary_size", tok.Vocabulary().Size(),
		"context_length", tok.ContextLength(), "parallelism", parallelism)
	return tok, nil
}

// readTexts returns the texts given as arguments, or one text per line of stdin if there are none.
func readTexts(cmd *cobra.Command, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	content, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, errors.Wrap(err, "failed to read stdin")
	}
	var texts []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line != "" {
			texts = append(texts, line)
		}
	}
	return texts, nil
}

// requireConfig returns the configuration loaded by the root command.
func requireConfig() (config.Config, error) {
	if activeCfg.LogLevel == "" {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return activeCfg, nil
}
