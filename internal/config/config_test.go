package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBinder wraps a pflag.FlagSet to satisfy the flagBinder interface.
type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

// newFlagBinder creates a FlagSet with all config flags registered at their defaults, and parses args.
func newFlagBinder(t *testing.T, defaults Config, args ...string) *fakeBinder {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)
	require.NoError(t, fs.Parse(args))
	return &fakeBinder{fs: fs}
}

// chdirTemp runs the test in an empty directory, so no cliptok.yaml is picked up, and clears the token
// environment variables.
func chdirTemp(t *testing.T) string {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("CLIPTOK_HUB_TOKEN", "")
	t.Setenv("HF_TOKEN", "")
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 49408, cfg.Vocabulary.Size)
	assert.Equal(t, 0, cfg.Tokenizer.ContextLength)
	assert.Equal(t, "openai/clip-vit-base-patch32", cfg.Hub.Repo)
	assert.Equal(t, "main", cfg.Hub.Revision)
	assert.True(t, cfg.Hub.ProgressBar)
	assert.Equal(t, LogFormatText, cfg.LogFormat)
	require.NoError(t, cfg.Validate())
}

func TestRegisterFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, DefaultConfig())
	for name := range flagKeys {
		assert.NotNil(t, fs.Lookup(name), "flag --%s", name)
	}
	assert.Nil(t, fs.Lookup("hub-token"))
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	defaults := DefaultConfig()
	cfg, err := Load(LoadOptions{Cmd: newFlagBinder(t, defaults), Defaults: defaults})
	require.NoError(t, err)
	assert.Equal(t, defaults, cfg)
}

func TestLoadNilCmd(t *testing.T) {
	chdirTemp(t)
	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFlagOverride(t *testing.T) {
	chdirTemp(t)
	defaults := DefaultConfig()
	cfg, err := Load(LoadOptions{
		Cmd: newFlagBinder(t, defaults,
			"--vocabulary-path=/tmp/vocab.txt.gz",
			"--tokenizer-context-length=10",
			"--hub-progress-bar=false",
			"--log-level=debug",
		),
		Defaults: defaults,
	})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/vocab.txt.gz", cfg.Vocabulary.Path)
	assert.Equal(t, 10, cfg.Tokenizer.ContextLength)
	assert.False(t, cfg.Hub.ProgressBar)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadEnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CLIPTOK_LOG_LEVEL", "error")
	t.Setenv("CLIPTOK_HUB_REPO", "someone/clip")
	t.Setenv("CLIPTOK_TOKENIZER_CACHE_SIZE", "0")
	t.Setenv("HF_TOKEN", "hf_secret")

	defaults := DefaultConfig()
	cfg, err := Load(LoadOptions{Cmd: newFlagBinder(t, defaults), Defaults: defaults})
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, "someone/clip", cfg.Hub.Repo)
	assert.Equal(t, 0, cfg.Tokenizer.CacheSize)
	assert.Equal(t, "hf_secret", cfg.Hub.Token)

	// Flags take precedence over the environment.
	cfg, err = Load(LoadOptions{Cmd: newFlagBinder(t, defaults, "--hub-repo=other/clip"), Defaults: defaults})
	require.NoError(t, err)
	assert.Equal(t, "other/clip", cfg.Hub.Repo)
}

func TestLoadConfigFile(t *testing.T) {
	dir := chdirTemp(t)
	cfgFile := filepath.Join(dir, "custom.yaml")
	content := `
log_level: info
log_format: json
tokenizer:
  context_length: 32
  parallelism: 2
hub:
  repo: someone/clip
  token: from-file
`
	require.NoError(t, os.WriteFile(cfgFile, []byte(content), 0o644))

	defaults := DefaultConfig()
	cfg, err := Load(LoadOptions{
		Cmd:        newFlagBinder(t, defaults, "--tokenizer-parallelism=3"),
		ConfigFile: cfgFile,
		Defaults:   defaults,
	})
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
	assert.Equal(t, 32, cfg.Tokenizer.ContextLength)
	assert.Equal(t, 3, cfg.Tokenizer.Parallelism)
	assert.Equal(t, "someone/clip", cfg.Hub.Repo)
	assert.Equal(t, "from-file", cfg.Hub.Token)
	assert.Equal(t, defaults.Hub.Revision, cfg.Hub.Revision)
}

func TestLoadConfigFileInWorkingDir(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cliptok.yaml"), []byte("hub:\n  revision: v2\n"), 0o644))
	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	require.NoError(t, err)
	assert.Equal(t, "v2", cfg.Hub.Revision)
}

func TestLoadExpandsPaths(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CLIP_TEST_DATA", "/data")
	defaults := DefaultConfig()
	cfg, err := Load(LoadOptions{
		Cmd: newFlagBinder(t, defaults,
			"--vocabulary-path=$CLIP_TEST_DATA/clip//merges.txt",
			"--hub-cache-dir=/cache/hf/",
		),
		Defaults: defaults,
	})
	require.NoError(t, err)
	assert.Equal(t, "/data/clip/merges.txt", cfg.Vocabulary.Path)
	assert.Equal(t, "/cache/hf", cfg.Hub.CacheDir)
}

func TestLoadErrors(t *testing.T) {
	dir := chdirTemp(t)
	defaults := DefaultConfig()

	_, err := Load(LoadOptions{ConfigFile: filepath.Join(dir, "missing.yaml"), Defaults: defaults})
	require.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("hub: [unclosed"), 0o644))
	_, err = Load(LoadOptions{ConfigFile: invalid, Defaults: defaults})
	require.Error(t, err)

	for _, args := range [][]string{
		{"--tokenizer-context-length=1"},
		{"--tokenizer-context-length=-1"},
		{"--tokenizer-context-length=2000000"},
		{"--vocabulary-size=-1"},
		{"--log-level=loud"},
		{"--log-format=xml"},
		{"--hub-repo="},
	} {
		_, err = Load(LoadOptions{Cmd: newFlagBinder(t, defaults, args...), Defaults: defaults})
		assert.Error(t, err, "args %v", args)
	}
}

func TestParseLogLevel(t *testing.T) {
	for raw, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLogLevel(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	lvl, err := ParseLogLevel("loud")
	require.Error(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}
