package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
)

// isolate runs the test in an empty directory with no tabsense or
// provider variables set.
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, name := range []string{"HF_API_TOKEN", "GEMINI_API_KEY", "OPENAI_API_KEY"} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 8, cfg.Runner.Concurrency)
	assert.Equal(t, 20*time.Second, cfg.Runner.Timeout)
	assert.Equal(t, ProviderGemini, cfg.Generative.Provider)
	assert.Equal(t, "gemini-1.5-flash", cfg.Generative.Model)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, ":memory:", cfg.Cache.Path)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
}

func TestLoadPrecedence(t *testing.T) {
	isolate(t)
	path := writeFile(t, "tabsense.yaml", `
runner:
  concurrency: 2
  timeout: 5s
remote:
  model: custom-model
log:
  level: debug
`)
	t.Setenv("TABSENSE_RUNNER__CONCURRENCY", "4")
	t.Setenv("TABSENSE_SERVER__ADDR", ":9999")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("concurrency", 8, "")
	flags.String("addr", ":8080", "")
	flags.String("in", "", "")
	require.NoError(t, flags.Parse([]string{"--addr", ":7000", "--in", "data.csv"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Runner.Concurrency, "env overrides file")
	assert.Equal(t, 5*time.Second, cfg.Runner.Timeout, "file overrides defaults")
	assert.Equal(t, ":7000", cfg.Server.Addr, "flags override env")
	assert.Equal(t, "custom-model", cfg.Remote.Model)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadPicksUpDefaultFile(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(DefaultFile, []byte("server:\n  preview_rows: 5\n"), 0644))

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Server.PreviewRows)
}

func TestNoCacheFlag(t *testing.T) {
	isolate(t)
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Bool("no-cache", false, "")
	require.NoError(t, flags.Parse([]string{"--no-cache"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.False(t, cfg.Cache.Enabled)
}

func TestCredentialsAreResolvedLazily(t *testing.T) {
	isolate(t)
	cfg, err := Load("", nil)
	require.NoError(t, err, "missing credentials must not fail loading")

	_, err = cfg.RemoteAPIKey()
	assert.ErrorIs(t, err, internalerr.ErrMissingCredential)
	_, err = cfg.GenerativeAPIKey()
	assert.ErrorIs(t, err, internalerr.ErrMissingCredential)

	t.Setenv("HF_API_TOKEN", "hf_abc")
	t.Setenv("GEMINI_API_KEY", "gem_abc")
	cfg, err = Load("", nil)
	require.NoError(t, err)

	key, err := cfg.RemoteAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "hf_abc", key)
	key, err = cfg.GenerativeAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "gem_abc", key)

	t.Setenv("TABSENSE_REMOTE__API_KEY", "hf_override")
	cfg, err = Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "hf_override", cfg.Remote.APIKey)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"negative concurrency": func(c *Config) { c.Runner.Concurrency = -1 },
		"negative timeout":     func(c *Config) { c.Runner.Timeout = -time.Second },
		"unknown provider":     func(c *Config) { c.Generative.Provider = "bard" },
		"openai without url":   func(c *Config) { c.Generative.Provider = ProviderOpenAI },
		"cache without path":   func(c *Config) { c.Cache.Path = "" },
		"zero upload limit":    func(c *Config) { c.Server.MaxUploadBytes = 0 },
		"bad log level":        func(c *Config) { c.Log.Level = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), internalerr.ErrInvalidConfig)
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	isolate(t)
	path := writeFile(t, "bad.yaml", "generative:\n  provider: bard\n")
	_, err := Load(path, nil)
	assert.True(t, errors.Is(err, internalerr.ErrInvalidConfig), "got %v", err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadTagSet(t *testing.T) {
	path := writeFile(t, "tags.yaml", "name: product\ntags: [Pricing, ' Support ', Bug]\n")
	ts, err := LoadTagSet(path)
	require.NoError(t, err)
	assert.Equal(t, "product", ts.Name)
	assert.Equal(t, []string{"Pricing", "Support", "Bug"}, ts.Tags)

	for name, content := range map[string]string{
		"empty":     "name: x\ntags: []\n",
		"duplicate": "tags: [A, B, A]\n",
		"blank":     "tags: [A, '  ']\n",
		"syntax":    "tags: [A\n",
	} {
		_, err := LoadTagSet(writeFile(t, name+".yaml", content))
		assert.ErrorIs(t, err, internalerr.ErrInvalidConfig, name)
	}
}

func TestNormalizeTagsIsCaseSensitive(t *testing.T) {
	tags, err := NormalizeTags([]string{"bug", "Bug"})
	require.NoError(t, err)
	assert.Len(t, tags, 2)
}
