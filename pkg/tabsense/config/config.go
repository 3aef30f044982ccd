// Package config loads tabsense settings.
//
// Precedence (highest to lowest): flags > TABSENSE_ env vars > provider
// env vars (HF_API_TOKEN, GEMINI_API_KEY, OPENAI_API_KEY) > config file >
// defaults. Credentials are never required at load time; stages that need
// one ask for it when they run.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
)

// Generative providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// DefaultFile is looked up in the working directory when no file is given.
const DefaultFile = "tabsense.yaml"

// Config is the complete configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Runner     RunnerConfig     `koanf:"runner"`
	Remote     RemoteConfig     `koanf:"remote"`
	Generative GenerativeConfig `koanf:"generative"`
	Cache      CacheConfig      `koanf:"cache"`
	Log        LogConfig        `koanf:"log"`

	// Lexicon is a sentiment lexicon file; empty means the built-in one.
	Lexicon string `koanf:"lexicon"`
	// TagsFile is a tag-set file used when a request names no tags.
	TagsFile string `koanf:"tags_file"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr           string   `koanf:"addr"`
	CORSOrigins    []string `koanf:"cors_origins"`
	MaxUploadBytes int64    `koanf:"max_upload_bytes"`
	PreviewRows    int      `koanf:"preview_rows"`
}

// RunnerConfig bounds enrichment runs.
type RunnerConfig struct {
	Concurrency int           `koanf:"concurrency"`
	Timeout     time.Duration `koanf:"timeout"`
}

// RemoteConfig configures the hosted classification model.
type RemoteConfig struct {
	BaseURL      string `koanf:"base_url"`
	Model        string `koanf:"model"`
	APIKey       string `koanf:"api_key"`
	WaitForModel bool   `koanf:"wait_for_model"`
}

// GenerativeConfig configures the text-generation model.
type GenerativeConfig struct {
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	APIKey   string `koanf:"api_key"`
	// BaseURL is the chat completions URL for the openai provider, or an
	// endpoint override for gemini.
	BaseURL string `koanf:"base_url"`
}

// CacheConfig configures the enrichment result cache.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

// Validate checks values that would make a component misbehave.
func (c *Config) Validate() error {
	var problems []string
	if c.Runner.Concurrency < 0 {
		problems = append(problems, "runner.concurrency must not be negative")
	}
	if c.Runner.Timeout < 0 {
		problems = append(problems, "runner.timeout must not be negative")
	}
	switch c.Generative.Provider {
	case ProviderGemini:
	case ProviderOpenAI:
		if c.Generative.BaseURL == "" {
			problems = append(problems, "generative.base_url is required for the openai provider")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown generative.provider %q", c.Generative.Provider))
	}
	if c.Cache.Enabled && c.Cache.Path == "" {
		problems = append(problems, "cache.path is required when the cache is enabled")
	}
	if c.Server.MaxUploadBytes <= 0 {
		problems = append(problems, "server.max_upload_bytes must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown log.level %q", c.Log.Level))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", internalerr.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// RemoteAPIKey returns the classification model credential.
func (c *Config) RemoteAPIKey() (string, error) {
	if c.Remote.APIKey == "" {
		return "", fmt.Errorf("%w: remote.api_key (or HF_API_TOKEN)", internalerr.ErrMissingCredential)
	}
	return c.Remote.APIKey, nil
}

// GenerativeAPIKey returns the text-generation model credential.
func (c *Config) GenerativeAPIKey() (string, error) {
	if c.Generative.APIKey == "" {
		return "", fmt.Errorf("%w: generative.api_key (or %s)", internalerr.ErrMissingCredential, providerEnv[c.Generative.Provider])
	}
	return c.Generative.APIKey, nil
}
