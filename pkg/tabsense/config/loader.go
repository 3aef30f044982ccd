package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every tabsense environment variable. A double
// underscore separates nesting levels: TABSENSE_REMOTE__API_KEY sets
// remote.api_key.
const EnvPrefix = "TABSENSE_"

// providerEnv names the conventional credential variable of each provider.
var providerEnv = map[string]string{
	ProviderGemini: "GEMINI_API_KEY",
	ProviderOpenAI: "OPENAI_API_KEY",
}

// flagKeys maps CLI flag names to config keys. Flags not listed here are
// command arguments, not configuration.
var flagKeys = map[string]string{
	"addr":        "server.addr",
	"cors-origin": "server.cors_origins",
	"concurrency": "runner.concurrency",
	"timeout":     "runner.timeout",
	"cache":       "cache.path",
	"no-cache":    "cache.enabled",
	"lexicon":     "lexicon",
	"tags-file":   "tags_file",
	"provider":    "generative.provider",
	"log-level":   "log.level",
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.addr":             ":8080",
		"server.cors_origins":     []string{"http://localhost:3000"},
		"server.max_upload_bytes": int64(32 << 20),
		"server.preview_rows":     20,
		"runner.concurrency":      8,
		"runner.timeout":          "20s",
		"remote.base_url":         "https://api-inference.huggingface.co/models",
		"remote.model":            "distilbert-base-uncased-finetuned-sst-2-english",
		"remote.wait_for_model":   false,
		"generative.provider":     ProviderGemini,
		"generative.model":        "gemini-1.5-flash",
		"cache.enabled":           true,
		"cache.path":              ":memory:",
		"log.level":               "info",
		"log.development":         false,
	}
}

// Default returns the built-in configuration, ignoring files and the
// environment.
func Default() *Config {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		panic(fmt.Sprintf("config: defaults do not load: %v", err))
	}
	cfg, err := decode(k)
	if err != nil {
		panic(fmt.Sprintf("config: defaults do not decode: %v", err))
	}
	return cfg
}

// Load reads configuration from defaults, an optional YAML file, the
// environment and explicitly set flags. When cfgFile is empty, DefaultFile
// is used if it exists in the working directory.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			cfgFile = DefaultFile
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// Provider credentials under their conventional names.
	generativeEnv := providerEnv[k.String("generative.provider")]
	if err := k.Load(env.Provider("", ".", func(s string) string {
		switch s {
		case "HF_API_TOKEN":
			return "remote.api_key"
		case generativeEnv:
			return "generative.api_key"
		}
		return ""
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// TABSENSE_RUNNER__CONCURRENCY -> runner.concurrency
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			if f.Name == "no-cache" {
				return key, f.Value.String() != "true"
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	return decode(k)
}

func decode(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
