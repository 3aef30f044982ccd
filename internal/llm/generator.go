package llm

import (
	"context"
	"fmt"

	"github.com/cognicore/tabsense/pkg/tabsense/config"
	"github.com/cognicore/tabsense/pkg/tabsense/enrich/generative"
	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
)

// New builds the generator selected by cfg.Generative.Provider. A missing
// API key is reported here, so callers should construct generators lazily,
// when a generative stage actually runs.
func New(ctx context.Context, cfg *config.Config) (generative.Generator, error) {
	key, err := cfg.GenerativeAPIKey()
	if err != nil {
		return nil, err
	}
	gc := cfg.Generative
	switch gc.Provider {
	case config.ProviderGemini:
		return NewGemini(ctx, GeminiOptions{APIKey: key, Model: gc.Model, BaseURL: gc.BaseURL})
	case config.ProviderOpenAI:
		return &Client{BaseURL: gc.BaseURL, APIKey: key, Model: gc.Model}, nil
	}
	return nil, fmt.Errorf("%w: unknown generative provider %q", internalerr.ErrInvalidConfig, gc.Provider)
}
