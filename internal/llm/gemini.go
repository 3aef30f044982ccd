package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

// Gemini generates text through the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// GeminiOptions configures NewGemini. BaseURL and HTTPClient are mostly
// for tests.
type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// NewGemini creates a Gemini generator. The API key is required.
func NewGemini(ctx context.Context, opts GeminiOptions) (*Gemini, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini api key", internalerr.ErrMissingCredential)
	}
	model := opts.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      opts.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  opts.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: opts.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Model returns the model name requests are sent to.
func (g *Gemini) Model() string { return g.model }

// Name identifies the backend and model.
func (g *Gemini) Name() string { return "gemini:" + g.model }

// Generate implements generative.Generator.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", classifyGenAI(err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: gemini returned no text", internalerr.ErrResponseParse)
	}
	return text, nil
}

func classifyGenAI(err error) error {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}
	if code == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w: %w", internalerr.ErrRateLimited, internalerr.ErrRemoteService, err)
	}
	return fmt.Errorf("%w: %w", internalerr.ErrRemoteService, err)
}
