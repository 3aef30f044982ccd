// Package llm holds the text-generation backends used by the generative
// enrichers: any OpenAI-compatible chat completions endpoint, and Gemini.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
)

const systemPrompt = "You analyse customer feedback. Follow the requested output format exactly."

// temperature keeps classification answers deterministic.
const temperature = 0.0

// Client calls an OpenAI-compatible chat completion endpoint.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string

	HTTPClient *http.Client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Name identifies the backend and model.
func (c *Client) Name() string { return "openai:" + c.Model }

// Generate implements generative.Generator.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.Chat(ctx, systemPrompt, prompt)
}

// Chat sends one system and one user message and returns the first choice.
func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	if c.BaseURL == "" || c.Model == "" {
		return "", fmt.Errorf("%w: llm base URL and model required", internalerr.ErrInvalidConfig)
	}
	if c.APIKey == "" {
		return "", fmt.Errorf("%w: llm api key", internalerr.ErrMissingCredential)
	}
	messages := []chatMessage{{Role: "system", Content: system}, {Role: "user", Content: user}}
	payload, err := c.send(ctx, messages)
	if err != nil {
		return "", err
	}
	if len(payload.Choices) == 0 {
		return "", fmt.Errorf("%w: llm returned no choices", internalerr.ErrResponseParse)
	}
	return payload.Choices[0].Message.Content, nil
}

func (c *Client) send(ctx context.Context, messages []chatMessage) (*chatResponse, error) {
	reqBody, err := json.Marshal(chatRequest{Model: c.Model, Messages: messages, Temperature: temperature})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrRemoteService, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", internalerr.ErrRemoteService, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", internalerr.ErrRemoteService, err)
	}
	var payload chatResponse
	decodeErr := json.Unmarshal(data, &payload)
	switch {
	case decodeErr == nil && payload.Error != nil:
		return nil, statusError(resp.StatusCode, payload.Error.Message)
	case resp.StatusCode >= 400:
		return nil, statusError(resp.StatusCode, strings.TrimSpace(string(data)))
	case decodeErr != nil:
		return nil, fmt.Errorf("%w: %v", internalerr.ErrResponseParse, decodeErr)
	}
	return &payload, nil
}

// statusError classifies a failed completion. Rate limits also match
// ErrRateLimited.
func statusError(status int, msg string) error {
	if status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w: %s", internalerr.ErrRateLimited, internalerr.ErrRemoteService, msg)
	}
	if status >= 400 {
		return fmt.Errorf("%w: http %d: %s", internalerr.ErrRemoteService, status, msg)
	}
	return fmt.Errorf("%w: %s", internalerr.ErrRemoteService, msg)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}
