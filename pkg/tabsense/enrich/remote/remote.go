// Package remote classifies text with a hosted sentiment model through the
// Hugging Face inference API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cognicore/tabsense/pkg/tabsense/enrich"
	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
)

// Defaults for the hosted inference API.
const (
	DefaultBaseURL = "https://api-inference.huggingface.co/models"
	DefaultModel   = "distilbert-base-uncased-finetuned-sst-2-english"
)

const maxBody = 1 << 20

// Client calls a text-classification model. It is safe for concurrent use.
type Client struct {
	BaseURL string // model name is appended; DefaultBaseURL when empty
	Model   string // DefaultModel when empty
	APIKey  string

	// WaitForModel asks the service to block until a cold model is loaded
	// instead of answering 503.
	WaitForModel bool

	HTTPClient *http.Client
}

// ModelLoadingError reports a model that is still being loaded. It matches
// both ErrModelLoading and ErrRemoteService.
type ModelLoadingError struct {
	Model         string
	EstimatedWait time.Duration
}

func (e *ModelLoadingError) Error() string {
	if e.EstimatedWait > 0 {
		return fmt.Sprintf("model %s is loading (estimated %s)", e.Model, e.EstimatedWait.Round(time.Second))
	}
	return fmt.Sprintf("model %s is loading", e.Model)
}

func (e *ModelLoadingError) Unwrap() []error {
	return []error{internalerr.ErrModelLoading, internalerr.ErrRemoteService}
}

type request struct {
	Inputs  string         `json:"inputs"`
	Options requestOptions `json:"options"`
}

type requestOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

type candidate struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type errorPayload struct {
	Error         json.RawMessage `json:"error"`
	EstimatedTime float64         `json:"estimated_time"`
}

// Name implements enrich.Enricher.
func (c *Client) Name() string { return "remote:" + c.model() }

// Classify implements enrich.Enricher.
func (c *Client) Classify(ctx context.Context, text string) (enrich.Result, error) {
	if c.APIKey == "" {
		return enrich.Result{}, fmt.Errorf("%w: remote classifier api key", internalerr.ErrMissingCredential)
	}
	body, status, err := c.send(ctx, text)
	if err != nil {
		return enrich.Result{}, err
	}
	if err := c.checkError(status, body); err != nil {
		return enrich.Result{}, err
	}
	cands, err := decodeCandidates(body)
	if err != nil {
		return enrich.Result{}, err
	}
	return interpret(cands)
}

func (c *Client) send(ctx context.Context, text string) ([]byte, int, error) {
	reqBody, err := json.Marshal(request{Inputs: text, Options: requestOptions{WaitForModel: c.WaitForModel}})
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(reqBody))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", internalerr.ErrRemoteService, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", internalerr.ErrRemoteService, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read body: %w", internalerr.ErrRemoteService, err)
	}
	return data, resp.StatusCode, nil
}

// checkError turns non-2xx statuses and error payloads into errors.
func (c *Client) checkError(status int, body []byte) error {
	var payload errorPayload
	hasPayload := json.Unmarshal(body, &payload) == nil && len(payload.Error) > 0
	msg := ""
	if hasPayload {
		msg = errorMessage(payload.Error)
	}

	loading := status == http.StatusServiceUnavailable || strings.Contains(strings.ToLower(msg), "loading")
	switch {
	case loading && (status >= 400 || hasPayload):
		return &ModelLoadingError{
			Model:         c.model(),
			EstimatedWait: time.Duration(payload.EstimatedTime * float64(time.Second)),
		}
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w: http %d %s", internalerr.ErrRateLimited, internalerr.ErrRemoteService, status, msg)
	case status >= 400:
		if msg == "" {
			msg = http.StatusText(status)
		}
		return fmt.Errorf("%w: http %d: %s", internalerr.ErrRemoteService, status, msg)
	case hasPayload:
		return fmt.Errorf("%w: %s", internalerr.ErrRemoteService, msg)
	}
	return nil
}

// errorMessage flattens the "error" field, which is a string or a list.
func errorMessage(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return strings.Join(list, "; ")
	}
	return string(raw)
}

// decodeCandidates accepts [{label,score}] and [[{label,score}]].
func decodeCandidates(body []byte) ([]candidate, error) {
	var nested [][]candidate
	if err := json.Unmarshal(body, &nested); err == nil && len(nested) > 0 {
		return nested[0], nil
	}
	var flat []candidate
	if err := json.Unmarshal(body, &flat); err == nil && len(flat) > 0 {
		return flat, nil
	}
	return nil, fmt.Errorf("%w: unexpected classification payload %.120q", internalerr.ErrResponseParse, body)
}

// interpret turns model candidates into a sentiment Result.
//
// Binary models (POSITIVE/NEGATIVE or LABEL_1/LABEL_0) give the
// positive-class probability directly and are bucketed. Three-class models
// keep their top label; the score is the expected positivity
// p(positive) + p(neutral)/2.
func interpret(cands []candidate) (enrich.Result, error) {
	var (
		pos, neg, neu          float64
		hasPos, hasNeg, hasNeu bool
		top                    string
	)
	topScore := -1.0
	for _, c := range cands {
		var label string
		switch strings.ToLower(c.Label) {
		case "positive", "pos", "label_1":
			pos, hasPos, label = c.Score, true, enrich.LabelPositive
		case "negative", "neg", "label_0":
			neg, hasNeg, label = c.Score, true, enrich.LabelNegative
		case "neutral", "neu":
			neu, hasNeu, label = c.Score, true, enrich.LabelNeutral
		default:
			continue
		}
		if c.Score > topScore {
			top, topScore = label, c.Score
		}
	}

	switch {
	case hasNeu:
		return enrich.Result{Label: top, Score: clamp(pos + neu/2)}, nil
	case hasPos:
		p := clamp(pos)
		return enrich.Result{Label: enrich.Bucket(p), Score: p}, nil
	case hasNeg:
		p := clamp(1 - neg)
		return enrich.Result{Label: enrich.Bucket(p), Score: p}, nil
	}
	return enrich.Result{}, fmt.Errorf("%w: no sentiment label among %d candidates", internalerr.ErrResponseParse, len(cands))
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

func (c *Client) endpoint() string {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/") + "/" + c.model()
}

func (c *Client) model() string {
	if c.Model == "" {
		return DefaultModel
	}
	return c.Model
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}
