package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/cognicore/tabsense/pkg/tabsense/config"
	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
)

type roundTrip func(*http.Request) *http.Response

func (rt roundTrip) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt(req), nil
}

func respond(status int, body string) roundTrip {
	return func(*http.Request) *http.Response {
		return &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     make(http.Header),
		}
	}
}

func testClient(rt roundTrip) *Client {
	return &Client{
		BaseURL:    "https://api.test/v1/chat/completions",
		APIKey:     "sk-test",
		Model:      "gpt-test",
		HTTPClient: &http.Client{Transport: rt},
	}
}

func TestGenerateSuccess(t *testing.T) {
	client := testClient(func(req *http.Request) *http.Response {
		body, _ := io.ReadAll(req.Body)
		if !strings.Contains(string(body), "Classify this") {
			t.Fatalf("expected prompt in payload: %s", body)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("unexpected auth header %q", got)
		}
		return respond(200, `{
			"choices":[{"message":{"role":"assistant","content":"{\"label\":\"Positive\",\"score\":0.9}"}}]
		}`)(req)
	})

	out, err := client.Generate(context.Background(), "Classify this")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `{"label":"Positive","score":0.9}` {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestGenerateSendsTemperature(t *testing.T) {
	var sent chatRequest
	client := testClient(func(req *http.Request) *http.Response {
		raw, _ := io.ReadAll(req.Body)
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			t.Fatalf("request body: %v", err)
		}
		if _, ok := fields["temperature"]; !ok {
			t.Fatalf("temperature missing from %s", raw)
		}
		_ = json.Unmarshal(raw, &sent)
		return respond(200, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)(req)
	})
	if _, err := client.Generate(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}
	if sent.Temperature != temperature || sent.Model != "gpt-test" {
		t.Fatalf("unexpected request %+v", sent)
	}
}

func TestGenerateErrors(t *testing.T) {
	cases := []struct {
		name string
		rt   roundTrip
		want []error
	}{
		{"error payload", respond(200, `{"error":{"message":"bad"}}`), []error{internalerr.ErrRemoteService}},
		{"rate limited", respond(429, `{"error":{"message":"slow down"}}`), []error{internalerr.ErrRemoteService, internalerr.ErrRateLimited}},
		{"server error", respond(500, `oops`), []error{internalerr.ErrRemoteService}},
		{"garbage", respond(200, `not json`), []error{internalerr.ErrResponseParse}},
		{"no choices", respond(200, `{"choices":[]}`), []error{internalerr.ErrResponseParse}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := testClient(tc.rt).Generate(context.Background(), "q")
			for _, want := range tc.want {
				if !errors.Is(err, want) {
					t.Fatalf("expected %v, got %v", want, err)
				}
			}
		})
	}
}

func TestGenerateRequiresKey(t *testing.T) {
	called := false
	client := testClient(func(req *http.Request) *http.Response {
		called = true
		return respond(200, `{}`)(req)
	})
	client.APIKey = ""
	if _, err := client.Generate(context.Background(), "q"); !errors.Is(err, internalerr.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if called {
		t.Fatal("no request should be sent without a key")
	}
}

func TestGeminiGenerate(t *testing.T) {
	var path string
	g, err := NewGemini(context.Background(), GeminiOptions{
		APIKey:  "gem-test",
		Model:   "gemini-test",
		BaseURL: "https://gemini.test/",
		HTTPClient: &http.Client{Transport: roundTrip(func(req *http.Request) *http.Response {
			path = req.URL.Path
			resp := respond(200, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Positive"}]}}]}`)(req)
			resp.Header.Set("Content-Type", "application/json")
			return resp
		})},
	})
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	out, err := g.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "Positive" {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(path, "gemini-test") {
		t.Fatalf("model missing from request path %q", path)
	}
}

func TestGeminiRequiresKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), GeminiOptions{}); !errors.Is(err, internalerr.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	if _, err := New(context.Background(), cfg); !errors.Is(err, internalerr.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}

	cfg.Generative.Provider = config.ProviderOpenAI
	cfg.Generative.BaseURL = "https://api.test/v1/chat/completions"
	cfg.Generative.Model = "gpt-test"
	cfg.Generative.APIKey = "sk-test"
	g, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c, ok := g.(*Client); !ok || c.Model != "gpt-test" || c.Name() != "openai:gpt-test" {
		t.Fatalf("unexpected generator %#v", g)
	}

	cfg.Generative.Provider = config.ProviderGemini
	cfg.Generative.BaseURL = ""
	g, err = New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New gemini: %v", err)
	}
	if gem, ok := g.(*Gemini); !ok || gem.Model() != "gpt-test" || gem.Name() != "gemini:gpt-test" {
		t.Fatalf("unexpected generator %#v", g)
	}
}
