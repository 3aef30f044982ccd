// Package generative builds enrichers on top of a text-generation model:
// sentiment with a prose fallback, boolean tagging against a fixed tag set
// and executive summaries of aggregate tables.
package generative

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
)

// Generator completes a prompt. Implementations wrap transport failures in
// internalerr.ErrRemoteService.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// generatorName returns g's Name when it has one. Enricher names embed it
// so cached verdicts are kept apart per backend and model.
func generatorName(g Generator) string {
	if n, ok := g.(interface{ Name() string }); ok {
		return n.Name()
	}
	return ""
}

func qualify(name string, g Generator) string {
	if gn := generatorName(g); gn != "" {
		return name + "@" + gn
	}
	return name
}

// ExtractJSON returns the first complete JSON object in a model answer,
// ignoring code fences and surrounding prose.
func ExtractJSON(text string) ([]byte, error) {
	s := stripFences(text)
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end := matchBrace(s, start); end > start {
			candidate := s[start : end+1]
			if json.Valid([]byte(candidate)) {
				return []byte(candidate), nil
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, fmt.Errorf("%w: no JSON object in model answer %.80q", internalerr.ErrResponseParse, text)
}

// stripFences removes a ```json ... ``` wrapper when present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	open := strings.Index(s, "```")
	if open < 0 {
		return s
	}
	body := s[open+3:]
	// drop the language tag line ("json") unless the object starts on it
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.Contains(body[:nl], "{") {
		body = body[nl+1:]
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// matchBrace returns the index of the brace closing the one at start, or
// -1. Braces inside JSON strings are ignored.
func matchBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
