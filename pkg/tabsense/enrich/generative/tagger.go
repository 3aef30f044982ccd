package generative

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cognicore/tabsense/pkg/tabsense/enrich"
	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
)

// NoTags is the label of a row none of the tags apply to.
const NoTags = "None"

const tagPrompt = `Decide which of these tags apply to the text: %s.
Respond with only a JSON object that has exactly these keys, each mapped to true or false:
%s

Text:
%s`

// Tagger asks a Generator for one boolean per tag.
type Tagger struct {
	Generator Generator
	Tags      []string
}

// Name implements enrich.Enricher. The tag set is part of the name, JSON
// encoded so tags containing commas stay distinct, and cached verdicts are
// never reused for a different set.
func (t *Tagger) Name() string {
	set, _ := json.Marshal(t.Tags)
	return qualify("generative:tags:"+string(set), t.Generator)
}

// Classify implements enrich.Enricher. The answer's keys must be exactly
// the tag set and every value a boolean ("true"/"false" strings are
// accepted). Label lists the present tags, Score is the fraction present.
func (t *Tagger) Classify(ctx context.Context, text string) (enrich.Result, error) {
	if len(t.Tags) == 0 {
		return enrich.Result{}, fmt.Errorf("%w: tagger has no tags", internalerr.ErrInvalidConfig)
	}
	out, err := t.Generator.Generate(ctx, t.prompt(text))
	if err != nil {
		return enrich.Result{}, err
	}
	return t.parse(out)
}

func (t *Tagger) prompt(text string) string {
	example := make(map[string]bool, len(t.Tags))
	for _, tag := range t.Tags {
		example[tag] = false
	}
	shape, _ := json.Marshal(example)
	return fmt.Sprintf(tagPrompt, strings.Join(t.Tags, ", "), shape, text)
}

func (t *Tagger) parse(out string) (enrich.Result, error) {
	data, err := ExtractJSON(out)
	if err != nil {
		return enrich.Result{}, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return enrich.Result{}, fmt.Errorf("%w: %v", internalerr.ErrResponseParse, err)
	}
	if len(raw) != len(t.Tags) {
		return enrich.Result{}, fmt.Errorf("%w: answer has %d keys, want %d", internalerr.ErrResponseParse, len(raw), len(t.Tags))
	}

	tags := make(map[string]bool, len(t.Tags))
	var present []string
	for _, tag := range t.Tags {
		v, ok := raw[tag]
		if !ok {
			return enrich.Result{}, fmt.Errorf("%w: answer is missing tag %q", internalerr.ErrResponseParse, tag)
		}
		b, err := parseBool(v)
		if err != nil {
			return enrich.Result{}, fmt.Errorf("%w: tag %q: %v", internalerr.ErrResponseParse, tag, err)
		}
		tags[tag] = b
		if b {
			present = append(present, tag)
		}
	}

	label := NoTags
	if len(present) > 0 {
		label = strings.Join(present, ", ")
	}
	return enrich.Result{
		Label: label,
		Score: float64(len(present)) / float64(len(t.Tags)),
		Tags:  tags,
	}, nil
}

func parseBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, fmt.Errorf("value %s is not a boolean", strconv.Quote(string(raw)))
}
