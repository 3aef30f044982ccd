package generative

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cognicore/tabsense/pkg/tabsense/enrich"
	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
)

// Scores used when the model names a sentiment but gives no usable score.
const (
	fallbackPositive = 0.75
	fallbackNeutral  = 0.5
	fallbackNegative = 0.25
)

const sentimentPrompt = `Classify the sentiment of the following text.
Respond with only a JSON object of the form {"label": "positive" | "neutral" | "negative", "score": <probability from 0 to 1 that the text is positive>}.

Text:
%s`

// Sentiment asks a Generator for a sentiment verdict.
type Sentiment struct {
	Generator Generator
}

// Name implements enrich.Enricher.
func (s *Sentiment) Name() string { return qualify("generative:sentiment", s.Generator) }

// Classify implements enrich.Enricher. A JSON answer is preferred; a prose
// answer mentioning "positive", "negative" or "neutral" is accepted with a
// fixed score.
func (s *Sentiment) Classify(ctx context.Context, text string) (enrich.Result, error) {
	out, err := s.Generator.Generate(ctx, fmt.Sprintf(sentimentPrompt, text))
	if err != nil {
		return enrich.Result{}, err
	}
	if res, ok := parseSentimentJSON(out); ok {
		return res, nil
	}
	return parseSentimentProse(out)
}

func parseSentimentJSON(out string) (enrich.Result, bool) {
	data, err := ExtractJSON(out)
	if err != nil {
		return enrich.Result{}, false
	}
	var v struct {
		Label string   `json:"label"`
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return enrich.Result{}, false
	}
	label, ok := enrich.NormalizeLabel(v.Label)
	if !ok {
		return enrich.Result{}, false
	}
	if v.Score != nil && *v.Score >= 0 && *v.Score <= 1 {
		return enrich.Result{Label: label, Score: *v.Score}, true
	}
	return enrich.Result{Label: label, Score: fallbackScore(label)}, true
}

func parseSentimentProse(out string) (enrich.Result, error) {
	lower := strings.ToLower(out)
	switch {
	case strings.Contains(lower, "positive"):
		return enrich.Result{Label: enrich.LabelPositive, Score: fallbackPositive}, nil
	case strings.Contains(lower, "negative"):
		return enrich.Result{Label: enrich.LabelNegative, Score: fallbackNegative}, nil
	case strings.Contains(lower, "neutral"), strings.Contains(lower, "mixed"):
		return enrich.Result{Label: enrich.LabelNeutral, Score: fallbackNeutral}, nil
	}
	return enrich.Result{}, fmt.Errorf("%w: no sentiment in model answer %.80q", internalerr.ErrResponseParse, out)
}

func fallbackScore(label string) float64 {
	switch label {
	case enrich.LabelPositive:
		return fallbackPositive
	case enrich.LabelNegative:
		return fallbackNegative
	}
	return fallbackNeutral
}
