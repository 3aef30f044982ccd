// Package enrich runs row-wise classifiers over a table column and
// appends their results as new columns.
package enrich

import (
	"context"
	"strings"
)

// Sentiment labels.
const (
	LabelPositive = "Positive"
	LabelNeutral  = "Neutral"
	LabelNegative = "Negative"
)

// Bucket thresholds on the positive-class probability.
const (
	PositiveThreshold = 0.6
	NegativeThreshold = 0.4
)

// Labels lists the sentiment labels in display order.
var Labels = []string{LabelPositive, LabelNeutral, LabelNegative}

// Result is one classification. For sentiment, Label is one of Labels and
// Score the positive-class probability in [0,1]. For tagging, Tags holds
// presence per tag.
type Result struct {
	Label string          `json:"label"`
	Score float64         `json:"score"`
	Tags  map[string]bool `json:"tags,omitempty"`
}

// Enricher classifies one text. Implementations must be safe for
// concurrent use; the Runner calls Classify from many goroutines.
type Enricher interface {
	Classify(ctx context.Context, text string) (Result, error)
	// Name identifies the enricher in logs, reports and cache keys.
	Name() string
}

// Bucket maps a positive-class probability to a sentiment label.
func Bucket(p float64) string {
	switch {
	case p >= PositiveThreshold:
		return LabelPositive
	case p <= NegativeThreshold:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

// NormalizeLabel maps free-form label spellings ("POSITIVE", "neg") to a
// sentiment label. ok is false when the text is not recognised.
func NormalizeLabel(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "pos":
		return LabelPositive, true
	case "negative", "neg":
		return LabelNegative, true
	case "neutral", "neu", "mixed":
		return LabelNeutral, true
	}
	return "", false
}

type funcEnricher struct {
	name string
	fn   func(ctx context.Context, text string) (Result, error)
}

// Func adapts a function to the Enricher interface.
func Func(name string, fn func(ctx context.Context, text string) (Result, error)) Enricher {
	return funcEnricher{name: name, fn: fn}
}

func (f funcEnricher) Classify(ctx context.Context, text string) (Result, error) {
	return f.fn(ctx, text)
}

func (f funcEnricher) Name() string { return f.name }
