// Package rules implements a local, lexicon-based sentiment Enricher.
package rules

import (
	"context"
	"math"

	"github.com/cognicore/tabsense/pkg/tabsense/enrich"
	"github.com/cognicore/tabsense/pkg/tabsense/ingest"
	"github.com/cognicore/tabsense/pkg/tabsense/lexicon"
)

const (
	// negationScope is how many tokens after a negation are flipped.
	negationScope = 3
	// negationFactor scales a negated valence; a negated word is weaker
	// than its opposite.
	negationFactor = -0.74
	// alpha controls how fast the normalised score saturates.
	alpha = 15.0
)

// Scorer scores text against a sentiment lexicon. It never fails and
// performs no I/O.
type Scorer struct {
	lex       *lexicon.Lexicon
	tokenizer *ingest.Tokenizer
}

// New creates a scorer. A nil lexicon means lexicon.Default().
func New(lex *lexicon.Lexicon) *Scorer {
	if lex == nil {
		lex = lexicon.Default()
	}
	tok := ingest.NewTokenizer(nil)
	tok.SetLexicon(lex)
	return &Scorer{lex: lex, tokenizer: tok}
}

// Name implements enrich.Enricher.
func (s *Scorer) Name() string { return "rules" }

// Classify implements enrich.Enricher.
func (s *Scorer) Classify(ctx context.Context, text string) (enrich.Result, error) {
	p := Positivity(s.Raw(text))
	return enrich.Result{Label: enrich.Bucket(p), Score: p}, nil
}

// Raw returns the unnormalised valence sum of text.
//
// Each sentiment word contributes its weight, increased in magnitude by a
// directly preceding intensifier and flipped (and damped) when one of the
// previous negationScope tokens is a negation.
func (s *Scorer) Raw(text string) float64 {
	tokens := s.tokenizer.Tokenize(text)

	var sum float64
	negatedUntil := -1
	for i, tok := range tokens {
		if s.lex.IsNegation(tok) {
			negatedUntil = i + negationScope
			continue
		}
		w, ok := s.lex.Weight(tok)
		if !ok {
			continue
		}
		if i > 0 {
			if d, ok := s.lex.Intensifier(tokens[i-1]); ok {
				if w < 0 {
					w -= d
				} else {
					w += d
				}
			}
		}
		if i <= negatedUntil {
			w *= negationFactor
		}
		sum += w
	}
	return sum
}

// Normalize maps a raw valence sum into [-1, 1].
func Normalize(x float64) float64 {
	return x / math.Sqrt(x*x+alpha)
}

// Positivity maps a raw valence sum to a positive-class probability.
func Positivity(x float64) float64 {
	return (Normalize(x) + 1) / 2
}
