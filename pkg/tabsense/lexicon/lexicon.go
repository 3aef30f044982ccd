// Package lexicon holds the word list used by the rule-based sentiment
// scorer.
//
// A lexicon has four parts:
//   - weights: word -> valence, roughly in [-4, 4]
//   - negations: words that flip the valence of the words that follow
//   - intensifiers: word -> scalar added to the magnitude of the next
//     sentiment word (boosters are positive, dampeners negative)
//   - synonyms: spelling variants mapped to a canonical word ("gr8" -> "great")
//
// All entries are lowercase.
package lexicon

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
)

// MaxWeight bounds the absolute valence of a word.
const MaxWeight = 4.0

//go:embed default.yaml
var defaultYAML []byte

// Lexicon is a sentiment word list. It is not safe for concurrent
// mutation; build it first, then share it read-only.
type Lexicon struct {
	weights      map[string]float64
	negations    map[string]struct{}
	intensifiers map[string]float64

	// canonical -> variants (canonical first)
	synonyms map[string][]string
	// variant -> canonical
	reverseIndex map[string]string
}

// Stats summarises a lexicon's size.
type Stats struct {
	Words         int
	Negations     int
	Intensifiers  int
	SynonymGroups int
}

type document struct {
	Words        map[string]float64 `yaml:"words"`
	Negations    []string           `yaml:"negations"`
	Intensifiers map[string]float64 `yaml:"intensifiers"`
	Synonyms     []struct {
		Canonical string   `yaml:"canonical"`
		Variants  []string `yaml:"variants"`
	} `yaml:"synonyms"`
}

// New creates an empty lexicon.
func New() *Lexicon {
	return &Lexicon{
		weights:      make(map[string]float64),
		negations:    make(map[string]struct{}),
		intensifiers: make(map[string]float64),
		synonyms:     make(map[string][]string),
		reverseIndex: make(map[string]string),
	}
}

// Default returns a fresh copy of the built-in English lexicon.
func Default() *Lexicon {
	lex, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("lexicon: built-in lexicon is invalid: %v", err))
	}
	return lex
}

// LoadFromYAML reads a lexicon file.
//
// Expected format:
//
//	words:
//	  great: 3.1
//	  awful: -3.4
//	negations: [not, never, "don't"]
//	intensifiers:
//	  very: 0.293
//	  slightly: -0.293
//	synonyms:
//	  - canonical: great
//	    variants: [gr8, grt]
func LoadFromYAML(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lex, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lex, nil
}

// Parse decodes a lexicon document.
func Parse(data []byte) (*Lexicon, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: lexicon: %v", internalerr.ErrInvalidConfig, err)
	}

	lex := New()
	for w, v := range doc.Words {
		if err := lex.SetWeight(w, v); err != nil {
			return nil, err
		}
	}
	for _, w := range doc.Negations {
		lex.AddNegation(w)
	}
	for w, v := range doc.Intensifiers {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: lexicon: intensifier %q is not finite", internalerr.ErrInvalidConfig, w)
		}
		lex.SetIntensifier(w, v)
	}
	for _, s := range doc.Synonyms {
		if strings.TrimSpace(s.Canonical) == "" {
			return nil, fmt.Errorf("%w: lexicon: synonym group without canonical word", internalerr.ErrInvalidConfig)
		}
		lex.AddSynonymGroup(s.Canonical, s.Variants)
	}
	return lex, nil
}

// SetWeight assigns a valence to a word.
func (l *Lexicon) SetWeight(word string, weight float64) error {
	if math.IsNaN(weight) || math.Abs(weight) > MaxWeight {
		return fmt.Errorf("%w: lexicon: weight %v for %q outside [-%v, %v]",
			internalerr.ErrInvalidConfig, weight, word, MaxWeight, MaxWeight)
	}
	l.weights[key(word)] = weight
	return nil
}

// Weight returns the valence of a word.
func (l *Lexicon) Weight(word string) (float64, bool) {
	w, ok := l.weights[key(word)]
	return w, ok
}

// AddNegation registers a negating word.
func (l *Lexicon) AddNegation(word string) {
	l.negations[key(word)] = struct{}{}
}

// IsNegation reports whether word negates what follows. Contractions
// ending in "n't" always do.
func (l *Lexicon) IsNegation(word string) bool {
	word = key(word)
	if _, ok := l.negations[word]; ok {
		return true
	}
	return strings.HasSuffix(word, "n't")
}

// SetIntensifier assigns a booster (positive) or dampener (negative).
func (l *Lexicon) SetIntensifier(word string, delta float64) {
	l.intensifiers[key(word)] = delta
}

// Intensifier returns the scalar of an intensifying word.
func (l *Lexicon) Intensifier(word string) (float64, bool) {
	d, ok := l.intensifiers[key(word)]
	return d, ok
}

// AddSynonymGroup adds a canonical word and its variants. An existing
// group for the same canonical word is replaced.
func (l *Lexicon) AddSynonymGroup(canonical string, variants []string) {
	canonical = key(canonical)

	if old, exists := l.synonyms[canonical]; exists {
		for _, v := range old {
			delete(l.reverseIndex, v)
		}
	}

	group := []string{canonical}
	seen := map[string]bool{canonical: true}
	for _, v := range variants {
		v = key(v)
		if v != "" && !seen[v] {
			group = append(group, v)
			seen[v] = true
		}
	}

	l.synonyms[canonical] = group
	for _, v := range group {
		l.reverseIndex[v] = canonical
	}
}

// Normalize returns the canonical form of a token, or the lowercased
// token itself.
func (l *Lexicon) Normalize(token string) string {
	token = key(token)
	if canonical, ok := l.reverseIndex[token]; ok {
		return canonical
	}
	return token
}

// Variants returns the synonym group containing word, canonical first.
func (l *Lexicon) Variants(word string) []string {
	canonical := l.Normalize(word)
	if group, ok := l.synonyms[canonical]; ok {
		return append([]string(nil), group...)
	}
	return []string{canonical}
}

// Stats reports the lexicon's size.
func (l *Lexicon) Stats() Stats {
	return Stats{
		Words:         len(l.weights),
		Negations:     len(l.negations),
		Intensifiers:  len(l.intensifiers),
		SynonymGroups: len(l.synonyms),
	}
}

func key(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}
