package ingest

import (
	"strings"
	"unicode"

	"github.com/cognicore/tabsense/pkg/tabsense/lexicon"
)

// Tokenizer splits cell text into lowercase word tokens.
type Tokenizer struct {
	stopwords map[string]struct{}
	lexicon   *lexicon.Lexicon // optional, maps spelling variants to canonical words
}

// NewTokenizer creates a tokenizer that drops the given stopwords.
func NewTokenizer(stopwords []string) *Tokenizer {
	stops := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		stops[strings.ToLower(w)] = struct{}{}
	}
	return &Tokenizer{stopwords: stops}
}

// SetLexicon assigns a lexicon used to normalise variants
// ("gr8" -> "great") before stopword filtering.
func (t *Tokenizer) SetLexicon(lex *lexicon.Lexicon) {
	t.lexicon = lex
}

// Tokenize strips markup, then splits on anything that is not a letter,
// digit, hyphen or in-word apostrophe. Single characters and pure numbers
// are dropped.
func (t *Tokenizer) Tokenize(text string) []string {
	text = StripMarkup(text)

	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() == 0 {
			return
		}
		if word := t.processToken(current.String()); word != "" {
			tokens = append(tokens, word)
		}
		current.Reset()
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-':
			current.WriteRune(unicode.ToLower(r))
		case r == '\'' || r == '’':
			current.WriteRune('\'')
		default:
			flush()
		}
	}
	flush()

	return tokens
}

func (t *Tokenizer) processToken(token string) string {
	word := cleanToken(token)
	if len(word) <= 1 || isNumericOnly(word) {
		return ""
	}
	if t.lexicon != nil {
		word = t.lexicon.Normalize(word)
	}
	if _, stop := t.stopwords[word]; stop {
		return ""
	}
	return word
}

// cleanToken trims edge hyphens and apostrophes and collapses "--".
func cleanToken(token string) string {
	token = strings.Trim(token, "-'")
	for strings.Contains(token, "--") {
		token = strings.ReplaceAll(token, "--", "-")
	}
	return token
}

func isNumericOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '-' {
			return false
		}
	}
	return true
}

// AddStopword adds a word to the stopword list.
func (t *Tokenizer) AddStopword(word string) {
	t.stopwords[strings.ToLower(word)] = struct{}{}
}

// RemoveStopword removes a word from the stopword list.
func (t *Tokenizer) RemoveStopword(word string) {
	delete(t.stopwords, strings.ToLower(word))
}
