package lexicon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
)

func TestLexiconNew(t *testing.T) {
	lex := New()
	if lex == nil {
		t.Fatal("New() returned nil")
	}
	if stats := lex.Stats(); stats != (Stats{}) {
		t.Errorf("new lexicon should be empty, got %+v", stats)
	}
}

func TestDefaultLexicon(t *testing.T) {
	lex := Default()
	stats := lex.Stats()
	if stats.Words < 50 || stats.Negations == 0 || stats.Intensifiers == 0 || stats.SynonymGroups == 0 {
		t.Fatalf("default lexicon looks incomplete: %+v", stats)
	}
	if w, ok := lex.Weight("Great"); !ok || w <= 0 {
		t.Errorf("Weight(Great) = %v, %v", w, ok)
	}
	if w, ok := lex.Weight("awful"); !ok || w >= 0 {
		t.Errorf("Weight(awful) = %v, %v", w, ok)
	}
	if !lex.IsNegation("not") || !lex.IsNegation("DON'T") || lex.IsNegation("great") {
		t.Error("unexpected negation handling")
	}
	if d, ok := lex.Intensifier("very"); !ok || d <= 0 {
		t.Errorf("Intensifier(very) = %v, %v", d, ok)
	}
	if d, ok := lex.Intensifier("slightly"); !ok || d >= 0 {
		t.Errorf("Intensifier(slightly) = %v, %v", d, ok)
	}
	if got := lex.Normalize("GR8"); got != "great" {
		t.Errorf("Normalize(GR8) = %q", got)
	}
}

func TestDefaultReturnsIndependentCopies(t *testing.T) {
	a := Default()
	if err := a.SetWeight("great", -1); err != nil {
		t.Fatal(err)
	}
	if w, _ := Default().Weight("great"); w <= 0 {
		t.Fatal("mutating one Default() result leaked into another")
	}
}

func TestLexiconAddSynonymGroup(t *testing.T) {
	lex := New()
	lex.AddSynonymGroup("good", []string{"gud", "Goood", "gud"})

	for _, in := range []string{"gud", "GOOOD", "good"} {
		if got := lex.Normalize(in); got != "good" {
			t.Errorf("Normalize(%q) = %q, want good", in, got)
		}
	}
	if got := lex.Variants("gud"); len(got) != 3 || got[0] != "good" {
		t.Errorf("Variants(gud) = %v", got)
	}

	lex.AddSynonymGroup("good", []string{"gd"})
	if got := lex.Normalize("gud"); got != "gud" {
		t.Errorf("replaced group still maps gud -> %q", got)
	}
	if got := lex.Normalize("unknown"); got != "unknown" {
		t.Errorf("Normalize(unknown) = %q", got)
	}
}

func TestSetWeightBounds(t *testing.T) {
	lex := New()
	if err := lex.SetWeight("meh", -0.3); err != nil {
		t.Fatal(err)
	}
	if err := lex.SetWeight("wow", 9); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	content := `words:
  Stellar: 2.5
  meh: -0.5
negations: [nope]
intensifiers:
  mega: 0.4
synonyms:
  - canonical: stellar
    variants: [stellr]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	lex, err := LoadFromYAML(path)
	if err != nil {
		t.Fatalf("LoadFromYAML: %v", err)
	}
	if w, ok := lex.Weight("stellar"); !ok || w != 2.5 {
		t.Errorf("Weight(stellar) = %v, %v", w, ok)
	}
	if !lex.IsNegation("nope") {
		t.Error("nope should negate")
	}
	if d, _ := lex.Intensifier("mega"); d != 0.4 {
		t.Errorf("Intensifier(mega) = %v", d)
	}
	if lex.Normalize("stellr") != "stellar" {
		t.Error("synonym not loaded")
	}
}

func TestLoadFromYAMLErrors(t *testing.T) {
	if _, err := LoadFromYAML(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	cases := map[string]string{
		"syntax":    "words: [",
		"weight":    "words:\n  huge: 12\n",
		"canonical": "synonyms:\n  - variants: [x]\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); !errors.Is(err, internalerr.ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}
