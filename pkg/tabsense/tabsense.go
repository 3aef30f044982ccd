// Package tabsense is the facade over the enrichment pipeline: parse a
// table, select columns, add sentiment and tag columns, summarise them per
// identifier and export the result.
package tabsense

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/cognicore/tabsense/internal/llm"
	"github.com/cognicore/tabsense/pkg/tabsense/aggregate"
	"github.com/cognicore/tabsense/pkg/tabsense/config"
	"github.com/cognicore/tabsense/pkg/tabsense/csvio"
	"github.com/cognicore/tabsense/pkg/tabsense/enrich"
	"github.com/cognicore/tabsense/pkg/tabsense/enrich/generative"
	"github.com/cognicore/tabsense/pkg/tabsense/enrich/remote"
	"github.com/cognicore/tabsense/pkg/tabsense/enrich/rules"
	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
	"github.com/cognicore/tabsense/pkg/tabsense/lexicon"
	"github.com/cognicore/tabsense/pkg/tabsense/store"
	"github.com/cognicore/tabsense/pkg/tabsense/store/sqlite"
	"github.com/cognicore/tabsense/pkg/tabsense/table"
)

// Mode selects the sentiment enricher.
type Mode string

// Sentiment modes.
const (
	ModeRules      Mode = "rules"
	ModeRemote     Mode = "remote"
	ModeGenerative Mode = "generative"
)

// ParseMode maps a mode name to a Mode; empty means ModeRules.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeRules, nil
	case ModeRules, ModeRemote, ModeGenerative:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown sentiment mode %q", internalerr.ErrInvalidConfig, s)
}

// Engine wires the pipeline stages to their configuration.
type Engine struct {
	cfg    *config.Config
	logger *zap.Logger
	runner *enrich.Runner
	rules  *rules.Scorer

	store     store.Store
	ownsStore bool

	httpClient *http.Client

	genMu        sync.Mutex
	gen          generative.Generator
	newGenerator func(ctx context.Context) (generative.Generator, error)
}

// Options configures an Engine. Only Config is required.
type Options struct {
	Config *config.Config
	Logger *zap.Logger

	// Store caches enrichment results. When nil and the cache is enabled,
	// a SQLite store is opened at Config.Cache.Path and closed by Close.
	Store store.Store
	// Generator overrides the configured text-generation backend.
	Generator generative.Generator
	// HTTPClient is used for the remote classifier.
	HTTPClient *http.Client
}

// New builds an Engine. Credentials are not checked here; a stage that
// needs one fails with ErrMissingCredential when it runs.
func New(ctx context.Context, opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	lex := lexicon.Default()
	if cfg.Lexicon != "" {
		loaded, err := lexicon.LoadFromYAML(cfg.Lexicon)
		if err != nil {
			return nil, fmt.Errorf("load lexicon: %w", err)
		}
		lex = loaded
	}

	e := &Engine{
		cfg:    cfg,
		logger: logger,
		runner: &enrich.Runner{
			Concurrency: cfg.Runner.Concurrency,
			Timeout:     cfg.Runner.Timeout,
			Logger:      logger.Named("runner"),
		},
		rules:      rules.New(lex),
		store:      opts.Store,
		httpClient: opts.HTTPClient,
		gen:        opts.Generator,
		newGenerator: func(ctx context.Context) (generative.Generator, error) {
			return llm.New(ctx, cfg)
		},
	}
	if e.store == nil && cfg.Cache.Enabled {
		st, err := sqlite.OpenSQLite(ctx, cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("open result cache: %w", err)
		}
		e.store, e.ownsStore = st, true
	}
	return e, nil
}

// Close releases the result cache if the Engine opened it.
func (e *Engine) Close() error {
	if e.ownsStore && e.store != nil {
		return e.store.Close()
	}
	return nil
}

// Config returns the configuration the Engine was built with.
func (e *Engine) Config() *config.Config { return e.cfg }

// Store returns the result cache, or nil when caching is disabled.
func (e *Engine) Store() store.Store { return e.store }

// Parse reads CSV text into a table.
func (e *Engine) Parse(r io.Reader) (*table.Table, []csvio.Warning, error) {
	t, warnings, err := csvio.Parse(r)
	if err != nil {
		return nil, warnings, err
	}
	if len(warnings) > 0 {
		e.logger.Info("parsed with warnings", zap.Int("rows", t.Len()), zap.Int("warnings", len(warnings)))
	}
	return t, warnings, nil
}

// Select projects t onto columns.
func (e *Engine) Select(t *table.Table, columns ...string) (*table.Table, error) {
	return t.Select(columns...)
}

// Sentiment adds the sentiment label and score columns computed from
// column. Rows that fail carry Unknown and 0 and are listed in the report.
func (e *Engine) Sentiment(ctx context.Context, t *table.Table, column string, mode Mode) (*table.Table, *enrich.Report, error) {
	en, err := e.SentimentEnricher(ctx, mode)
	if err != nil {
		return nil, nil, err
	}
	layout := enrich.SentimentLayout(enrich.DefaultLabelColumn, enrich.DefaultScoreColumn)
	if mode != ModeRules && mode != "" {
		en = e.cached(en)
	}
	return e.runner.Run(ctx, t, column, en, layout)
}

// Tags adds one boolean column per tag, decided by the generative model.
func (e *Engine) Tags(ctx context.Context, t *table.Table, column string, tags []string) (*table.Table, *enrich.Report, error) {
	tags, err := e.ResolveTags(tags)
	if err != nil {
		return nil, nil, err
	}
	for _, tag := range tags {
		if t != nil && t.Has(tag) && !isTagColumn(t, tag) {
			return nil, nil, fmt.Errorf("%w: tag %q would overwrite a data column", internalerr.ErrDuplicateColumn, tag)
		}
	}
	g, err := e.generator(ctx)
	if err != nil {
		return nil, nil, err
	}
	tagger := &generative.Tagger{Generator: g, Tags: tags}
	return e.runner.Run(ctx, t, column, e.cached(tagger), enrich.TagLayout(tags))
}

// Summary is the aggregate view of an enriched table.
type Summary struct {
	// Table has one row per identifier: rows, mean sentiment score, label
	// counts and, when tags were given, per-tag counts.
	Table *table.Table `json:"table"`
	// Totals has the overall count per sentiment label.
	Totals *table.Table `json:"totals"`
}

// Summarize aggregates the sentiment columns of t per identifier and, when
// tags are given, merges in the tag counts. Identifiers missing from
// either view are dropped.
func (e *Engine) Summarize(t *table.Table, id string, tags []string) (*Summary, error) {
	sum, err := aggregate.SentimentSummary(t, id, enrich.DefaultLabelColumn, enrich.DefaultScoreColumn)
	if err != nil {
		return nil, err
	}
	if len(tags) > 0 {
		tagSum, err := aggregate.TagSummary(t, id, tags)
		if err != nil {
			return nil, err
		}
		if sum, err = aggregate.Merge(sum, tagSum, id); err != nil {
			return nil, err
		}
	}
	totals, err := aggregate.Totals(t, enrich.DefaultLabelColumn, enrich.Labels)
	if err != nil {
		return nil, err
	}
	return &Summary{Table: sum, Totals: totals}, nil
}

// Insights asks the generative model for an executive summary of an
// aggregate table.
func (e *Engine) Insights(ctx context.Context, summary *table.Table, id string) (string, error) {
	g, err := e.generator(ctx)
	if err != nil {
		return "", err
	}
	return generative.Summarize(ctx, g, summary, id)
}

// Export renders t as CSV.
func (e *Engine) Export(t *table.Table) ([]byte, error) {
	return csvio.Export(t)
}

// SentimentEnricher returns the uncached enricher for mode.
func (e *Engine) SentimentEnricher(ctx context.Context, mode Mode) (enrich.Enricher, error) {
	switch mode {
	case ModeRules, "":
		return e.rules, nil
	case ModeRemote:
		key, err := e.cfg.RemoteAPIKey()
		if err != nil {
			return nil, err
		}
		rc := e.cfg.Remote
		return &remote.Client{
			BaseURL:      rc.BaseURL,
			Model:        rc.Model,
			APIKey:       key,
			WaitForModel: rc.WaitForModel,
			HTTPClient:   e.httpClient,
		}, nil
	case ModeGenerative:
		g, err := e.generator(ctx)
		if err != nil {
			return nil, err
		}
		return &generative.Sentiment{Generator: g}, nil
	}
	return nil, fmt.Errorf("%w: unknown sentiment mode %q", internalerr.ErrInvalidConfig, mode)
}

func (e *Engine) cached(en enrich.Enricher) enrich.Enricher {
	if e.store == nil {
		return en
	}
	return enrich.Cached(en, e.store)
}

// generator builds the configured generator on first use so a missing
// credential only matters to generative stages.
func (e *Engine) generator(ctx context.Context) (generative.Generator, error) {
	e.genMu.Lock()
	defer e.genMu.Unlock()
	if e.gen != nil {
		return e.gen, nil
	}
	g, err := e.newGenerator(ctx)
	if err != nil {
		return nil, err
	}
	e.gen = g
	return g, nil
}

// ResolveTags normalises a tag list, falling back to the configured tag
// set file when tags is empty. Tags may not use the names of the sentiment
// or summary columns.
func (e *Engine) ResolveTags(tags []string) ([]string, error) {
	var err error
	switch {
	case len(tags) == 0 && e.cfg.TagsFile != "":
		var ts *config.TagSet
		if ts, err = config.LoadTagSet(e.cfg.TagsFile); err != nil {
			return nil, err
		}
		tags = ts.Tags
	case len(tags) == 0:
		return nil, fmt.Errorf("%w: no tags given", internalerr.ErrEmptySelection)
	default:
		if tags, err = config.NormalizeTags(tags); err != nil {
			return nil, err
		}
	}
	for _, tag := range tags {
		if reservedColumns[tag] {
			return nil, fmt.Errorf("%w: tag %q is a reserved column name", internalerr.ErrDuplicateColumn, tag)
		}
	}
	return tags, nil
}

var reservedColumns = func() map[string]bool {
	names := []string{
		enrich.DefaultLabelColumn,
		enrich.DefaultScoreColumn,
		aggregate.RowsColumn,
		aggregate.UnknownLabel,
	}
	m := make(map[string]bool, len(names)+len(enrich.Labels))
	for _, n := range append(names, enrich.Labels...) {
		m[n] = true
	}
	return m
}()

// isTagColumn reports whether column holds only booleans and Unknown, as
// written by an earlier tagging run.
func isTagColumn(t *table.Table, column string) bool {
	values, err := t.Column(column)
	if err != nil {
		return false
	}
	for _, v := range values {
		if _, ok := v.Truth(); !ok && !v.Equal(table.Unknown) {
			return false
		}
	}
	return true
}
