package enrich

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/cognicore/tabsense/pkg/tabsense/store"
)

type cached struct {
	next  Enricher
	store store.Store
}

// Cached memoises successful results of e in st, keyed by e.Name() and
// the SHA-256 of the text. Failures are never cached. Cache errors fall
// through to e.
func Cached(e Enricher, st store.Store) Enricher {
	return &cached{next: e, store: st}
}

func (c *cached) Name() string { return c.next.Name() }

func (c *cached) Classify(ctx context.Context, text string) (Result, error) {
	key := CacheKey(c.next.Name(), text)
	if e, found, err := c.store.GetResult(ctx, key); err == nil && found {
		return Result{Label: e.Label, Score: e.Score, Tags: e.Tags}, nil
	}

	res, err := c.next.Classify(ctx, text)
	if err != nil {
		return Result{}, err
	}
	_ = c.store.PutResult(ctx, store.Entry{
		Key:   key,
		Label: res.Label,
		Score: res.Score,
		Tags:  res.Tags,
	})
	return res, nil
}

// CacheKey returns the store key for an enricher and a text.
func CacheKey(name, text string) store.Key {
	sum := sha256.Sum256([]byte(text))
	return store.Key{Namespace: name, Digest: hex.EncodeToString(sum[:])}
}
