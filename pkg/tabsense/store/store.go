// Package store defines the cache that memoises enrichment results.
//
// The cache is never a source of truth for tables. It only saves repeated
// remote calls for text that was already classified by the same enricher.
package store

import (
	"context"
	"time"
)

// Store persists enrichment results keyed by enricher and text digest.
// Implementations must be safe for concurrent use.
type Store interface {
	Close() error

	GetResult(ctx context.Context, key Key) (Entry, bool, error)
	PutResult(ctx context.Context, e Entry) error
	// Purge removes every entry of a namespace, or all entries when
	// namespace is empty. It returns the number of entries removed.
	Purge(ctx context.Context, namespace string) (int64, error)
	Stats(ctx context.Context) (Stats, error)
}

// Key identifies a cached result.
type Key struct {
	Namespace string // enricher name
	Digest    string // hex SHA-256 of the input text
}

// Entry is a cached enrichment result.
type Entry struct {
	Key
	Label     string
	Score     float64
	Tags      map[string]bool
	CreatedAt time.Time
}

// Stats reports cache size per namespace.
type Stats struct {
	Entries     int64
	ByNamespace map[string]int64
}

// CopyTags returns an independent copy of a tag map.
func CopyTags(tags map[string]bool) map[string]bool {
	if tags == nil {
		return nil
	}
	out := make(map[string]bool, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
