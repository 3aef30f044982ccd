package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/cognicore/tabsense/pkg/tabsense/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu      sync.RWMutex
	entries map[store.Key]store.Entry
	now     func() time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		entries: make(map[store.Key]store.Entry),
		now:     time.Now,
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// GetResult returns a cached entry.
func (s *Store) GetResult(ctx context.Context, key store.Key) (store.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return store.Entry{}, false, nil
	}
	e.Tags = store.CopyTags(e.Tags)
	return e, true, nil
}

// PutResult inserts or replaces an entry.
func (s *Store) PutResult(ctx context.Context, e store.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	e.Tags = store.CopyTags(e.Tags)
	s.entries[e.Key] = e
	return nil
}

// Purge removes entries of one namespace, or all of them.
func (s *Store) Purge(ctx context.Context, namespace string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k := range s.entries {
		if namespace == "" || k.Namespace == namespace {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

// Stats reports entry counts.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := store.Stats{ByNamespace: make(map[string]int64)}
	for k := range s.entries {
		st.Entries++
		st.ByNamespace[k.Namespace]++
	}
	return st, nil
}
