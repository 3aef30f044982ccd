// Package storetest holds behaviour tests shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/cognicore/tabsense/pkg/tabsense/store"
)

// Run exercises a store returned by open. open is called once per subtest.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("Miss", func(t *testing.T) {
		st := open(t)
		_, found, err := st.GetResult(context.Background(), store.Key{Namespace: "rules", Digest: "abc"})
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("empty store reported a hit")
		}
	})

	t.Run("PutGetReplace", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)
		key := store.Key{Namespace: "tagger", Digest: "d1"}

		in := store.Entry{Key: key, Label: "Pricing", Score: 0.5, Tags: map[string]bool{"Pricing": true, "Support": false}}
		if err := st.PutResult(ctx, in); err != nil {
			t.Fatalf("PutResult: %v", err)
		}
		in.Tags["Pricing"] = false // caller mutation must not leak into the store

		got, found, err := st.GetResult(ctx, key)
		if err != nil || !found {
			t.Fatalf("GetResult: found=%v err=%v", found, err)
		}
		if got.Label != "Pricing" || got.Score != 0.5 || !got.Tags["Pricing"] || got.Tags["Support"] || len(got.Tags) != 2 {
			t.Fatalf("unexpected entry %+v", got)
		}
		if got.CreatedAt.IsZero() {
			t.Error("CreatedAt should be set")
		}

		if err := st.PutResult(ctx, store.Entry{Key: key, Label: "None", Score: 0}); err != nil {
			t.Fatal(err)
		}
		got, _, _ = st.GetResult(ctx, key)
		if got.Label != "None" || got.Tags != nil {
			t.Fatalf("entry not replaced: %+v", got)
		}
	})

	t.Run("PurgeAndStats", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)
		for i := 0; i < 3; i++ {
			_ = st.PutResult(ctx, store.Entry{Key: store.Key{Namespace: "a", Digest: fmt.Sprint(i)}, Label: "x"})
		}
		_ = st.PutResult(ctx, store.Entry{Key: store.Key{Namespace: "b", Digest: "0"}, Label: "y"})

		stats, err := st.Stats(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if stats.Entries != 4 || stats.ByNamespace["a"] != 3 || stats.ByNamespace["b"] != 1 {
			t.Fatalf("unexpected stats %+v", stats)
		}

		n, err := st.Purge(ctx, "a")
		if err != nil || n != 3 {
			t.Fatalf("Purge(a) = %d, %v", n, err)
		}
		if _, found, _ := st.GetResult(ctx, store.Key{Namespace: "b", Digest: "0"}); !found {
			t.Fatal("Purge(a) removed entries of b")
		}
		n, err = st.Purge(ctx, "")
		if err != nil || n != 1 {
			t.Fatalf("Purge(all) = %d, %v", n, err)
		}
	})

	t.Run("Concurrent", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := store.Key{Namespace: "c", Digest: fmt.Sprint(i % 4)}
				if err := st.PutResult(ctx, store.Entry{Key: key, Label: "Positive", Score: 0.9}); err != nil {
					t.Errorf("PutResult: %v", err)
				}
				if _, _, err := st.GetResult(ctx, key); err != nil {
					t.Errorf("GetResult: %v", err)
				}
			}(i)
		}
		wg.Wait()

		stats, _ := st.Stats(ctx)
		if stats.Entries != 4 {
			t.Fatalf("expected 4 entries, got %d", stats.Entries)
		}
	})
}
