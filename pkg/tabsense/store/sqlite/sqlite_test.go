package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cognicore/tabsense/pkg/tabsense/store"
	"github.com/cognicore/tabsense/pkg/tabsense/store/storetest"
)

func TestStoreInMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		st, err := OpenSQLite(context.Background(), MemoryPath)
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		t.Cleanup(func() { st.Close() })
		return st
	})
}

func TestStoreOnDisk(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		st, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		t.Cleanup(func() { st.Close() })
		return st
	})
}

func TestReopenKeepsEntries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	st, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	key := store.Key{Namespace: "remote", Digest: "abc"}
	if err := st.PutResult(ctx, store.Entry{Key: key, Label: "Negative", Score: 0.1}); err != nil {
		t.Fatal(err)
	}
	st.Close()

	st, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	got, found, err := st.GetResult(ctx, key)
	if err != nil || !found || got.Label != "Negative" {
		t.Fatalf("reopened store: %+v found=%v err=%v", got, found, err)
	}
}
