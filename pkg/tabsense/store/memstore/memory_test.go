package memstore

import (
	"testing"

	"github.com/cognicore/tabsense/pkg/tabsense/store"
	"github.com/cognicore/tabsense/pkg/tabsense/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New()
	})
}
