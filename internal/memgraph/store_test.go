package memgraph

import (
	"testing"

	"github.com/specialistvlad/graphjob/internal/graphstore"
	"github.com/specialistvlad/graphjob/internal/graphstore/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) graphstore.Store {
		return New()
	})
}
