package typetracker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker(t *testing.T) {
	tr := New()
	tr.Register("users", "acme_user")
	tr.Register("users", "acme_user")
	tr.Register("users", "acme_account")
	tr.RegisterN("groups", "acme_group", 3)

	assert.Equal(t, []string{"acme_account", "acme_user"}, tr.EncounteredTypes("users"))
	assert.Empty(t, tr.EncounteredTypes("unknown"))
	assert.Equal(t, []string{"acme_account", "acme_group", "acme_user"}, tr.AllEncounteredTypes())
	assert.Equal(t, []TypeCount{{"acme_account", 1}, {"acme_user", 2}}, tr.Summary("users"))
	assert.Equal(t, []string{"acme_account"}, tr.Undeclared("users", []string{"acme_user"}))
	assert.Nil(t, tr.Undeclared("groups", []string{"acme_group"}))
}

func TestTracker_Concurrent(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Register("s", "t")
		}()
	}
	wg.Wait()
	assert.Equal(t, []TypeCount{{"t", 50}}, tr.Summary("s"))
}
