// Package datastore is the small key/value scratch space steps use to hand
// data to the steps that depend on them.
package datastore

import "sync"

// Store is safe for concurrent use. Visibility between steps follows
// execution order only; there is no access control.
type Store struct {
	m sync.Map
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

func (s *Store) Set(key string, value any) {
	s.m.Store(key, value)
}

func (s *Store) Get(key string) (any, bool) {
	return s.m.Load(key)
}

func (s *Store) Delete(key string) {
	s.m.Delete(key)
}

// Keys returns the stored keys in no particular order.
func (s *Store) Keys() []string {
	var keys []string
	s.m.Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	return keys
}
