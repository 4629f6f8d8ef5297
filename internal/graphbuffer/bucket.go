// Package graphbuffer groups buffered graph objects by step and `_type`.
package graphbuffer

import (
	"sort"
	"sync"
)

// Partition identifies one bucket.
type Partition struct {
	StepID string
	Type   string
}

// Bucket is one partition's objects, in insertion order.
type Bucket[T any] struct {
	Partition Partition
	Items     []T
}

// BucketMap is a concurrency-safe multi-key map of buffered objects. It
// tracks the total number of items so callers can compare it against a
// flush threshold cheaply.
type BucketMap[T any] struct {
	mu      sync.RWMutex
	buckets map[Partition][]T
	order   []Partition
	total   int
}

// New returns an empty BucketMap.
func New[T any]() *BucketMap[T] {
	return &BucketMap[T]{buckets: make(map[Partition][]T)}
}

// Add appends item to the partition and returns the new total.
func (b *BucketMap[T]) Add(p Partition, item T) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.buckets[p]; !ok {
		b.order = append(b.order, p)
	}
	b.buckets[p] = append(b.buckets[p], item)
	b.total++
	return b.total
}

// Len is the total number of buffered items.
func (b *BucketMap[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}

// ByType returns a copy of every buffered item with the given type, across
// steps, in partition creation order.
func (b *BucketMap[T]) ByType(typ string) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []T
	for _, p := range b.order {
		if p.Type == typ {
			out = append(out, b.buckets[p]...)
		}
	}
	return out
}

// Types returns the distinct buffered types, sorted.
func (b *BucketMap[T]) Types() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, p := range b.order {
		seen[p.Type] = struct{}{}
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Find returns the first buffered item matching pred.
func (b *BucketMap[T]) Find(pred func(T) bool) (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, p := range b.order {
		for _, item := range b.buckets[p] {
			if pred(item) {
				return item, true
			}
		}
	}
	var zero T
	return zero, false
}

// Drain removes and returns every bucket.
func (b *BucketMap[T]) Drain() []Bucket[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Bucket[T], 0, len(b.order))
	for _, p := range b.order {
		out = append(out, Bucket[T]{Partition: p, Items: b.buckets[p]})
	}
	b.buckets = make(map[Partition][]T)
	b.order = nil
	b.total = 0
	return out
}
