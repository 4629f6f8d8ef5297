// Package typetracker records, per step, which `_type` values were actually
// added during a run.
package typetracker

import (
	"sort"
	"sync"
)

// TypeCount is one row of a step summary.
type TypeCount struct {
	Type  string `json:"_type"`
	Total int    `json:"total"`
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	byStep map[string]map[string]int
	all    map[string]struct{}
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{
		byStep: make(map[string]map[string]int),
		all:    make(map[string]struct{}),
	}
}

// Register records one object of typ added by stepID.
func (t *Tracker) Register(stepID, typ string) {
	t.RegisterN(stepID, typ, 1)
}

// RegisterN records n objects of typ added by stepID.
func (t *Tracker) RegisterN(stepID, typ string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	counts, ok := t.byStep[stepID]
	if !ok {
		counts = make(map[string]int)
		t.byStep[stepID] = counts
	}
	counts[typ] += n
	t.all[typ] = struct{}{}
}

// EncounteredTypes returns the sorted types stepID added.
func (t *Tracker) EncounteredTypes(stepID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedKeys(t.byStep[stepID])
}

// AllEncounteredTypes returns every type added in the run, sorted.
func (t *Tracker) AllEncounteredTypes() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedKeys(t.all)
}

// Summary returns per-type totals for stepID, sorted by type.
func (t *Tracker) Summary(stepID string) []TypeCount {
	t.mu.RLock()
	defer t.mu.RUnlock()
	counts := t.byStep[stepID]
	out := make([]TypeCount, 0, len(counts))
	for _, typ := range sortedKeys(counts) {
		out = append(out, TypeCount{Type: typ, Total: counts[typ]})
	}
	return out
}

// Undeclared returns the types stepID added that are not in declared.
func (t *Tracker) Undeclared(stepID string, declared []string) []string {
	known := make(map[string]struct{}, len(declared))
	for _, d := range declared {
		known[d] = struct{}{}
	}
	var out []string
	for _, typ := range t.EncounteredTypes(stepID) {
		if _, ok := known[typ]; !ok {
			out = append(out, typ)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
