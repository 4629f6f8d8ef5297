package keytracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/graphjob/internal/ctxlog"
)

// DefaultMemoryLimit is used when Options.MemoryLimit is not positive.
const DefaultMemoryLimit = 100_000

// DiskTier is the durable tier keys are spilled into.
type DiskTier interface {
	// Has reports whether the normalized key is stored.
	Has(ctx context.Context, normalized string) (bool, error)
	// PutBatch stores normalized -> original pairs in one transaction.
	PutBatch(ctx context.Context, keys []KeyPair) error
	// Originals returns every stored original key in insertion order.
	Originals(ctx context.Context) ([]string, error)
}

// KeyPair is one tracked key.
type KeyPair struct {
	Normalized string
	Original   string
}

// Options configures a Tracker.
type Options struct {
	// Collection labels errors and log lines ("entities", "relationships").
	Collection  string
	MemoryLimit int
	// Disk is optional; without it the memory tier grows unbounded.
	Disk DiskTier
	// Normalize maps logically-equal keys to one value, e.g. strings.ToLower.
	Normalize func(string) string
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	opts   Options
	memory map[string]string
	order  []string
	spills int
}

// New returns a Tracker.
func New(opts Options) *Tracker {
	if opts.MemoryLimit <= 0 {
		opts.MemoryLimit = DefaultMemoryLimit
	}
	return &Tracker{
		opts:   opts,
		memory: make(map[string]string),
	}
}

func (t *Tracker) normalize(key string) string {
	if t.opts.Normalize == nil {
		return key
	}
	return t.opts.Normalize(key)
}

// RegisterKey records key or returns *DuplicateKeyError if it was seen before.
func (t *Tracker) RegisterKey(ctx context.Context, key string) error {
	normalized := t.normalize(key)

	t.mu.Lock()
	defer t.mu.Unlock()

	seen, err := t.hasLocked(ctx, normalized)
	if err != nil {
		return err
	}
	if seen {
		return &DuplicateKeyError{Key: key, Collection: t.opts.Collection}
	}

	t.memory[normalized] = key
	t.order = append(t.order, normalized)

	if t.opts.Disk != nil && len(t.memory) > t.opts.MemoryLimit {
		return t.spillLocked(ctx)
	}
	return nil
}

// Check returns *DuplicateKeyError if key was registered, without recording it.
func (t *Tracker) Check(ctx context.Context, key string) error {
	seen, err := t.HasKey(ctx, key)
	if err != nil {
		return err
	}
	if seen {
		return &DuplicateKeyError{Key: key, Collection: t.opts.Collection}
	}
	return nil
}

// Collection returns the label used in errors.
func (t *Tracker) Collection() string { return t.opts.Collection }

// Normalized returns the form key is tracked under.
func (t *Tracker) Normalized(key string) string {
	return t.normalize(key)
}

// HasKey reports whether key (after normalization) was registered.
func (t *Tracker) HasKey(ctx context.Context, key string) (bool, error) {
	normalized := t.normalize(key)
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasLocked(ctx, normalized)
}

func (t *Tracker) hasLocked(ctx context.Context, normalized string) (bool, error) {
	if _, ok := t.memory[normalized]; ok {
		return true, nil
	}
	if t.opts.Disk == nil || t.spills == 0 {
		return false, nil
	}
	ok, err := t.opts.Disk.Has(ctx, normalized)
	if err != nil {
		return false, fmt.Errorf("checking %s key tracker disk tier: %w", t.opts.Collection, err)
	}
	return ok, nil
}

func (t *Tracker) spillLocked(ctx context.Context) error {
	batch := make([]KeyPair, 0, len(t.order))
	for _, normalized := range t.order {
		batch = append(batch, KeyPair{Normalized: normalized, Original: t.memory[normalized]})
	}
	if err := t.opts.Disk.PutBatch(ctx, batch); err != nil {
		return fmt.Errorf("spilling %s keys to disk: %w", t.opts.Collection, err)
	}

	t.memory = make(map[string]string)
	t.order = nil
	t.spills++
	ctxlog.FromContext(ctx).Debug("Key tracker spilled memory tier to disk.",
		"collection", t.opts.Collection, "keys", len(batch), "spills", t.spills)
	return nil
}

// EncounteredKeys returns the original keys per tier: memory first, then
// disk when one is configured.
func (t *Tracker) EncounteredKeys(ctx context.Context) ([][]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	mem := make([]string, 0, len(t.order))
	for _, normalized := range t.order {
		mem = append(mem, t.memory[normalized])
	}
	out := [][]string{mem}

	if t.opts.Disk != nil {
		disk, err := t.opts.Disk.Originals(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading %s keys from disk: %w", t.opts.Collection, err)
		}
		out = append(out, disk)
	}
	return out, nil
}

// Len returns the number of keys held in memory.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.memory)
}
