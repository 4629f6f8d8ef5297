package graphbuffer

import (
	"errors"
	"sort"
	"sync"
)

// Failures holds flush errors until the step that owns the failed partition
// asks for them. The zero value is ready to use.
type Failures struct {
	mu     sync.Mutex
	byStep map[string][]error
}

// Record stores err for stepID.
func (f *Failures) Record(stepID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byStep == nil {
		f.byStep = make(map[string][]error)
	}
	f.byStep[stepID] = append(f.byStep[stepID], err)
}

// Take removes and returns the errors recorded for stepID, joined. An empty
// stepID takes every step's errors, ordered by step.
func (f *Failures) Take(stepID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if stepID != "" {
		errs := f.byStep[stepID]
		delete(f.byStep, stepID)
		return errors.Join(errs...)
	}

	steps := make([]string, 0, len(f.byStep))
	for s := range f.byStep {
		steps = append(steps, s)
	}
	sort.Strings(steps)
	var errs []error
	for _, s := range steps {
		errs = append(errs, f.byStep[s]...)
	}
	f.byStep = nil
	return errors.Join(errs...)
}
