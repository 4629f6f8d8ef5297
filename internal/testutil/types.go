package testutil

import "time"

// HandlerRun is the wall-clock window in which one step handler ran, as seen
// by a Sleeper. The window does not include the JobState flush the executor
// performs after the handler returns.
type HandlerRun struct {
	StepID string
	Start  time.Time
	End    time.Time
}

// FinishedBefore reports whether r ended no later than next started.
func (r *HandlerRun) FinishedBefore(next *HandlerRun) bool {
	return !next.Start.Before(r.End)
}

// Overlaps reports whether the two handlers were running at the same time.
func (r *HandlerRun) Overlaps(other *HandlerRun) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}
