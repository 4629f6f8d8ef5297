package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// AssertRanBefore checks that step first finished before step second started.
func AssertRanBefore(t *testing.T, s *Sleeper, first, second string) {
	t.Helper()

	a, ok := s.Record(first)
	require.True(t, ok, "step %q did not run", first)
	b, ok := s.Record(second)
	require.True(t, ok, "step %q did not run", second)

	require.True(t, a.FinishedBefore(b),
		"step %q started at %v, before %q finished at %v", second, b.Start, first, a.End)
}

// AssertOverlapped checks that the two steps were running at the same time.
func AssertOverlapped(t *testing.T, s *Sleeper, x, y string) {
	t.Helper()

	a, ok := s.Record(x)
	require.True(t, ok, "step %q did not run", x)
	b, ok := s.Record(y)
	require.True(t, ok, "step %q did not run", y)

	require.True(t, a.Overlaps(b),
		"steps %q and %q did not run concurrently", x, y)
}
