package executor

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/graphjob/internal/step"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeStartStates(t *testing.T) {
	steps := []*step.Step{
		{ID: "users", IngestionSourceID: "identity"},
		{ID: "groups", IngestionSourceID: "identity"},
		{ID: "devices", IngestionSourceID: "devices"},
		{ID: "account", IngestionSourceID: "core"},
		{ID: "plain"},
	}
	sources := []step.IngestionSource{
		{ID: "identity"},
		{ID: "devices"},
		{ID: "core", CannotBeDisabled: true},
	}
	explicit := step.StartStates{
		"groups": {Disabled: false},
		"plain":  {Disabled: true},
	}

	got := ComputeStartStates(steps, explicit, sources, []string{"identity", "core"})

	want := step.StartStates{
		"users":   {Disabled: true, DisabledReason: step.DisabledReasonIngestionSource},
		"groups":  {Disabled: false, DisabledReason: step.DisabledReasonNone},
		"devices": {Disabled: false, DisabledReason: step.DisabledReasonNone},
		"account": {Disabled: false, DisabledReason: step.DisabledReasonNone},
		"plain":   {Disabled: true, DisabledReason: step.DisabledReasonConfig},
	}
	assert.Empty(t, cmp.Diff(want, got))
}

func TestValidateStartStates(t *testing.T) {
	steps := []*step.Step{{ID: "a"}, {ID: "b"}}

	require.NoError(t, ValidateStartStates(steps, step.StartStates{"a": {}}, false))
	require.NoError(t, ValidateStartStates(steps, step.StartStates{"a": {}, "b": {}}, true))

	err := ValidateStartStates(steps, step.StartStates{"a": {}, "zzz": {}}, true)
	require.Error(t, err)
	var sse *StartStateError
	require.True(t, errors.As(err, &sse))
	assert.Equal(t, []string{"zzz"}, sse.Unknown)
	assert.Equal(t, []string{"b"}, sse.Missing)
	assert.Contains(t, err.Error(), "unknown steps: zzz")
}
