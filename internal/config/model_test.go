package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	m := New()
	m.Upload = &Upload{Endpoint: "http://localhost", JobID: "j"}
	m.ApplyDefaults()

	assert.Equal(t, DefaultWorkingDir, m.Run.WorkingDir)
	assert.Equal(t, StoreFilesystem, m.Run.Store)
	assert.Equal(t, DefaultBufferThreshold, m.Run.BufferThreshold)
	assert.Equal(t, DefaultKeyMemoryLimit, m.Run.KeyMemoryLimit)
	assert.Equal(t, UploadHTTP, m.Upload.Kind)
	assert.NotNil(t, m.Instance.Config)
	require.NoError(t, m.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Model)
		wantErr string
	}{
		{"bad store", func(m *Model) { m.Run.Store = "redis" }, "run.store"},
		{"negative concurrency", func(m *Model) { m.Run.MaxConcurrency = -1 }, "max_concurrency"},
		{"bad upload kind", func(m *Model) { m.Upload = &Upload{Kind: "ftp", Endpoint: "x"} }, "upload.kind"},
		{"http without job", func(m *Model) { m.Upload = &Upload{Kind: UploadHTTP, Endpoint: "x"} }, "job_id"},
		{"events without url", func(m *Model) { m.Events = &Events{} }, "events.url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.ApplyDefaults()
			tt.mutate(m)
			err := m.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDisabledSteps(t *testing.T) {
	m := New()
	m.Steps["b"] = &Step{ID: "b", Disabled: true}
	m.Steps["a"] = &Step{ID: "a", Disabled: true}
	m.Steps["c"] = &Step{ID: "c"}
	assert.Equal(t, []string{"a", "b"}, m.DisabledSteps())
}
