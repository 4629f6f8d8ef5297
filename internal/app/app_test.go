package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/specialistvlad/graphjob/internal/executor"
	"github.com/specialistvlad/graphjob/internal/graphobject"
	"github.com/specialistvlad/graphjob/internal/hcl_adapter"
	"github.com/specialistvlad/graphjob/internal/integration"
	"github.com/specialistvlad/graphjob/internal/registry"
	"github.com/specialistvlad/graphjob/internal/step"
	"github.com/specialistvlad/graphjob/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModule struct{}

func (fakeModule) Register(r *registry.Registry) {
	r.Register(&integration.Definition{
		Name: "fake",
		Steps: []*step.Step{
			{
				ID:       "users",
				Name:     "Fetch users",
				Entities: []step.GraphObjectMetadata{{Type: "fake_user"}},
				Handler: func(ctx context.Context, ec *step.ExecutionContext) error {
					for _, k := range []string{"fake_user:1", "fake_user:2", "FAKE_USER:1"} {
						if _, err := ec.JobState.AddEntity(ctx, &graphobject.Entity{Key: k, Type: "fake_user", Class: []string{"User"}}); err != nil {
							ec.Logger.Warn("Skipped entity.", "error", err)
						}
					}
					return nil
				},
			},
			{
				ID:        "groups",
				Name:      "Fetch groups",
				DependsOn: []string{"users"},
				Entities:  []step.GraphObjectMetadata{{Type: "fake_group"}},
				Handler: func(context.Context, *step.ExecutionContext) error {
					return os.ErrPermission
				},
			},
		},
	})
}

// setupAppTest creates a new app instance for system testing.
func setupAppTest(t *testing.T, files map[string]string, appConfig *Config) (*App, *testutil.SafeBuffer) {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	if len(files) > 0 {
		appConfig.ConfigPaths = []string{dir}
	}
	appConfig.LogLevel = "debug"

	logBuffer := &testutil.SafeBuffer{}
	testApp, err := NewApp(logBuffer, appConfig, hcl_adapter.NewLoader(), fakeModule{})
	require.NoError(t, err)

	t.Cleanup(func() {
		if os.Getenv("GRAPHJOB_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})
	return testApp, logBuffer
}

func TestApp_RunWritesArtifacts(t *testing.T) {
	for _, store := range []string{"memory", "filesystem", "sqlite"} {
		t.Run(store, func(t *testing.T) {
			wd := t.TempDir()
			a, logs := setupAppTest(t, map[string]string{
				"run.hcl": `
run {
  integration    = "fake"
  store          = "` + store + `"
  normalize_keys = true
  working_dir    = "` + filepath.ToSlash(wd) + `"
}
`,
			}, &Config{})

			summary, err := a.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []string{"groups"}, summary.Failed())

			raw, err := os.ReadFile(filepath.Join(wd, SummaryFile))
			require.NoError(t, err)
			var onDisk executor.Summary
			require.NoError(t, sonic.ConfigStd.Unmarshal(raw, &onDisk))
			assert.Equal(t, []string{"fake_group"}, onDisk.Metadata.PartialDatasets.Types)
			assert.Len(t, onDisk.IntegrationStepResults, 2)

			prom, err := os.ReadFile(filepath.Join(wd, MetricsFile))
			require.NoError(t, err)
			assert.Contains(t, string(prom), `graphjob_jobstate_objects_added_total{collection="entities",step="users"} 2`)

			assert.Contains(t, logs.String(), "duplicate _key detected")
		})
	}
}

func TestApp_Upload(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/jobs/job-7/entities") {
			posts.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a, _ := setupAppTest(t, map[string]string{
		"run.hcl": `
run {
  store       = "memory"
  working_dir = "` + filepath.ToSlash(t.TempDir()) + `"
}

upload {
  endpoint   = "` + srv.URL + `"
  job_id     = "job-7"
  batch_size = 1
}
`,
	}, &Config{Integration: "fake"})

	_, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), posts.Load())
}

func TestApp_UnreachableEventsDoNotFailRun(t *testing.T) {
	a, logs := setupAppTest(t, map[string]string{
		"run.hcl": `
run {
  integration = "fake"
  store       = "memory"
  working_dir = "` + filepath.ToSlash(t.TempDir()) + `"
}

events {
  url = "://not a url"
}
`,
	}, &Config{})

	_, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "Event stream unavailable")
}

func TestNewApp_Errors(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		cfg     Config
		wantErr string
	}{
		{"no integration", map[string]string{"run.hcl": `run {}`}, Config{}, "run.integration is required"},
		{"bad store", map[string]string{"run.hcl": `run { store = "tape" }`}, Config{Integration: "fake"}, "run.store"},
		{"bad hcl", map[string]string{"run.hcl": `run {`}, Config{}, "failed to load configuration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
			}
			cfg := tt.cfg
			cfg.ConfigPaths = []string{dir}
			_, err := NewApp(&testutil.SafeBuffer{}, &cfg, hcl_adapter.NewLoader(), fakeModule{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApp_UnknownIntegration(t *testing.T) {
	a, _ := setupAppTest(t, nil, &Config{Integration: "missing", WorkingDir: t.TempDir()})
	_, err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown integration")
}

func TestNewLogger(t *testing.T) {
	buf := &testutil.SafeBuffer{}
	newLogger("warning", "json", buf).Info("hidden")
	newLogger("warning", "json", buf).Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
