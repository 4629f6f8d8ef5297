package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/graphjob/internal/app"
	"github.com/specialistvlad/graphjob/internal/cli"
	"github.com/specialistvlad/graphjob/internal/executor"
	"github.com/specialistvlad/graphjob/internal/step"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, hcl string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.hcl")
	require.NoError(t, os.WriteFile(path, []byte(hcl), 0o600))
	return path
}

func TestRun_LocalFS(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "a.md"), []byte("# a"), 0o600))
	workDir := t.TempDir()

	cfg := writeConfig(t, `
run {
  integration = "localfs"
  store       = "sqlite"
}

instance {
  config = {
    root = "`+filepath.ToSlash(root)+`"
  }
}
`)
	out := &bytes.Buffer{}
	err := run(context.Background(), out, []string{"-working-dir", workDir, "-log-format", "text", cfg})
	require.NoError(t, err, out.String())

	assert.FileExists(t, filepath.Join(workDir, app.SummaryFile))
	assert.FileExists(t, filepath.Join(workDir, app.MetricsFile))
	assert.Contains(t, out.String(), "Integration run finished.")
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t, `
run {
  integration = "localfs"
`)
	err := run(context.Background(), &bytes.Buffer{}, []string{cfg})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestRun_InvocationFailure(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t, `
run {
  integration = "localfs"
  store       = "memory"
}
`)
	err := run(context.Background(), &bytes.Buffer{}, []string{"-working-dir", t.TempDir(), cfg})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invocation validation failed")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(context.Background(), out, []string{"-h"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Usage:")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	err := run(context.Background(), &bytes.Buffer{}, []string{"--this-is-not-a-valid-flag"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestCheckSummary(t *testing.T) {
	t.Parallel()

	ok := &executor.Summary{IntegrationStepResults: []step.Result{{ID: "a", Status: step.StatusSuccess}}}
	require.NoError(t, checkSummary(ok))

	bad := &executor.Summary{IntegrationStepResults: []step.Result{
		{ID: "a", Status: step.StatusFailure},
		{ID: "b", Status: step.StatusPartialSuccess},
		{ID: "c", Status: step.StatusFailure},
	}}
	err := checkSummary(bad)
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, cli.ExitStepsFailed, exitErr.Code)
	assert.Equal(t, "2 step(s) failed: a, c", exitErr.Message)
}
