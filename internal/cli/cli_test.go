package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "t1.test.yaml"), []byte(`
fileType: test
id: T1
name: Submit form
steps:
  - type: PRESET_ACTION
    command: {type: CLICK, target: {elementDescriptor: "#submit"}}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "login.module.yaml"), []byte("moduleId: login\n"), 0o644))
	t.Setenv("APP_ENV", "test")
	t.Setenv("TESTSUMMARY_CONFIG", "")
	t.Setenv("TESTS_DIR", dir)
	t.Setenv("DOCUMENTS_SOURCE", "file")
	t.Setenv("LLM_PROVIDER", "fake")
	t.Setenv("SUMMARY_CACHE_BACKEND", "memory")
	t.Setenv("WATCH_TESTS", "false")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSummarizeCommand(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "summarize", "T1", "--log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, "Purpose: exercises Submit form.\nMain Flow: 1 condensed steps.\n", out)

	out, err = run(t, "summarize", "T1", "--stream", "--mode", "collapsed", "--log-level", "error")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Purpose: exercises Submit form."))

	_, err = run(t, "summarize", "missing", "--log-level", "error")
	assert.Error(t, err)
	_, err = run(t, "summarize", "T1", "--mode", "sideways")
	assert.Error(t, err)
}

func TestIngestCommand(t *testing.T) {
	dir := setupEnv(t)
	out, err := run(t, "ingest", "--dry-run", "--dir", dir, "--log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, "found 1 tests, 1 modules, skipped 0\n", out)

	_, err = run(t, "ingest", "--log-level", "error")
	assert.ErrorContains(t, err, "DOCUMENTS_SOURCE=postgres")
}
