package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testsummary/internal/testdoc"
)

func writeFile(t *testing.T, dir, rel, body string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const checkoutYAML = `
fileType: momentic/test
id: T1
name: Checkout
description: buys one item
labels: [smoke]
steps:
  - type: MODULE
    moduleId: login
  - type: PRESET_ACTION
    command:
      type: CLICK
      target:
        elementDescriptor: "#submit"
`

func TestLoadTree(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "flows/checkout.test.yaml", checkoutYAML)
	writeFile(t, dir, "flows/unnamed.test.yaml", "fileType: test\nsteps: []\n")
	writeFile(t, dir, "flows/notes.test.yaml", "fileType: notes\n")
	writeFile(t, dir, "flows/broken.test.yaml", "fileType: [unterminated\n")
	writeFile(t, dir, "modules/login.module.yaml", "moduleId: login\nsteps:\n  - type: PRESET_ACTION\n    command: {type: TYPE, value: me}\n")
	writeFile(t, dir, "modules/nameless.module.yaml", "name: no id\n")
	writeFile(t, dir, "README.md", "ignored")

	res, err := Load(dir)
	require.NoError(t, err)

	require.Len(t, res.Tests, 2)
	checkout := res.Tests[0]
	assert.Equal(t, "T1", checkout.ID)
	assert.Equal(t, "Checkout", checkout.Name)
	assert.Equal(t, "flows/checkout.test.yaml", checkout.FilePath)
	assert.Equal(t, []string{"smoke"}, checkout.Labels)
	assert.Equal(t, []string{"login"}, checkout.ModuleIDs())
	assert.False(t, checkout.UpdatedAt.IsZero())
	assert.Equal(t, "momentic/test", checkout.Raw["fileType"])

	unnamed := res.Tests[1]
	assert.Equal(t, "flows/unnamed.test.yaml", unnamed.ID)
	assert.Equal(t, "unnamed", unnamed.Name)

	require.Len(t, res.Modules, 1)
	assert.Equal(t, "login", res.Modules[0].ModuleID)
	assert.Equal(t, "login", res.Modules[0].Name)
	assert.Equal(t, "modules/login.module.yaml", res.Modules[0].Path)

	assert.Len(t, res.Skipped, 3)
}

func TestLoadRejectsMissingDir(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestLoadTestRejectsWrongFileType(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "x.test.yaml", "fileType: module\n")
	_, err := LoadTest(dir, path)
	assert.True(t, errors.Is(err, testdoc.ErrInvalidDocument))
}

type recordingSink struct {
	tests   []string
	modules []string
	fail    bool
}

func (s *recordingSink) UpsertTest(_ context.Context, t testdoc.Test) error {
	if s.fail {
		return errors.New("down")
	}
	s.tests = append(s.tests, t.ID)
	return nil
}

func (s *recordingSink) UpsertModule(_ context.Context, m testdoc.Module) error {
	s.modules = append(s.modules, m.ModuleID)
	return nil
}

func TestApply(t *testing.T) {
	res := Result{
		Tests:   []testdoc.Test{{ID: "a"}, {ID: "b"}},
		Modules: []testdoc.Module{{ModuleID: "m"}},
		Skipped: []Skip{{Path: "x", Reason: "bad"}},
	}
	sink := &recordingSink{}
	st, err := Apply(context.Background(), sink, res)
	require.NoError(t, err)
	assert.Equal(t, Stats{Tests: 2, Modules: 1, Skipped: 1}, st)
	assert.Equal(t, []string{"a", "b"}, sink.tests)

	_, err = Apply(context.Background(), &recordingSink{fail: true}, res)
	assert.Error(t, err)
}

func TestIsDocumentFile(t *testing.T) {
	assert.True(t, IsDocumentFile("/a/b.test.yaml"))
	assert.True(t, IsDocumentFile("c.module.yaml"))
	assert.False(t, IsDocumentFile("c.yaml"))
}

func TestLoadSkipsSymlinkOutsideRoot(t *testing.T) {
	outside := t.TempDir()
	target := writeFile(t, outside, "escape.test.yaml", checkoutYAML)
	dir := t.TempDir()
	writeFile(t, dir, "inside.test.yaml", "fileType: test\nid: in\n")
	if err := os.Symlink(target, filepath.Join(dir, "escape.test.yaml")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	res, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, res.Tests, 1)
	assert.Equal(t, "in", res.Tests[0].ID)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "escape.test.yaml", res.Skipped[0].Path)
}
