// Package ingest reads a tree of *.test.yaml and *.module.yaml files into
// test and module records.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"testsummary/internal/safeio"
	"testsummary/internal/testdoc"
)

const (
	TestSuffix   = ".test.yaml"
	ModuleSuffix = ".module.yaml"
)

// Skip records a file that was read but not ingested.
type Skip struct {
	Path   string
	Reason string
}

type Result struct {
	Tests   []testdoc.Test
	Modules []testdoc.Module
	Skipped []Skip
}

// Sink receives ingested records.
type Sink interface {
	UpsertTest(ctx context.Context, t testdoc.Test) error
	UpsertModule(ctx context.Context, m testdoc.Module) error
}

type Stats struct {
	Tests   int
	Modules int
	Skipped int
}

// IsDocumentFile reports whether path names a test or module document.
func IsDocumentFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, TestSuffix) || strings.HasSuffix(base, ModuleSuffix)
}

// Load walks dir in lexical order. Unreadable or malformed files are skipped
// and reported, never fatal. Paths in the records are relative to dir, and
// files resolving outside dir through symlinks are skipped.
func Load(dir string) (Result, error) {
	fsys, err := safeio.NewSafeFS(dir)
	if err != nil {
		return Result{}, fmt.Errorf("tests directory: %w", err)
	}

	var tests, modules []string
	err = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch name := d.Name(); {
		case strings.HasSuffix(name, TestSuffix):
			tests = append(tests, path)
		case strings.HasSuffix(name, ModuleSuffix):
			modules = append(modules, path)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	sort.Strings(tests)
	sort.Strings(modules)

	var res Result
	for _, path := range tests {
		t, err := loadTest(fsys, path)
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{Path: path, Reason: err.Error()})
			continue
		}
		res.Tests = append(res.Tests, t)
	}
	for _, path := range modules {
		m, err := loadModule(fsys, path)
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{Path: path, Reason: err.Error()})
			continue
		}
		res.Modules = append(res.Modules, m)
	}
	return res, nil
}

// LoadTest reads one test file under root. Files whose fileType does not
// mention "test" are rejected. The id falls back to the relative path and
// the name to the file stem.
func LoadTest(root, path string) (testdoc.Test, error) {
	fsys, err := safeio.NewSafeFS(root)
	if err != nil {
		return testdoc.Test{}, err
	}
	return loadTest(fsys, fsys.Rel(path))
}

// LoadModule reads one module file under root. A module without moduleId
// is rejected.
func LoadModule(root, path string) (testdoc.Module, error) {
	fsys, err := safeio.NewSafeFS(root)
	if err != nil {
		return testdoc.Module{}, err
	}
	return loadModule(fsys, fsys.Rel(path))
}

func loadTest(fsys *safeio.SafeFS, rel string) (testdoc.Test, error) {
	data, err := readYAML(fsys, rel)
	if err != nil {
		return testdoc.Test{}, err
	}
	if fileType, _ := data["fileType"].(string); !strings.Contains(strings.ToLower(fileType), "test") {
		return testdoc.Test{}, fmt.Errorf("%w: fileType %q is not a test", testdoc.ErrInvalidDocument, fileType)
	}
	info, err := fsys.Stat(rel)
	if err != nil {
		return testdoc.Test{}, err
	}

	t := testdoc.DecodeTest(data)
	t.FilePath = rel
	if strings.TrimSpace(t.ID) == "" {
		t.ID = rel
	}
	if strings.TrimSpace(t.Name) == "" {
		t.Name = strings.TrimSuffix(path.Base(rel), TestSuffix)
	}
	t.CreatedAt = info.ModTime().UTC()
	t.UpdatedAt = info.ModTime().UTC()
	return t, nil
}

func loadModule(fsys *safeio.SafeFS, rel string) (testdoc.Module, error) {
	data, err := readYAML(fsys, rel)
	if err != nil {
		return testdoc.Module{}, err
	}
	m, err := testdoc.DecodeModule(data)
	if err != nil {
		return testdoc.Module{}, err
	}
	m.Path = rel
	if strings.TrimSpace(m.Name) == "" {
		m.Name = strings.TrimSuffix(path.Base(rel), ModuleSuffix)
	}
	return m, nil
}

// Apply writes every record of res to sink and stops at the first error.
func Apply(ctx context.Context, sink Sink, res Result) (Stats, error) {
	st := Stats{Skipped: len(res.Skipped)}
	for _, m := range res.Modules {
		if err := sink.UpsertModule(ctx, m); err != nil {
			return st, fmt.Errorf("upsert module %s: %w", m.ModuleID, err)
		}
		st.Modules++
	}
	for _, t := range res.Tests {
		if err := sink.UpsertTest(ctx, t); err != nil {
			return st, fmt.Errorf("upsert test %s: %w", t.ID, err)
		}
		st.Tests++
	}
	return st, nil
}

func readYAML(fsys *safeio.SafeFS, rel string) (map[string]any, error) {
	raw, err := fsys.ReadFile(rel)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", testdoc.ErrInvalidDocument, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return testdoc.NormalizeMap(data), nil
}
