// Package safeio confines file reads to a fixed root directory.
package safeio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

var (
	ErrTraversal  = errors.New("safeio: path traversal not allowed")
	ErrOutside    = errors.New("safeio: resolved outside root")
	ErrIsDir      = errors.New("safeio: path is a directory")
	ErrNotDir     = errors.New("safeio: path is not a directory")
	errNoFS       = errors.New("safeio: filesystem not configured")
	errEmptyPath  = errors.New("safeio: empty path")
	errEmptyRoot  = errors.New("safeio: empty root")
	errRootNotDir = errors.New("safeio: root is not a directory")
)

// SafeFS resolves every path relative to a fixed root and rejects anything
// that lands outside it, symlinks included. It implements fs.FS, fs.StatFS,
// fs.ReadDirFS and fs.ReadFileFS so it can drive fs.WalkDir.
type SafeFS struct {
	absRoot string // absolute root with symlinks resolved
}

var (
	_ fs.StatFS     = (*SafeFS)(nil)
	_ fs.ReadDirFS  = (*SafeFS)(nil)
	_ fs.ReadFileFS = (*SafeFS)(nil)
)

// NewSafeFS locks all future operations to root.
func NewSafeFS(root string) (*SafeFS, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errEmptyRoot
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", errRootNotDir, root)
	}
	return &SafeFS{absRoot: abs}, nil
}

// Root returns the absolute root directory.
func (s *SafeFS) Root() string {
	if s == nil {
		return ""
	}
	return s.absRoot
}

// Rel maps a path under the root to its slash-separated relative form.
// Paths that cannot be related are returned unchanged.
func (s *SafeFS) Rel(path string) string {
	if s == nil || !filepath.IsAbs(path) {
		return filepath.ToSlash(path)
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	rel, err := filepath.Rel(s.absRoot, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (s *SafeFS) ReadFile(name string) ([]byte, error) {
	p, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrIsDir
	}
	return os.ReadFile(p)
}

// Open opens a regular file for reading.
func (s *SafeFS) Open(name string) (fs.File, error) {
	p, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrIsDir
	}
	return os.Open(p)
}

func (s *SafeFS) Stat(name string) (fs.FileInfo, error) {
	p, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.Stat(p)
}

func (s *SafeFS) ReadDir(name string) ([]fs.DirEntry, error) {
	dir, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, ErrNotDir
	}
	return os.ReadDir(dir)
}

// resolve accepts slash-separated names relative to the root as well as
// absolute OS paths under it.
func (s *SafeFS) resolve(name string) (string, error) {
	if s == nil {
		return "", errNoFS
	}
	if name == "" {
		return "", errEmptyPath
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." {
		return s.absRoot, nil
	}

	isAbs := filepath.IsAbs(clean) || (runtime.GOOS == "windows" && filepath.VolumeName(clean) != "")
	if !isAbs && (clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator))) {
		return "", ErrTraversal
	}

	joined := clean
	if !isAbs {
		joined = filepath.Join(s.absRoot, clean)
	}
	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", err
	}
	if !hasPathPrefix(resolved, s.absRoot) {
		return "", fmt.Errorf("%w (root=%s, path=%s)", ErrOutside, s.absRoot, resolved)
	}
	return resolved, nil
}

func hasPathPrefix(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if runtime.GOOS == "windows" {
		path = strings.ToLower(path)
		root = strings.ToLower(root)
	}
	if root == "" || path == root {
		return true
	}
	sep := string(os.PathSeparator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	if !strings.HasSuffix(path, sep) {
		path += sep
	}
	return strings.HasPrefix(path, root)
}
