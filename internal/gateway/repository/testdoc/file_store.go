package testdoc

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"testsummary/internal/ingest"
)

const defaultReloadDebounce = 250 * time.Millisecond

// FileStore serves documents read from a directory tree and reloads the
// whole tree when a document file changes.
type FileStore struct {
	*MemoryStore

	dir      string
	log      *slog.Logger
	debounce time.Duration

	loadOnce sync.Once
	loadErr  error
	reloads  chan struct{}
}

func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		MemoryStore: NewMemoryStore(),
		dir:         dir,
		log:         logger.With("component", "file_store", "dir", dir),
		debounce:    defaultReloadDebounce,
		reloads:     make(chan struct{}, 1),
	}
}

func (s *FileStore) Name() string { return "file" }

// EnsureLoaded performs the initial load once.
func (s *FileStore) EnsureLoaded() error {
	s.loadOnce.Do(func() { s.loadErr = s.Reload() })
	return s.loadErr
}

// Reload re-reads the directory and swaps the contents in one step.
func (s *FileStore) Reload() error {
	res, err := ingest.Load(s.dir)
	if err != nil {
		return fmt.Errorf("load %s: %w", s.dir, err)
	}
	for _, sk := range res.Skipped {
		s.log.Warn("document skipped", "path", sk.Path, "reason", sk.Reason)
	}
	s.replace(res.Tests, res.Modules)
	tests, modules := s.counts()
	s.log.Info("documents loaded", "tests", tests, "modules", modules)
	select {
	case s.reloads <- struct{}{}:
	default:
	}
	return nil
}

func (s *FileStore) Ping(context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

// Reloaded signals after each successful reload. Intended for tests.
func (s *FileStore) Reloaded() <-chan struct{} { return s.reloads }

// Watch reloads the tree on document changes until ctx is done. Bursts of
// events within the debounce window cause one reload.
func (s *FileStore) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := addTree(w, s.dir); err != nil {
		return err
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = addTree(w, ev.Name)
					// Files may land in the new directory before it is watched.
				} else if !ingest.IsDocumentFile(ev.Name) {
					continue
				}
			} else if !ingest.IsDocumentFile(ev.Name) {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(s.debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(s.debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("watch error", "error", err)
		case <-fire:
			if err := s.Reload(); err != nil {
				s.log.Warn("reload failed", "error", err)
			}
		}
	}
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
