package testdoc

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"testsummary/internal/testdoc"
)

type MemoryStore struct {
	mu      sync.RWMutex
	tests   map[string]testdoc.Test
	modules map[string]testdoc.Module
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tests:   make(map[string]testdoc.Test),
		modules: make(map[string]testdoc.Module),
	}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) GetTest(_ context.Context, id string) (testdoc.Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tests[strings.TrimSpace(id)]
	if !ok {
		return testdoc.Test{}, fmt.Errorf("test %q: %w", id, testdoc.ErrNotFound)
	}
	return t, nil
}

func (s *MemoryStore) GetTests(_ context.Context, ids []string) ([]testdoc.Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]testdoc.Test, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.tests[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetModules(_ context.Context, ids []string) (testdoc.ModuleIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := make(testdoc.ModuleIndex, len(ids))
	for _, id := range ids {
		if m, ok := s.modules[id]; ok {
			idx[id] = m
		}
	}
	return idx, nil
}

func (s *MemoryStore) ListTests(_ context.Context, page Page) ([]testdoc.Test, int, error) {
	page = page.Normalize()
	s.mu.RLock()
	all := make([]testdoc.Test, 0, len(s.tests))
	for _, t := range s.tests {
		all = append(all, t)
	}
	s.mu.RUnlock()

	sortForListing(all)
	total := len(all)
	start := page.Offset()
	if start >= total {
		return []testdoc.Test{}, total, nil
	}
	end := min(start+page.Size, total)
	return all[start:end], total, nil
}

func (s *MemoryStore) UpsertTest(_ context.Context, t testdoc.Test) error {
	id := strings.TrimSpace(t.ID)
	if id == "" {
		return fmt.Errorf("%w: test without id", testdoc.ErrInvalidDocument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tests[id] = t
	return nil
}

func (s *MemoryStore) UpsertModule(_ context.Context, m testdoc.Module) error {
	id := strings.TrimSpace(m.ModuleID)
	if id == "" {
		return fmt.Errorf("%w: module without moduleId", testdoc.ErrInvalidDocument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules[id] = m
	return nil
}

// replace swaps the whole contents atomically.
func (s *MemoryStore) replace(tests []testdoc.Test, modules []testdoc.Module) {
	nt := make(map[string]testdoc.Test, len(tests))
	for _, t := range tests {
		nt[t.ID] = t
	}
	nm := make(map[string]testdoc.Module, len(modules))
	for _, m := range modules {
		nm[m.ModuleID] = m
	}
	s.mu.Lock()
	s.tests = nt
	s.modules = nm
	s.mu.Unlock()
}

func (s *MemoryStore) counts() (tests, modules int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tests), len(s.modules)
}
