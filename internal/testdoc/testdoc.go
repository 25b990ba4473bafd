// Package testdoc defines the test and module records read from the document
// store, and decodes their loosely typed YAML/JSON form into those records.
package testdoc

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrInvalidDocument = errors.New("invalid document")
)

// Test is an immutable snapshot of one test definition.
type Test struct {
	ID          string
	Name        string
	Description string
	FilePath    string
	Steps       []Step
	Labels      []string
	Disabled    bool
	Envs        []Env
	Advanced    AdvancedOptions
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Raw is the document exactly as stored. Fingerprints are computed over it.
	Raw map[string]any
}

type Env struct {
	Name string
}

type AdvancedOptions struct {
	DisableAICaching bool
}

// Module is a reusable, named step sequence referenced by tests.
type Module struct {
	ModuleID string
	Name     string
	Path     string
	Steps    []Step
	Raw      map[string]any
}

// ModuleIDs returns the ids of every module the test references, in
// first-seen order and without duplicates.
func (t Test) ModuleIDs() []string {
	seen := make(map[string]struct{}, len(t.Steps))
	out := make([]string, 0, len(t.Steps))
	for _, s := range t.Steps {
		ref, ok := s.(ModuleRef)
		if !ok || ref.ModuleID == "" {
			continue
		}
		if _, dup := seen[ref.ModuleID]; dup {
			continue
		}
		seen[ref.ModuleID] = struct{}{}
		out = append(out, ref.ModuleID)
	}
	return out
}

// ListItem is the listing projection of a test.
type ListItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	FilePath    string    `json:"filePath"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	StepCount   int       `json:"stepCount"`
	Labels      []string  `json:"labels"`
	Disabled    bool      `json:"disabled"`
}

func (t Test) Summary() ListItem {
	labels := t.Labels
	if labels == nil {
		labels = []string{}
	}
	return ListItem{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		FilePath:    t.FilePath,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		StepCount:   len(t.Steps),
		Labels:      labels,
		Disabled:    t.Disabled,
	}
}

// ModuleIndex resolves modules by id. A nil index resolves nothing.
type ModuleIndex map[string]Module

func (m ModuleIndex) Lookup(id string) (Module, bool) {
	mod, ok := m[id]
	return mod, ok
}

// IndexModules builds a ModuleIndex keyed by ModuleID.
func IndexModules(mods []Module) ModuleIndex {
	idx := make(ModuleIndex, len(mods))
	for _, m := range mods {
		if m.ModuleID == "" {
			continue
		}
		idx[m.ModuleID] = m
	}
	return idx
}
