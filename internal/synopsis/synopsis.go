// Package synopsis condenses a test's step tree into short, human-readable
// lines used to prompt the summarizer.
package synopsis

import (
	"fmt"
	"strings"

	"testsummary/internal/testdoc"
)

// Mode controls how referenced modules are rendered.
type Mode string

const (
	// Expanded inlines every step of a referenced module.
	Expanded Mode = "expanded"
	// Collapsed renders a referenced module as a single line with a preview.
	Collapsed Mode = "collapsed"
)

const (
	maxValueRunes     = 80
	maxAssertionRunes = 120
	previewSteps      = 3
	ellipsis          = "…"
)

// ParseMode maps a query value to a Mode. Empty input selects Expanded.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(Expanded):
		return Expanded, nil
	case string(Collapsed):
		return Collapsed, nil
	default:
		return "", fmt.Errorf("unknown synopsis mode %q", s)
	}
}

// Condense renders the test's steps in order. It never fails: a reference to
// an unknown module becomes a marker line.
func Condense(t testdoc.Test, modules testdoc.ModuleIndex, mode Mode) []string {
	out := make([]string, 0, len(t.Steps))
	for _, step := range t.Steps {
		ref, ok := step.(testdoc.ModuleRef)
		if !ok {
			out = append(out, Line(step))
			continue
		}
		mod, found := modules.Lookup(ref.ModuleID)
		if !found {
			out = append(out, fmt.Sprintf("MODULE %s (missing)", ref.ModuleID))
			continue
		}
		if mode == Collapsed {
			out = append(out, collapsedLine(mod))
			continue
		}
		for _, ms := range mod.Steps {
			out = append(out, Line(ms))
		}
	}
	return out
}

// Line renders a single non-module step. Nested module references are not
// expanded.
func Line(step testdoc.Step) string {
	switch s := step.(type) {
	case testdoc.PresetAction:
		return commandLine(s.Command)
	case testdoc.ModuleRef:
		return "MODULE " + s.ModuleID
	case testdoc.OtherStep:
		return s.Type
	default:
		return ""
	}
}

func commandLine(cmd testdoc.Command) string {
	bits := make([]string, 0, 6)
	if cmd.Type != "" {
		bits = append(bits, cmd.Type)
	}
	if cmd.Target != nil && cmd.Target.ElementDescriptor != "" {
		bits = append(bits, "target="+cmd.Target.ElementDescriptor)
	}
	if cmd.Value != nil {
		bits = append(bits, "value="+truncate(fmt.Sprint(cmd.Value), maxValueRunes))
	}
	if cmd.Assertion != "" {
		bits = append(bits, "assertion="+truncate(cmd.Assertion, maxAssertionRunes))
	}
	if cmd.PressEnter {
		bits = append(bits, "pressEnter")
	}
	if cmd.ClearContent {
		bits = append(bits, "clearContent")
	}
	return strings.Join(bits, ", ")
}

func collapsedLine(mod testdoc.Module) string {
	name := mod.Name
	if name == "" {
		name = mod.ModuleID
	}
	line := fmt.Sprintf("MODULE %s (%d steps)", name, len(mod.Steps))
	if len(mod.Steps) == 0 {
		return line
	}
	n := min(previewSteps, len(mod.Steps))
	preview := make([]string, 0, n)
	for _, s := range mod.Steps[:n] {
		preview = append(preview, Line(s))
	}
	line += ": " + strings.Join(preview, "; ")
	if len(mod.Steps) > n {
		line += "; " + ellipsis
	}
	return line
}

// truncate keeps the first limit-3 runes of an overlong s and appends an ellipsis.
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + ellipsis
}
