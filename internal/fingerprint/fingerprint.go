// Package fingerprint derives the content hash that keys cached summaries.
//
// The hash covers the test document and every module document it references,
// so editing a shared module invalidates the summaries of all tests using it.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"testsummary/internal/testdoc"
)

// Compute returns the hex SHA-256 of the canonical encoding of t and the
// resolvable modules it references. Module ids that do not resolve are left
// out, so the fingerprint changes once such a module appears.
func Compute(t testdoc.Test, modules testdoc.ModuleIndex) string {
	ids := t.ModuleIDs()
	sort.Strings(ids)
	parts := make([]any, 0, len(ids))
	for _, id := range ids {
		mod, ok := modules.Lookup(id)
		if !ok {
			continue
		}
		parts = append(parts, moduleDoc(mod))
	}
	return digest(map[string]any{
		"test":    testDoc(t),
		"modules": parts,
	})
}

// encoding/json writes map keys in sorted order, which makes the encoding
// canonical for map-shaped documents.
func digest(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte(fmt.Sprintf("%#v", v))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func testDoc(t testdoc.Test) any {
	if t.Raw != nil {
		return t.Raw
	}
	envs := make([]string, 0, len(t.Envs))
	for _, e := range t.Envs {
		envs = append(envs, e.Name)
	}
	return map[string]any{
		"id":               t.ID,
		"name":             t.Name,
		"description":      t.Description,
		"labels":           t.Labels,
		"disabled":         t.Disabled,
		"envs":             envs,
		"disableAICaching": t.Advanced.DisableAICaching,
		"steps":            stepDocs(t.Steps),
	}
}

func moduleDoc(m testdoc.Module) any {
	if m.Raw != nil {
		return m.Raw
	}
	return map[string]any{
		"moduleId": m.ModuleID,
		"name":     m.Name,
		"steps":    stepDocs(m.Steps),
	}
}

func stepDocs(steps []testdoc.Step) []any {
	out := make([]any, 0, len(steps))
	for _, s := range steps {
		switch st := s.(type) {
		case testdoc.ModuleRef:
			out = append(out, map[string]any{"type": testdoc.StepTypeModule, "moduleId": st.ModuleID})
		case testdoc.PresetAction:
			cmd := map[string]any{
				"type":         st.Command.Type,
				"value":        st.Command.Value,
				"pressEnter":   st.Command.PressEnter,
				"clearContent": st.Command.ClearContent,
				"assertion":    st.Command.Assertion,
			}
			if st.Command.Target != nil {
				cmd["target"] = map[string]any{"elementDescriptor": st.Command.Target.ElementDescriptor}
			}
			out = append(out, map[string]any{"type": testdoc.StepTypePresetAction, "command": cmd})
		default:
			out = append(out, map[string]any{"type": s.StepType()})
		}
	}
	return out
}
