package testdoc

import (
	"fmt"
	"strings"
)

// DecodeTest turns a stored test document into a Test. Unknown or malformed
// fields degrade to their zero value; the raw document is kept as-is.
func DecodeTest(raw map[string]any) Test {
	raw = NormalizeMap(raw)
	t := Test{
		ID:          str(raw["id"]),
		Name:        str(raw["name"]),
		Description: str(raw["description"]),
		Steps:       decodeSteps(raw["steps"]),
		Labels:      strList(raw["labels"]),
		Disabled:    boolean(raw["disabled"]),
		Envs:        decodeEnvs(raw["envs"]),
		Raw:         raw,
	}
	if adv, ok := raw["advanced"].(map[string]any); ok {
		t.Advanced.DisableAICaching = boolean(adv["disableAICaching"])
	}
	return t
}

// DecodeModule turns a stored module document into a Module. A document
// without a moduleId is rejected.
func DecodeModule(raw map[string]any) (Module, error) {
	raw = NormalizeMap(raw)
	id := strings.TrimSpace(str(raw["moduleId"]))
	if id == "" {
		return Module{}, fmt.Errorf("%w: module without moduleId", ErrInvalidDocument)
	}
	return Module{
		ModuleID: id,
		Name:     str(raw["name"]),
		Steps:    decodeSteps(raw["steps"]),
		Raw:      raw,
	}, nil
}

func decodeSteps(v any) []Step {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	steps := make([]Step, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			steps = append(steps, OtherStep{})
			continue
		}
		steps = append(steps, decodeStep(m))
	}
	return steps
}

func decodeStep(m map[string]any) Step {
	typ := strings.ToUpper(strings.TrimSpace(str(m["type"])))
	switch typ {
	case StepTypeModule:
		return ModuleRef{ModuleID: strings.TrimSpace(str(m["moduleId"]))}
	case StepTypePresetAction:
		cmd, _ := m["command"].(map[string]any)
		return PresetAction{Command: decodeCommand(cmd)}
	default:
		return OtherStep{Type: typ}
	}
}

func decodeCommand(m map[string]any) Command {
	if m == nil {
		return Command{}
	}
	cmd := Command{
		Type:         strings.ToUpper(strings.TrimSpace(str(m["type"]))),
		Value:        m["value"],
		PressEnter:   boolean(m["pressEnter"]),
		ClearContent: boolean(m["clearContent"]),
	}
	if a, ok := m["assertion"]; ok && a != nil {
		cmd.Assertion = fmt.Sprint(a)
	}
	if target, ok := m["target"].(map[string]any); ok {
		if d := str(target["elementDescriptor"]); d != "" {
			cmd.Target = &Target{ElementDescriptor: d}
		}
	}
	return cmd
}

func decodeEnvs(v any) []Env {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Env, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if name := str(m["name"]); name != "" {
			out = append(out, Env{Name: name})
		}
	}
	return out
}

// NormalizeMap converts nested map[any]any values (as produced by some YAML
// decoders) into map[string]any so the document can be JSON encoded.
func NormalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, _ := normalize(m).(map[string]any)
	return out
}

func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

func str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func boolean(v any) bool {
	b, _ := v.(bool)
	return b
}

func strList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s := str(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
