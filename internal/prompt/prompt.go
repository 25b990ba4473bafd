// Package prompt turns a test and its condensed steps into the system and
// user prompts sent to the generation service.
package prompt

import (
	"strings"

	"testsummary/internal/testdoc"
)

// MaxSteps caps the condensed step lines sent upstream. Extra lines are dropped.
const MaxSteps = 120

const systemInstruction = "You are given a condensed synopsis of an end-to-end browser test and must summarize it. " +
	"Be concise and factual. Output sections: Purpose, Preconditions, Main Flow, Assertions. " +
	"Add Side Effects and Risks sections only when the steps clearly imply them."

// Build returns the system instruction and the user prompt for a test.
func Build(t testdoc.Test, synopsis []string) (system, user string) {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		name = "Unnamed test"
	}
	envs := make([]string, 0, len(t.Envs))
	for _, e := range t.Envs {
		if e.Name != "" {
			envs = append(envs, e.Name)
		}
	}
	envLine := "Envs: (none)"
	if len(envs) > 0 {
		envLine = "Envs: " + strings.Join(envs, ", ")
	}

	if len(synopsis) > MaxSteps {
		synopsis = synopsis[:MaxSteps]
	}
	lines := make([]string, 0, 4+len(synopsis))
	lines = append(lines,
		"Test: "+name,
		"Description: "+t.Description,
		envLine,
		"Steps (condensed):",
	)
	for _, s := range synopsis {
		lines = append(lines, "- "+s)
	}
	return systemInstruction, strings.Join(lines, "\n")
}
