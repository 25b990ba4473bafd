package synopsis

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testsummary/internal/testdoc"
)

func click(target string) testdoc.Step {
	return testdoc.PresetAction{Command: testdoc.Command{
		Type:   "CLICK",
		Target: &testdoc.Target{ElementDescriptor: target},
	}}
}

func TestCondenseSingleClick(t *testing.T) {
	tc := testdoc.Test{ID: "T1", Steps: []testdoc.Step{click("#submit")}}
	got := Condense(tc, nil, Expanded)
	assert.Equal(t, []string{"CLICK, target=#submit"}, got)
}

func TestCondenseCommandParts(t *testing.T) {
	step := testdoc.PresetAction{Command: testdoc.Command{
		Type:         "TYPE",
		Target:       &testdoc.Target{ElementDescriptor: "email"},
		Value:        "a@b.c",
		Assertion:    "field filled",
		PressEnter:   true,
		ClearContent: true,
	}}
	assert.Equal(t, "TYPE, target=email, value=a@b.c, assertion=field filled, pressEnter, clearContent", Line(step))
	assert.Equal(t, "NAVIGATE", Line(testdoc.OtherStep{Type: "NAVIGATE"}))
}

func TestCondenseTruncatesLongValues(t *testing.T) {
	long := strings.Repeat("x", 200)
	step := testdoc.PresetAction{Command: testdoc.Command{Type: "TYPE", Value: long, Assertion: long}}
	line := Line(step)

	parts := strings.Split(line, ", ")
	require.Len(t, parts, 3)
	value := strings.TrimPrefix(parts[1], "value=")
	assertion := strings.TrimPrefix(parts[2], "assertion=")
	assert.Equal(t, 78, utf8.RuneCountInString(value))
	assert.True(t, strings.HasSuffix(value, "…"))
	assert.Equal(t, 118, utf8.RuneCountInString(assertion))
	assert.True(t, strings.HasSuffix(assertion, "…"))

	exact := strings.Repeat("y", 80)
	assert.Equal(t, "value="+exact, Line(testdoc.PresetAction{Command: testdoc.Command{Value: exact}}))
}

func TestCondenseModules(t *testing.T) {
	login := testdoc.Module{
		ModuleID: "login",
		Name:     "Login",
		Steps:    []testdoc.Step{click("user"), click("pass"), click("go"), click("ok")},
	}
	tc := testdoc.Test{Steps: []testdoc.Step{
		testdoc.ModuleRef{ModuleID: "login"},
		click("cart"),
	}}
	idx := testdoc.IndexModules([]testdoc.Module{login})

	expanded := Condense(tc, idx, Expanded)
	assert.Equal(t, []string{
		"CLICK, target=user",
		"CLICK, target=pass",
		"CLICK, target=go",
		"CLICK, target=ok",
		"CLICK, target=cart",
	}, expanded)

	collapsed := Condense(tc, idx, Collapsed)
	assert.Equal(t, []string{
		"MODULE Login (4 steps): CLICK, target=user; CLICK, target=pass; CLICK, target=go; …",
		"CLICK, target=cart",
	}, collapsed)
}

func TestCondenseMissingModuleKeepsStepCount(t *testing.T) {
	tc := testdoc.Test{Steps: []testdoc.Step{
		click("a"),
		testdoc.ModuleRef{ModuleID: "gone"},
		click("b"),
	}}
	for _, mode := range []Mode{Expanded, Collapsed} {
		got := Condense(tc, testdoc.ModuleIndex{}, mode)
		assert.Equal(t, []string{"CLICK, target=a", "MODULE gone (missing)", "CLICK, target=b"}, got, mode)
	}
}

func TestCondenseIsDeterministic(t *testing.T) {
	mod := testdoc.Module{ModuleID: "m", Name: "M", Steps: []testdoc.Step{click("x")}}
	tc := testdoc.Test{Steps: []testdoc.Step{testdoc.ModuleRef{ModuleID: "m"}, click("y")}}
	idx := testdoc.IndexModules([]testdoc.Module{mod})
	first := Condense(tc, idx, Collapsed)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Condense(tc, idx, Collapsed))
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Expanded, m)

	m, err = ParseMode(" Collapsed ")
	require.NoError(t, err)
	assert.Equal(t, Collapsed, m)

	_, err = ParseMode("folded")
	assert.Error(t, err)
}
