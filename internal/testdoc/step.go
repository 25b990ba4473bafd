package testdoc

// Step is one entry of a test or module step list. The concrete type is one of
// ModuleRef, PresetAction or OtherStep.
type Step interface {
	StepType() string
	isStep()
}

const (
	StepTypeModule       = "MODULE"
	StepTypePresetAction = "PRESET_ACTION"
)

// ModuleRef points at a shared module. Modules are expanded one level deep.
type ModuleRef struct {
	ModuleID string
}

func (ModuleRef) StepType() string { return StepTypeModule }
func (ModuleRef) isStep()          {}

// PresetAction is a concrete browser command.
type PresetAction struct {
	Command Command
}

func (PresetAction) StepType() string { return StepTypePresetAction }
func (PresetAction) isStep()          {}

// OtherStep is any step tag the condenser does not understand.
type OtherStep struct {
	Type string
}

func (s OtherStep) StepType() string { return s.Type }
func (OtherStep) isStep()            {}

type Command struct {
	Type         string
	Target       *Target
	Value        any
	PressEnter   bool
	ClearContent bool
	Assertion    string
}

type Target struct {
	ElementDescriptor string
}
