package model

import "strings"

// Handle identifies an input or output resource, usually a file path.
// The zero value means "not selected".
type Handle string

// IsZero reports whether the handle is unset.
func (h Handle) IsZero() bool {
	return strings.TrimSpace(string(h)) == ""
}

// Phase is the controller's interaction state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInputSelected
	PhaseReadyToConvert
	PhaseRunning
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseInputSelected:
		return "input-selected"
	case PhaseReadyToConvert:
		return "ready"
	case PhaseRunning:
		return "running"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase ends a conversion attempt.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// Control is a screen element whose visibility the controller decides.
type Control uint8

const (
	ControlInputDisplay Control = iota
	ControlOutputPicker
	ControlConvertButton
	ControlProgressBar
	ControlCancelButton
	ControlSuccessMessage
	ControlFailureMessage

	controlCount
)

var controlNames = [...]string{
	ControlInputDisplay:   "input-display",
	ControlOutputPicker:   "output-picker",
	ControlConvertButton:  "convert-button",
	ControlProgressBar:    "progress-bar",
	ControlCancelButton:   "cancel-button",
	ControlSuccessMessage: "success-message",
	ControlFailureMessage: "failure-message",
}

func (c Control) String() string {
	if c < controlCount {
		return controlNames[c]
	}
	return "unknown"
}

// ControlSet is a set of visible controls.
type ControlSet uint16

// NewControlSet builds a set from the given controls.
func NewControlSet(controls ...Control) ControlSet {
	var s ControlSet
	for _, c := range controls {
		s = s.With(c)
	}
	return s
}

// With returns a copy of the set including c.
func (s ControlSet) With(c Control) ControlSet {
	return s | 1<<c
}

// Has reports whether c is in the set.
func (s ControlSet) Has(c Control) bool {
	return s&(1<<c) != 0
}

// Controls lists the members in declaration order.
func (s ControlSet) Controls() []Control {
	out := make([]Control, 0, controlCount)
	for c := Control(0); c < controlCount; c++ {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (s ControlSet) String() string {
	controls := s.Controls()
	names := make([]string, 0, len(controls))
	for _, c := range controls {
		names = append(names, c.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}

// UiState is the complete picture a view renders. It is always pushed
// wholesale; views never patch it incrementally.
type UiState struct {
	Phase    Phase
	Visible  ControlSet
	Progress int
	Input    Handle
	Output   Handle
}
