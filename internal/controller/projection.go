package controller

import "image-converter/internal/model"

var visibleByPhase = map[model.Phase]model.ControlSet{
	model.PhaseIdle: model.NewControlSet(),
	model.PhaseInputSelected: model.NewControlSet(
		model.ControlInputDisplay,
		model.ControlOutputPicker,
	),
	model.PhaseReadyToConvert: model.NewControlSet(
		model.ControlInputDisplay,
		model.ControlOutputPicker,
		model.ControlConvertButton,
	),
	model.PhaseRunning: model.NewControlSet(
		model.ControlInputDisplay,
		model.ControlOutputPicker,
		model.ControlProgressBar,
		model.ControlCancelButton,
	),
	model.PhaseSucceeded: model.NewControlSet(
		model.ControlInputDisplay,
		model.ControlOutputPicker,
		model.ControlSuccessMessage,
	),
	model.PhaseFailed: model.NewControlSet(
		model.ControlFailureMessage,
	),
}

// Project derives the full UI state from a phase. Progress is only shown
// while running; a finished conversion always shows 100.
func Project(phase model.Phase, percent int, input, output model.Handle) model.UiState {
	state := model.UiState{
		Phase:   phase,
		Visible: visibleByPhase[phase],
		Input:   input,
		Output:  output,
	}
	switch phase {
	case model.PhaseRunning:
		state.Progress = clampPercent(percent)
	case model.PhaseSucceeded:
		state.Progress = 100
	}
	return state
}
