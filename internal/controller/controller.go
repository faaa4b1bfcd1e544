// Package controller owns the converter screen's interaction state. All
// methods except Shutdown must be called on the UI context, the goroutine
// that also runs functions handed to the Dispatcher.
package controller

import (
	"context"
	"errors"
	"fmt"

	"image-converter/internal/conversion"
	"image-converter/internal/logging"
	"image-converter/internal/model"
	"image-converter/internal/worker"
)

var (
	// ErrInvalidTransition is returned for intents the current phase does
	// not accept. State is left untouched.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrEmptyHandle is returned when a pick carries no resource.
	ErrEmptyHandle = errors.New("empty resource handle")
	// ErrOutputNotChosen is recorded when the output pick is dismissed.
	ErrOutputNotChosen = errors.New("output location was not chosen")
)

// View renders the screen from a complete UiState.
type View interface {
	Render(state model.UiState)
}

// Dispatcher runs functions on the UI context in the order they are posted.
type Dispatcher interface {
	Post(fn func())
}

// Engine starts a conversion in the background and reports its events.
type Engine interface {
	Launch(ctx context.Context, p conversion.Provider, input, output model.Handle) <-chan conversion.Event
}

// Deps are the collaborators a Controller is built from.
type Deps struct {
	Engine     Engine
	Provider   conversion.Provider
	View       View
	Dispatcher Dispatcher
	Logger     *logging.Logger
}

// Controller is the converter screen's state machine.
type Controller struct {
	engine   Engine
	provider conversion.Provider
	view     View
	dispatch Dispatcher
	logger   *logging.Logger
	tasks    worker.Group

	phase   model.Phase
	input   model.Handle
	output  model.Handle
	percent int
	lastErr error

	// generation identifies the current session; events carrying an older
	// value belong to a released session.
	generation uint64
	cancel     context.CancelFunc
}

// New creates a controller in the Idle phase.
func New(d Deps) *Controller {
	logger := d.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Controller{
		engine:   d.Engine,
		provider: d.Provider,
		view:     d.View,
		dispatch: d.Dispatcher,
		logger:   logger,
		phase:    model.PhaseIdle,
	}
}

// Attach pushes the current state to the view.
func (c *Controller) Attach() {
	c.render()
}

// Phase returns the current phase.
func (c *Controller) Phase() model.Phase {
	return c.phase
}

// State returns the projection the view currently shows.
func (c *Controller) State() model.UiState {
	return Project(c.phase, c.percent, c.input, c.output)
}

// LastError returns why the most recent attempt failed, or nil.
func (c *Controller) LastError() error {
	return c.lastErr
}

// PickInput selects the input and discards any previous output choice.
func (c *Controller) PickInput(h model.Handle) error {
	if h.IsZero() {
		return ErrEmptyHandle
	}
	if c.phase == model.PhaseRunning {
		return c.reject("pick input")
	}

	c.input = h
	c.output = ""
	c.percent = 0
	c.lastErr = nil
	c.logger.Infof("Input picked: %s", h)
	c.transition(model.PhaseInputSelected, "pick input")
	return nil
}

// PickOutput selects where the PNG is written.
func (c *Controller) PickOutput(h model.Handle) error {
	if h.IsZero() {
		return ErrEmptyHandle
	}
	if c.phase != model.PhaseInputSelected && c.phase != model.PhaseReadyToConvert {
		return c.reject("pick output")
	}

	c.output = h
	c.logger.Infof("Output picked: %s", h)
	c.transition(model.PhaseReadyToConvert, "pick output")
	return nil
}

// CancelOutputPick handles a dismissed output picker. Like any other
// failure it clears both selections.
func (c *Controller) CancelOutputPick() error {
	if c.phase != model.PhaseInputSelected && c.phase != model.PhaseReadyToConvert {
		return c.reject("cancel output pick")
	}

	c.fail(ErrOutputNotChosen, "cancel output pick")
	return nil
}

// Start launches the conversion of the selected input into the selected
// output. Resources are opened on the background goroutine.
func (c *Controller) Start() error {
	if c.phase != model.PhaseReadyToConvert {
		return c.reject("start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.generation++
	gen := c.generation
	c.cancel = cancel
	c.percent = 0
	c.lastErr = nil

	c.logger.Infof("Starting conversion #%d: %s -> %s", gen, c.input, c.output)
	c.transition(model.PhaseRunning, "start")

	events := c.engine.Launch(ctx, c.provider, c.input, c.output)
	c.tasks.Go(ctx, func(context.Context) error {
		for ev := range events {
			ev := ev
			c.dispatch.Post(func() { c.handleEvent(gen, ev) })
		}
		return nil
	})
	return nil
}

// Cancel aborts the running conversion. The UI side is released at once;
// stream teardown finishes in the background.
func (c *Controller) Cancel() error {
	if c.phase != model.PhaseRunning {
		return c.reject("cancel")
	}

	c.logger.Infof("Cancelling conversion #%d", c.generation)
	c.release()
	c.fail(&conversion.Error{Kind: conversion.KindCancelled, Op: "cancel", Err: context.Canceled}, "cancel")
	return nil
}

// Shutdown cancels any running conversion and waits until all background
// work, including stream teardown, has finished. Call it once the UI
// context no longer processes posted functions.
func (c *Controller) Shutdown() error {
	c.release()
	if err := c.tasks.Wait(); err != nil {
		return fmt.Errorf("wait for background conversions: %w", err)
	}
	return nil
}

func (c *Controller) handleEvent(gen uint64, ev conversion.Event) {
	if gen != c.generation || c.phase != model.PhaseRunning {
		c.logger.Debugf("Dropping %s from released conversion #%d", ev, gen)
		return
	}

	if ev.Terminal() {
		c.release()
	}
	switch ev.Type {
	case conversion.EventProgress:
		c.percent = clampPercent(ev.Percent)
		c.render()
	case conversion.EventSuccess:
		c.percent = 100
		c.logger.Infof("Conversion #%d succeeded: %s", gen, c.output)
		c.transition(model.PhaseSucceeded, "success")
	case conversion.EventFailure:
		c.logger.Warnf("Conversion #%d failed: %v", gen, ev.Err)
		c.fail(ev.Err, "failure")
	}
}

func (c *Controller) fail(err error, event string) {
	c.lastErr = err
	c.input = ""
	c.output = ""
	c.percent = 0
	c.transition(model.PhaseFailed, event)
}

func (c *Controller) release() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) transition(to model.Phase, event string) {
	c.logger.Debugf("Phase %s -> %s on %s", c.phase, to, event)
	c.phase = to
	c.render()
}

func (c *Controller) render() {
	if c.view != nil {
		c.view.Render(c.State())
	}
}

func (c *Controller) reject(event string) error {
	c.logger.Debugf("Ignoring %s while %s", event, c.phase)
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, event, c.phase)
}

func clampPercent(p int) int {
	return max(0, min(p, 100))
}
