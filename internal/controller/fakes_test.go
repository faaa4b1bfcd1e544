package controller

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"image-converter/internal/conversion"
	"image-converter/internal/model"
	"image-converter/internal/uiloop"
)

// recordingView keeps every rendered state. It is only touched on the loop
// goroutine.
type recordingView struct {
	states []model.UiState
}

func (v *recordingView) Render(state model.UiState) {
	v.states = append(v.states, state)
}

func (v *recordingView) last() model.UiState {
	if len(v.states) == 0 {
		return model.UiState{}
	}
	return v.states[len(v.states)-1]
}

// launch is one call to scriptedEngine.Launch. Tests feed events through
// feed; cancelling ctx ends the sequence with a cancellation failure.
type launch struct {
	ctx    context.Context
	input  model.Handle
	output model.Handle
	feed   chan conversion.Event
}

type scriptedEngine struct {
	mu       sync.Mutex
	launches []*launch
}

func (e *scriptedEngine) Launch(ctx context.Context, _ conversion.Provider, input, output model.Handle) <-chan conversion.Event {
	l := &launch{ctx: ctx, input: input, output: output, feed: make(chan conversion.Event)}
	e.mu.Lock()
	e.launches = append(e.launches, l)
	e.mu.Unlock()

	events := make(chan conversion.Event)
	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				events <- conversion.Failure(&conversion.Error{Kind: conversion.KindCancelled, Op: "read input", Err: ctx.Err()})
				return
			case ev := <-l.feed:
				events <- ev
				if ev.Terminal() {
					return
				}
			}
		}
	}()
	return events
}

func (e *scriptedEngine) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.launches)
}

func (e *scriptedEngine) latest(t *testing.T) *launch {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	require.NotEmpty(t, e.launches, "no conversion was launched")
	return e.launches[len(e.launches)-1]
}

// harness runs a controller on a uiloop.Loop, the way the console front end
// does.
type harness struct {
	t      *testing.T
	loop   *uiloop.Loop
	view   *recordingView
	ctrl   *Controller
	engine *scriptedEngine
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, nil, nil)
}

// newHarnessWith builds a harness around a real engine and provider when
// given; otherwise a scriptedEngine is used.
func newHarnessWith(t *testing.T, engine Engine, provider conversion.Provider) *harness {
	t.Helper()

	h := &harness{t: t, loop: uiloop.New(), view: &recordingView{}}
	if engine == nil {
		h.engine = &scriptedEngine{}
		engine = h.engine
	}
	h.ctrl = New(Deps{
		Engine:     engine,
		Provider:   provider,
		View:       h.view,
		Dispatcher: h.loop,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.loop.Run(context.Background())
	}()
	t.Cleanup(func() {
		h.loop.Stop()
		<-done
		require.NoError(t, h.ctrl.Shutdown())
	})

	h.on(func(c *Controller) { c.Attach() })
	return h
}

// on runs fn on the loop goroutine and waits for it.
func (h *harness) on(fn func(c *Controller)) {
	h.t.Helper()
	require.True(h.t, h.loop.Call(func() { fn(h.ctrl) }), "loop stopped")
}

func (h *harness) do(intent func(c *Controller) error) error {
	h.t.Helper()
	var err error
	h.on(func(c *Controller) { err = intent(c) })
	return err
}

func (h *harness) state() model.UiState {
	h.t.Helper()
	var s model.UiState
	h.on(func(c *Controller) { s = c.State() })
	return s
}

func (h *harness) renders() []model.UiState {
	h.t.Helper()
	var out []model.UiState
	h.on(func(*Controller) { out = append(out, h.view.states...) })
	return out
}

func (h *harness) lastError() error {
	h.t.Helper()
	var err error
	h.on(func(c *Controller) { err = c.LastError() })
	return err
}

func (h *harness) waitFor(cond func(model.UiState) bool, msg string) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		var ok bool
		h.loop.Call(func() { ok = cond(h.view.last()) })
		return ok
	}, 2*time.Second, 5*time.Millisecond, msg)
}

func (h *harness) waitPhase(p model.Phase) {
	h.t.Helper()
	h.waitFor(func(s model.UiState) bool { return s.Phase == p }, "phase "+p.String())
}

func (h *harness) ready(input, output model.Handle) {
	h.t.Helper()
	require.NoError(h.t, h.do(func(c *Controller) error { return c.PickInput(input) }))
	require.NoError(h.t, h.do(func(c *Controller) error { return c.PickOutput(output) }))
}

// stallingReader serves allowed chunks and then blocks until unblock is
// closed, after which it fails.
type stallingReader struct {
	chunk   int
	allowed int
	served  int
	unblock chan struct{}
	closes  atomic.Int32
}

func (r *stallingReader) Read(p []byte) (int, error) {
	if r.served >= r.allowed {
		<-r.unblock
		return 0, io.ErrClosedPipe
	}
	r.served++
	n := min(len(p), r.chunk)
	copy(p, bytes.Repeat([]byte{'x'}, n))
	return n, nil
}

func (r *stallingReader) Close() error {
	r.closes.Add(1)
	return nil
}

type abortingWriter struct {
	buf    bytes.Buffer
	closes atomic.Int32
	aborts atomic.Int32
}

func (w *abortingWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *abortingWriter) Close() error {
	w.closes.Add(1)
	return nil
}

func (w *abortingWriter) Abort() error {
	w.aborts.Add(1)
	return nil
}

type stubProvider struct {
	input     io.ReadCloser
	length    int64
	output    io.WriteCloser
	inputErr  error
	outputErr error
}

func (p *stubProvider) OpenInput(model.Handle) (io.ReadCloser, int64, error) {
	if p.inputErr != nil {
		return nil, 0, p.inputErr
	}
	return p.input, p.length, nil
}

func (p *stubProvider) OpenOutput(model.Handle) (io.WriteCloser, error) {
	if p.outputErr != nil {
		return nil, p.outputErr
	}
	return p.output, nil
}

var errPermission = errors.New("permission denied")
