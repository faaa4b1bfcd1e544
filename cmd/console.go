package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"image-converter/internal/config"
	"image-converter/internal/controller"
	"image-converter/internal/conversion"
	"image-converter/internal/model"
	"image-converter/internal/resource"
	"image-converter/internal/uiloop"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	failureColor = color.New(color.FgRed, color.Bold)
	cancelColor  = color.New(color.FgYellow)
)

// consoleView draws the running conversion as a progress bar. onFinish is
// called once the attempt has ended.
type consoleView struct {
	out      io.Writer
	bar      *progressbar.ProgressBar
	onFinish func(model.UiState)
	finished bool
}

func newConsoleView(out io.Writer) *consoleView {
	return &consoleView{out: out}
}

func (v *consoleView) Render(s model.UiState) {
	if s.Visible.Has(model.ControlProgressBar) {
		if v.bar == nil {
			v.bar = newProgressBar(v.out, s.Input)
		}
		_ = v.bar.Set(s.Progress)
	} else if v.bar != nil {
		if s.Phase == model.PhaseSucceeded {
			_ = v.bar.Finish()
		} else {
			_ = v.bar.Exit()
		}
		v.bar = nil
	}

	if s.Phase.Terminal() && !v.finished {
		v.finished = true
		if v.onFinish != nil {
			v.onFinish(s)
		}
	}
}

func newProgressBar(out io.Writer, input model.Handle) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(filepath.Base(string(input))),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(out)
		}),
	)
}

// runHeadless converts input to output without the interactive screen. The
// controller runs on a uiloop; SIGINT or SIGTERM cancels the conversion.
func runHeadless(ctx context.Context, cfg *config.Config, input, output model.Handle, out io.Writer) error {
	logger, closeLog, err := newLogger(cfg, out)
	if err != nil {
		return err
	}
	defer closeLog()

	engine, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}

	loop := uiloop.New()
	view := newConsoleView(out)
	ctrl := controller.New(controller.Deps{
		Engine:     engine,
		Provider:   resource.NewFileProvider(),
		View:       view,
		Dispatcher: loop,
		Logger:     logger,
	})

	var result model.UiState
	var resultErr error
	view.onFinish = func(s model.UiState) {
		result = s
		resultErr = ctrl.LastError()
		loop.Stop()
	}

	loop.Post(func() {
		ctrl.Attach()
		for _, step := range []func() error{
			func() error { return ctrl.PickInput(input) },
			func() error { return ctrl.PickOutput(output) },
			ctrl.Start,
		} {
			if err := step(); err != nil {
				resultErr = err
				loop.Stop()
				return
			}
		}
	})

	// The start steps are queued before any cancellation can be.
	sigCtx, stop := signal.NotifyContext(contextOrBackground(ctx), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		loop.Post(func() {
			if ctrl.Phase() == model.PhaseRunning {
				_ = ctrl.Cancel()
			}
		})
	}()

	_ = loop.Run(context.Background())
	if err := ctrl.Shutdown(); err != nil {
		logger.Errorf("Background conversion did not finish cleanly: %v", err)
	}

	return report(out, result, resultErr, input, output)
}

func report(out io.Writer, s model.UiState, err error, input, output model.Handle) error {
	if s.Phase == model.PhaseSucceeded {
		size := ""
		if stat, statErr := os.Stat(string(output)); statErr == nil {
			size = fmt.Sprintf(" (%s)", humanize.Bytes(uint64(stat.Size())))
		}
		successColor.Fprintf(out, "Converted %s to %s%s\n", input, output, size)
		return nil
	}

	switch {
	case err == nil:
		err = errors.New("conversion did not finish")
	case conversion.IsCancelled(err):
		cancelColor.Fprintln(out, "Conversion cancelled")
		return errReported
	}
	failureColor.Fprintf(out, "Conversion failed: %v\n", err)
	return errReported
}
