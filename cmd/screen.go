package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"image-converter/internal/config"
	"image-converter/internal/controller"
	"image-converter/internal/conversion"
	"image-converter/internal/model"
	"image-converter/internal/resource"
)

const pickerHeight = 12

var imageTypes = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Bold(true).
			Padding(0, 2)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33"))

	dimStyle = lipgloss.NewStyle().
			Faint(true)
)

type pickTarget int

const (
	pickNone pickTarget = iota
	pickInput
	pickOutput
)

// dispatchMsg carries a function posted to the UI context.
type dispatchMsg func()

// programDispatcher runs posted functions inside the program's Update.
type programDispatcher struct {
	p *tea.Program
}

func (d programDispatcher) Post(fn func()) {
	d.p.Send(dispatchMsg(fn))
}

// screenModel is the interactive converter screen. It is both the bubbletea
// model and the controller's view.
type screenModel struct {
	ctrl     *controller.Controller
	startDir string

	state   model.UiState
	failure error
	notice  string

	form       *huh.Form
	target     pickTarget
	inputPath  string
	outputPath string

	progress progress.Model
}

func runScreen(cfg *config.Config) error {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return fmt.Errorf("inspect stdin: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 {
		return fmt.Errorf("interactive mode requires a terminal; use --input and --output instead")
	}

	logger, closeLog, err := newLogger(cfg, nil)
	if err != nil {
		return err
	}
	defer closeLog()

	engine, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}

	screen := newScreenModel(cfg.StartDir)
	p := tea.NewProgram(screen, tea.WithAltScreen())
	screen.ctrl = controller.New(controller.Deps{
		Engine:     engine,
		Provider:   resource.NewFileProvider(),
		View:       screen,
		Dispatcher: programDispatcher{p: p},
		Logger:     logger,
	})

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run converter screen: %w", err)
	}
	if err := screen.ctrl.Shutdown(); err != nil {
		logger.Errorf("Background conversion did not finish cleanly: %v", err)
	}
	return nil
}

func newScreenModel(startDir string) *screenModel {
	if strings.TrimSpace(startDir) == "" {
		startDir = "."
	}
	return &screenModel{
		startDir: startDir,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
	}
}

// Render implements controller.View.
func (m *screenModel) Render(s model.UiState) {
	m.state = s
	m.failure = nil
	if s.Visible.Has(model.ControlFailureMessage) {
		m.failure = m.ctrl.LastError()
	}
}

func (m *screenModel) Init() tea.Cmd {
	m.ctrl.Attach()
	return nil
}

func (m *screenModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case dispatchMsg:
		msg()
		return m, nil
	case tea.WindowSizeMsg:
		m.progress.Width = max(10, min(msg.Width-4, 60))
	}

	if m.form != nil {
		return m.updateForm(msg)
	}
	if msg, ok := msg.(tea.KeyMsg); ok {
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m *screenModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	visible := m.state.Visible
	running := m.state.Phase == model.PhaseRunning

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "i":
		if !running {
			return m, m.openInputPicker()
		}
	case "o":
		if canPickOutput(m.state) {
			return m, m.openOutputPicker()
		}
	case "enter", "s":
		if visible.Has(model.ControlConvertButton) {
			m.apply(m.ctrl.Start())
		}
	case "c", "esc":
		if visible.Has(model.ControlCancelButton) {
			m.apply(m.ctrl.Cancel())
		}
	}
	return m, nil
}

func (m *screenModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.finishPick(false)
	case huh.StateAborted:
		m.finishPick(true)
	}
	return m, cmd
}

func (m *screenModel) openInputPicker() tea.Cmd {
	m.target = pickInput
	m.inputPath = ""
	m.notice = ""
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewFilePicker().
				Title("Pick an image to convert").
				Description("Enter opens folders and picks files. Esc cancels.").
				CurrentDirectory(m.startDir).
				AllowedTypes(imageTypes).
				Height(pickerHeight).
				Picking(true).
				Value(&m.inputPath),
		),
	).WithKeyMap(pickerKeyMap()).WithShowHelp(true)
	return m.form.Init()
}

func (m *screenModel) openOutputPicker() tea.Cmd {
	m.target = pickOutput
	m.notice = ""
	m.outputPath = string(m.state.Output)
	if m.state.Output.IsZero() {
		m.outputPath = string(resource.DefaultOutput(m.state.Input))
	}
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Save PNG as").
				Description("Enter confirms. Esc cancels and discards the selection.").
				Value(&m.outputPath).
				Validate(validateOutputPath),
		),
	).WithKeyMap(pickerKeyMap()).WithShowHelp(true)
	return m.form.Init()
}

// finishPick hands a closed picker's result to the controller. A dismissed
// input picker changes nothing; a dismissed output picker is a failure.
func (m *screenModel) finishPick(aborted bool) {
	target := m.target
	m.form = nil
	m.target = pickNone

	switch target {
	case pickInput:
		if !aborted {
			m.apply(m.ctrl.PickInput(model.Handle(m.inputPath)))
		}
	case pickOutput:
		if aborted {
			m.apply(m.ctrl.CancelOutputPick())
			return
		}
		m.apply(m.ctrl.PickOutput(model.Handle(strings.TrimSpace(m.outputPath))))
	}
}

func (m *screenModel) apply(err error) {
	m.notice = ""
	if err != nil {
		m.notice = err.Error()
	}
}

func (m *screenModel) View() string {
	lines := []string{headerStyle.Render("Image to PNG"), ""}
	if m.form != nil {
		lines = append(lines, m.form.View())
		return strings.Join(lines, "\n")
	}

	s := m.state
	if s.Phase == model.PhaseIdle {
		lines = append(lines, "Pick an image to start.")
	}
	if s.Visible.Has(model.ControlInputDisplay) {
		lines = append(lines, "Input:  "+infoStyle.Render(string(s.Input)))
	}
	if s.Visible.Has(model.ControlOutputPicker) {
		output := infoStyle.Render(string(s.Output))
		if s.Output.IsZero() {
			output = dimStyle.Render("not chosen")
		}
		lines = append(lines, "Output: "+output)
	}
	if s.Visible.Has(model.ControlProgressBar) {
		lines = append(lines, "", m.progress.ViewAs(float64(s.Progress)/100))
	}
	if s.Visible.Has(model.ControlSuccessMessage) {
		lines = append(lines, "", successStyle.Render("Converted to "+string(s.Output)))
	}
	if s.Visible.Has(model.ControlFailureMessage) {
		lines = append(lines, "", errorStyle.Render("Conversion failed: "+failureText(m.failure)))
	}
	if m.notice != "" {
		lines = append(lines, "", dimStyle.Render(m.notice))
	}

	lines = append(lines, "", helpLine(s))
	return strings.Join(lines, "\n")
}

func helpLine(s model.UiState) string {
	keys := make([]string, 0, 5)
	if s.Phase != model.PhaseRunning {
		keys = append(keys, "i pick image")
	}
	if canPickOutput(s) {
		keys = append(keys, "o choose output")
	}
	if s.Visible.Has(model.ControlConvertButton) {
		keys = append(keys, "enter convert")
	}
	if s.Visible.Has(model.ControlCancelButton) {
		keys = append(keys, "c cancel")
	}
	keys = append(keys, "q quit")
	return "Keys: " + strings.Join(keys, " | ")
}

// canPickOutput reports whether the output picker accepts a new choice. After
// a conversion it only shows where the PNG went.
func canPickOutput(s model.UiState) bool {
	if !s.Visible.Has(model.ControlOutputPicker) {
		return false
	}
	return s.Phase == model.PhaseInputSelected || s.Phase == model.PhaseReadyToConvert
}

func failureText(err error) string {
	switch {
	case err == nil:
		return "unknown error"
	case conversion.IsCancelled(err):
		return "cancelled"
	case errors.Is(err, controller.ErrOutputNotChosen):
		return "no output location was chosen"
	default:
		return err.Error()
	}
}

func pickerKeyMap() *huh.KeyMap {
	km := huh.NewDefaultKeyMap()
	km.Quit = key.NewBinding(key.WithKeys("ctrl+c", "esc"))
	return km
}

func validateOutputPath(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("enter a file name")
	}
	if stat, err := os.Stat(path); err == nil && stat.IsDir() {
		return errors.New("that is a folder; enter a file name")
	}
	return nil
}
