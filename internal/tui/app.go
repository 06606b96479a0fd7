// Package tui provides the interactive terminal interface for Quartet.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/quartetops/quartet/internal/orchestrator"
	"github.com/quartetops/quartet/pkg/models"
)

// RunFunc executes one request through the orchestrator.
type RunFunc func(ctx context.Context, userID, request string) (*models.RunResult, error)

// EventMsg wraps an orchestrator event for the TUI.
type EventMsg struct {
	Event orchestrator.Event
}

// RunDoneMsg signals that a run has completed.
type RunDoneMsg struct {
	Result *models.RunResult
	Err    error
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	stepStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	authStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
)

// App is the bubbletea model for interactive mode.
type App struct {
	input   textinput.Model
	spinner spinner.Model

	userID string
	run    RunFunc

	running   bool
	cancelRun context.CancelFunc
	steps     []string
	history   []string
	authURLs  []string
	err       error

	width    int
	quitting bool
}

// New creates the interactive app. Orchestrator events reach it through
// the program returned by Start.
func New(userID string, run RunFunc) *App {
	ti := textinput.New()
	ti.Placeholder = "describe a task (e.g. \"list my github issues\")"
	ti.PromptStyle = promptStyle
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &App{
		input:   ti,
		spinner: sp,
		userID:  userID,
		run:     run,
	}
}

// Start runs the TUI event loop and returns the program so callers can
// feed it orchestrator events via Send.
func Start(app *App) *tea.Program {
	return tea.NewProgram(app)
}

func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

// submit starts a run for the current input text. The run's context is
// cancelled when the user quits, so an in-flight workflow stops at its
// next step instead of outliving the TUI.
func (a *App) submit(request string) tea.Cmd {
	a.running = true
	a.steps = nil
	a.authURLs = nil
	a.err = nil

	ctx, cancel := context.WithCancel(context.Background())
	a.cancelRun = cancel
	return func() tea.Msg {
		defer cancel()
		result, err := a.run(ctx, a.userID, request)
		return RunDoneMsg{Result: result, Err: err}
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			a.quitting = true
			if a.cancelRun != nil {
				a.cancelRun()
			}
			return a, tea.Quit
		case "enter":
			request := strings.TrimSpace(a.input.Value())
			if request == "" || a.running {
				return a, nil
			}
			a.input.Reset()
			return a, tea.Batch(a.submit(request), a.spinner.Tick)
		}

	case EventMsg:
		a.recordEvent(msg.Event)
		return a, nil

	case RunDoneMsg:
		a.running = false
		a.err = msg.Err
		if msg.Result != nil {
			a.recordResult(msg.Result)
		}
		return a, nil

	case spinner.TickMsg:
		if !a.running {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) recordEvent(e orchestrator.Event) {
	switch e.Phase {
	case orchestrator.PhaseClassifying:
		a.steps = append(a.steps, "classifying request")
	case orchestrator.PhaseSingleAgentDispatch:
		a.steps = append(a.steps, fmt.Sprintf("dispatching to %s agent", e.Agent))
	case orchestrator.PhaseWorkflowExecuting:
		if e.Step != "" {
			a.steps = append(a.steps, fmt.Sprintf("step %s (%s agent)", e.Step, e.Agent))
		} else {
			a.steps = append(a.steps, fmt.Sprintf("running workflow %s", e.Message))
		}
	}
}

func (a *App) recordResult(result *models.RunResult) {
	status := okStyle.Render("ok")
	if !result.OK {
		status = failStyle.Render("failed")
	}

	target := string(result.Agent)
	if result.Workflow != "" {
		target = "workflow " + result.Workflow
	}
	a.history = append(a.history, fmt.Sprintf("[%s] %s: %s", status, target, result.Request))

	for _, line := range strings.Split(result.Summary, "\n") {
		if line == "" {
			continue
		}
		a.history = append(a.history, "  "+line)
		// Surface authorization URLs prominently.
		if strings.Contains(line, "authorization required") {
			a.authURLs = append(a.authURLs, strings.TrimSpace(line))
		}
	}
}

func (a *App) View() string {
	if a.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("quartet") + helpStyle.Render("  multi-agent coordinator") + "\n\n")

	for _, line := range a.history {
		b.WriteString(line + "\n")
	}

	if len(a.authURLs) > 0 {
		b.WriteString("\n")
		for _, url := range a.authURLs {
			b.WriteString(authStyle.Render("! "+url) + "\n")
		}
	}

	if a.running {
		b.WriteString("\n" + a.spinner.View() + " working\n")
		for _, s := range a.steps {
			b.WriteString(stepStyle.Render("  · "+s) + "\n")
		}
	} else {
		if a.err != nil {
			b.WriteString("\n" + failStyle.Render("error: "+a.err.Error()) + "\n")
		}
		b.WriteString("\n" + a.input.View() + "\n")
	}

	b.WriteString("\n" + helpStyle.Render("enter: run task · esc: quit") + "\n")
	return b.String()
}
