package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kubefit/kubefit/internal/report"
)

// Phase names one stage of an analysis run.
type Phase int

const (
	PhaseDiscovering Phase = iota
	PhaseCollecting
	PhaseAnalyzing
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseDiscovering:
		return "Discovering cluster state..."
	case PhaseCollecting:
		return "Collecting usage metrics..."
	case PhaseAnalyzing:
		return "Analyzing..."
	default:
		return "Done"
	}
}

// PhaseMsg advances the progress display.
type PhaseMsg Phase

// DoneMsg ends the run, successfully or not.
type DoneMsg struct {
	Report report.Report
	Err    error
}

// tickMsg fires every second for the elapsed-time display.
type tickMsg time.Time

// Model is the bubbletea model for the analysis progress TUI.
type Model struct {
	cluster string
	phase   Phase
	start   time.Time

	rep *report.Report
	err error

	spinner  spinner.Model
	width    int
	quitting bool
}

// NewModel creates a progress model for one cluster run.
func NewModel(cluster string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	return Model{
		cluster: cluster,
		start:   time.Now(),
		spinner: s,
	}
}

// Init starts the bubbletea program.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case PhaseMsg:
		m.phase = Phase(msg)
		return m, nil

	case DoneMsg:
		m.phase = PhaseDone
		m.rep = &msg.Report
		m.err = msg.Err
		return m, tea.Quit

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m Model) View() string {
	if m.quitting {
		return "Analysis cancelled.\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("kubefit"))
	b.WriteString(" ")
	b.WriteString(labelStyle.Render(m.cluster))
	b.WriteString("\n\n")

	if m.phase == PhaseDone {
		if m.err != nil {
			b.WriteString(errorStyle.Render("Analysis failed: " + m.err.Error()))
		} else if m.rep != nil {
			b.WriteString(okStyle.Render(fmt.Sprintf("Analysis complete: %d recommendations", m.rep.Summary.TotalRecommendations)))
		}
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(m.phase.String())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("elapsed %s", time.Since(m.start).Round(time.Second))))
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("q to cancel"))
	b.WriteString("\n")

	return b.String()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunWithProgress executes run under a live progress display. The run
// callback reports phase changes through the returned function and must
// not write to the terminal itself.
func RunWithProgress(cluster string, run func(setPhase func(Phase)) (report.Report, error)) (report.Report, error) {
	p := tea.NewProgram(NewModel(cluster))

	var (
		rep    report.Report
		runErr error
	)
	go func() {
		rep, runErr = run(func(ph Phase) { p.Send(PhaseMsg(ph)) })
		p.Send(DoneMsg{Report: rep, Err: runErr})
	}()

	if _, err := p.Run(); err != nil {
		return report.Report{}, fmt.Errorf("progress display: %w", err)
	}
	return rep, runErr
}
