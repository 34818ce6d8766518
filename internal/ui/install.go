// Package ui provides the install progress view.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/aayushdutt/mcinstall/internal/install"
)

const (
	stepPending = "pending"
	stepRunning = "running"
	stepDone    = "done"
	stepError   = "error"
)

// RunFunc performs an install, sending status updates to the channel.
type RunFunc func(ctx context.Context, statusChan chan<- install.Status) (*install.Report, error)

// InstallModel shows install progress
type InstallModel struct {
	versionID string
	run       RunFunc
	width     int

	progress progress.Model
	status   install.Status
	steps    []stepInfo
	done     bool
	quitting bool

	statusChan chan install.Status
	cancel     context.CancelFunc

	// Written by the install goroutine before statusChan is closed.
	report *install.Report
	err    error
}

type stepInfo struct {
	name   string
	status string // pending, running, done, error
}

// NewInstallModel creates a new install view. The install starts on Init.
func NewInstallModel(versionID string, run RunFunc) *InstallModel {
	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(50),
	)

	names := install.Steps()
	steps := make([]stepInfo, len(names))
	for i, name := range names {
		steps[i] = stepInfo{name: name, status: stepPending}
	}

	return &InstallModel{
		versionID: versionID,
		run:       run,
		progress:  p,
		steps:     steps,
		width:     80,
	}
}

// SetSize updates dimensions
func (m *InstallModel) SetSize(width int) {
	m.width = width
	m.progress.Width = max(width-10, 10)
}

// Result returns the install outcome once the view has finished.
func (m *InstallModel) Result() (*install.Report, error) {
	return m.report, m.err
}

// Init implements tea.Model
func (m *InstallModel) Init() tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.statusChan = make(chan install.Status, 32)

	go func() {
		m.report, m.err = m.run(ctx, m.statusChan)
		close(m.statusChan)
	}()

	return m.waitForStatus()
}

// waitForStatus creates a command that waits for the next install status
func (m *InstallModel) waitForStatus() tea.Cmd {
	return func() tea.Msg {
		status, ok := <-m.statusChan
		if !ok {
			// Channel closed, install finished
			return InstallComplete{Report: m.report, Error: m.err}
		}
		return InstallStatusUpdate{Status: status}
	}
}

// Update implements tea.Model
func (m *InstallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width)
		return m, nil

	case InstallStatusUpdate:
		m.status = msg.Status
		m.updateSteps()
		return m, tea.Batch(m.progress.SetPercent(msg.Status.Progress), m.waitForStatus())

	case InstallComplete:
		m.done = true
		m.report = msg.Report
		m.err = msg.Error
		m.finishSteps()
		if m.quitting {
			return m, tea.Quit
		}
		return m, nil

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			if m.done {
				return m, tea.Quit
			}
			// Quit once the install has stopped
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
		case "enter":
			if m.done {
				return m, tea.Quit
			}
		}
	}

	return m, nil
}

func (m *InstallModel) stepIndex(name string) int {
	for i := range m.steps {
		if m.steps[i].name == name {
			return i
		}
	}
	return -1
}

func (m *InstallModel) updateSteps() {
	if m.status.IsComplete {
		for i := range m.steps {
			m.steps[i].status = stepDone
		}
		return
	}

	current := m.stepIndex(m.status.Step)
	if current < 0 {
		return
	}
	for i := range m.steps[:current] {
		if m.steps[i].status != stepError {
			m.steps[i].status = stepDone
		}
	}
	if m.status.Error != nil {
		m.steps[current].status = stepError
	} else {
		m.steps[current].status = stepRunning
	}
}

func (m *InstallModel) finishSteps() {
	for i := range m.steps {
		if m.steps[i].status != stepRunning {
			continue
		}
		if m.err != nil {
			m.steps[i].status = stepError
		} else {
			m.steps[i].status = stepDone
		}
	}
}

// View implements tea.Model
func (m *InstallModel) View() string {
	header := TitleStyle.Render(fmt.Sprintf("Installing: %s", m.versionID))

	var info string
	if m.report != nil && m.report.Manifest != nil {
		mf := m.report.Manifest
		info = InfoStyle.Render(fmt.Sprintf("%s • %d libraries • %s", mf.Type, len(mf.Libraries), strings.Join(mf.Chain, " → ")))
	}

	// Steps
	var stepsView strings.Builder
	for _, step := range m.steps {
		s := stepStyles[step.status]
		stepsView.WriteString(s.style.Render(fmt.Sprintf("%s %s", s.icon, step.name)))
		stepsView.WriteString("\n")
	}

	statusMsg := InfoStyle.Render(ansi.Truncate(m.status.Message, max(m.width-2, 10), "…"))

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		info,
		"",
		m.progress.View(),
		"",
		stepsView.String(),
		statusMsg,
		m.footer(),
	)
}

func (m *InstallModel) footer() string {
	if !m.done {
		if m.quitting {
			return HelpStyle.Render("\nCancelling...")
		}
		return HelpStyle.Render("\n[Esc] Cancel • [Ctrl+C] Quit")
	}

	const back = "\n\nPress Enter to exit"
	switch {
	case m.report == nil && m.err != nil:
		return ErrorStyle.Render(fmt.Sprintf("\n✗ Failed: %v%s", m.err, back))
	case m.report == nil:
		return HelpStyle.Render("\nNothing to do" + back)
	}

	summary := m.report.Summary()
	switch {
	case m.err != nil:
		return ErrorStyle.Render(fmt.Sprintf("\n✗ %s: %v%s", summary, m.err, back))
	case m.report.State == install.StateUnusable:
		return ErrorStyle.Render("\n✗ " + summary + back)
	case m.report.State == install.StateMissingAssets:
		return WarningStyle.Render("\n! " + summary + back)
	default:
		return SuccessStyle.Render("\n✓ " + summary + back)
	}
}
