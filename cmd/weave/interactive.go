package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	methodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#666666")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#87CEEB"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectMethod modelState = iota
	stateShowDiff
)

type interactiveModel struct {
	filename string
	methods  []methodView
	visible  []int
	filter   textinput.Model
	view     viewport.Model
	selected int
	width    int
	height   int
	state    modelState
	ready    bool
}

func newInteractiveModel(filename string, methods []methodView) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "Type::Method"
	ti.Prompt = "filter: "
	ti.Width = 40

	m := &interactiveModel{
		filename: filename,
		methods:  methods,
		filter:   ti,
		state:    stateSelectMethod,
	}
	m.applyFilter()
	return m
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) applyFilter() {
	q := strings.ToLower(m.filter.Value())
	m.visible = m.visible[:0]
	for i, v := range m.methods {
		if q == "" || strings.Contains(strings.ToLower(v.name), q) {
			m.visible = append(m.visible, i)
		}
	}
	if m.selected >= len(m.visible) {
		m.selected = max(len(m.visible)-1, 0)
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if !m.ready {
			m.view = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.view.Width = msg.Width
			m.view.Height = msg.Height - 4
		}
		if m.state == stateShowDiff {
			m.view.SetContent(m.renderDiff())
		}
		return m, nil

	case tea.KeyMsg:
		if m.filter.Focused() {
			switch msg.String() {
			case "enter", "esc":
				m.filter.Blur()
				return m, nil
			}
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			m.applyFilter()
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "/":
			if m.state == stateSelectMethod {
				m.filter.Focus()
				return m, textinput.Blink
			}

		case "up", "k":
			if m.state == stateSelectMethod && m.selected > 0 {
				m.selected--
				return m, nil
			}

		case "down", "j":
			if m.state == stateSelectMethod && m.selected < len(m.visible)-1 {
				m.selected++
				return m, nil
			}

		case "enter":
			if m.state == stateSelectMethod && len(m.visible) > 0 && m.ready {
				m.state = stateShowDiff
				m.view.SetContent(m.renderDiff())
				m.view.GotoTop()
				return m, nil
			}

		case "esc":
			if m.state == stateShowDiff {
				m.state = stateSelectMethod
				return m, nil
			}
		}
	}

	if m.state == stateShowDiff {
		var cmd tea.Cmd
		m.view, cmd = m.view.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) current() methodView {
	return m.methods[m.visible[m.selected]]
}

// renderDiff lays the disassembly before and after weaving side by side.
func (m *interactiveModel) renderDiff() string {
	v := m.current()
	w := max(m.width/2-4, 20)
	left := paneStyle.Width(w).Render(headerStyle.Render("before") + "\n\n" + v.before)
	right := paneStyle.Width(w).Render(headerStyle.Render("after") + "\n\n" + v.after)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Weaver"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectMethod:
		b.WriteString(m.filter.View())
		b.WriteString("\n\n")
		if len(m.visible) == 0 {
			b.WriteString(helpStyle.Render("no methods"))
			b.WriteString("\n")
		}
		for i, idx := range m.visible {
			line := m.formatMethod(m.methods[idx])
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter show • / filter • q quit"))

	case stateShowDiff:
		b.WriteString(m.view.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render(fmt.Sprintf("%s • ↑/↓ scroll • esc back • q quit", m.current().name)))
	}

	return b.String()
}

func (m *interactiveModel) formatMethod(v methodView) string {
	regions := "unchanged"
	switch v.regions {
	case 0:
	case 1:
		regions = "1 region"
	default:
		regions = fmt.Sprintf("%d regions", v.regions)
	}
	return methodStyle.Render(v.name) + " " + countStyle.Render(regions)
}

func runInteractive(filename string, methods []methodView) error {
	p := tea.NewProgram(newInteractiveModel(filename, methods), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
