package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasmc"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	unresolvedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	detailStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type browserModel struct {
	info      *moduleInfo
	filter    textinput.Model
	visible   []wasmc.Import
	selected  int
	filtering bool
}

func newBrowserModel(info *moduleInfo) *browserModel {
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "filter imports"
	ti.Width = 40
	m := &browserModel{info: info, filter: ti}
	m.applyFilter()
	return m
}

func (m *browserModel) Init() tea.Cmd {
	return nil
}

// applyFilter keeps imports whose key contains the filter text.
func (m *browserModel) applyFilter() {
	q := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	m.visible = m.visible[:0]
	for _, imp := range m.info.imports {
		key := strings.ToLower(imp.Namespace + "/" + imp.Field)
		if q == "" || strings.Contains(key, q) {
			m.visible = append(m.visible, imp)
		}
	}
	if m.selected >= len(m.visible) {
		m.selected = max(len(m.visible)-1, 0)
	}
}

func (m *browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.filtering {
		switch key.String() {
		case "enter", "esc":
			m.filtering = false
			m.filter.Blur()
			return m, nil
		case "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.applyFilter()
		return m, cmd
	}

	switch key.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.visible)-1 {
			m.selected++
		}
	case "/":
		m.filtering = true
		return m, m.filter.Focus()
	case "esc":
		m.filter.SetValue("")
		m.applyFilter()
	}
	return m, nil
}

func (m *browserModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("wasmc inspect"))
	b.WriteString(" ")
	b.WriteString(m.info.path)
	b.WriteString("\n\n")
	if m.filtering || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Imports (%d, %d unresolved)\n\n", len(m.info.imports), m.info.unresolved())
	if len(m.visible) == 0 {
		b.WriteString(helpStyle.Render("  no matching imports"))
		b.WriteString("\n")
	}
	for i, imp := range m.visible {
		key := imp.Namespace + "/" + imp.Field
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + key))
		} else {
			b.WriteString("  " + nameStyle.Render(key))
		}
		b.WriteString(m.formatImport(imp))
		b.WriteString("\n")
	}

	if m.selected < len(m.visible) {
		b.WriteString("\n")
		b.WriteString(detailStyle.Render(m.detail(m.visible[m.selected])))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ select • / filter • esc clear • q quit"))
	return b.String()
}

// formatImport renders the type and resolution shown after the key.
func (m *browserModel) formatImport(imp wasmc.Import) string {
	var line string
	if imp.Type != "" {
		line = " " + typeStyle.Render(imp.Type)
	}
	status := importStatus(imp)
	if imp.Kind == "func" && !imp.Resolved() {
		status = unresolvedStyle.Render(status)
	}
	return line + "  " + status
}

func (m *browserModel) detail(imp wasmc.Import) string {
	var b strings.Builder
	fmt.Fprintf(&b, "namespace  %s\n", imp.Namespace)
	fmt.Fprintf(&b, "field      %s\n", imp.Field)
	fmt.Fprintf(&b, "kind       %s\n", imp.Kind)
	if imp.Type != "" {
		fmt.Fprintf(&b, "type       %s\n", imp.Type)
	}
	switch {
	case imp.Builtin:
		fmt.Fprintf(&b, "symbol     %s (patched builtin)", imp.Symbol)
	case imp.Resolved():
		fmt.Fprintf(&b, "symbol     %s", imp.Symbol)
	case imp.Kind == "func":
		b.WriteString(unresolvedStyle.Render("no binding; compilation will fail"))
	default:
		b.WriteString("provided by the runtime")
	}
	return b.String()
}

func runInteractive(info *moduleInfo) error {
	p := tea.NewProgram(newBrowserModel(info), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
