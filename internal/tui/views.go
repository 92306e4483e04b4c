package tui

import (
	"fmt"
	"strings"

	"ryco/internal/surface"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")).
			Bold(true)

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	activeSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("42")).
				Background(lipgloss.Color("57")).
				Bold(true)

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205"))

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))

	responseBoxStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("57")).
				Padding(0, 1)

	darkResponseBoxStyle = responseBoxStyle.
				BorderForeground(lipgloss.Color("241"))
)

// RenderComposeView renders the composer, and the response panel when a
// response is open
func (m Model) RenderComposeView() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Ryco"))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render(m.activeLabel()))
	b.WriteString("\n")
	b.WriteString(separatorStyle.Render(strings.Repeat("─", m.ruleWidth())))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")

	if m.viewState == ViewResponse {
		b.WriteString("\n")
		b.WriteString(m.renderResponse())
		b.WriteString("\n")
	}

	b.WriteString(separatorStyle.Render(strings.Repeat("─", m.ruleWidth())))
	b.WriteString("\n")
	b.WriteString(m.RenderStatusBar())
	return b.String()
}

func (m Model) renderResponse() string {
	v, ok := m.surface.View()
	if !ok {
		return dimStyle.Render("No response")
	}

	var header string
	switch {
	case v.Err != nil:
		header = errorStyle.Render("✗ " + v.Err.Error())
	case v.Complete:
		header = activeStyle.Render("✓ " + truncate(v.Prompt, 40))
	default:
		header = dimStyle.Render("… " + truncate(v.Prompt, 40))
	}

	box := responseBoxStyle
	if m.settings.Theme == "dark" {
		box = darkResponseBoxStyle
	}
	return header + "\n" + box.Render(m.response.View())
}

// RenderStatusBar renders the status bar with toast, message and key hints
func (m Model) RenderStatusBar() string {
	var parts []string

	switch {
	case m.toast != nil:
		parts = append(parts, renderToast(*m.toast))
	case m.errorMsg != "":
		parts = append(parts, errorStyle.Render("✗ "+m.errorMsg))
	case m.message != "":
		parts = append(parts, messageStyle.Render("✓ "+m.message))
	}

	bindings := m.keys.ShortHelp()
	if m.viewState == ViewResponse {
		bindings = m.keys.ResponseHelp()
	}
	var hints []string
	for _, kb := range bindings {
		hints = append(hints, renderBinding(kb))
	}
	parts = append(parts, strings.Join(hints, " │ "))

	return statusBarStyle.Render(strings.Join(parts, "  "))
}

func renderToast(t surface.Toast) string {
	text := t.Title
	if t.Message != "" {
		text += ": " + t.Message
	}
	switch t.Kind {
	case surface.ToastError:
		return errorStyle.Render("✗ " + text)
	case surface.ToastSuccess:
		return messageStyle.Render("✓ " + text)
	default:
		return normalStyle.Render("• " + text)
	}
}

func renderBinding(kb key.Binding) string {
	h := kb.Help()
	return helpKeyStyle.Render(h.Key) + helpStyle.Render(": "+h.Desc)
}

// RenderProviderView renders the provider list
func (m Model) RenderProviderView() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Providers"))
	b.WriteString("\n")
	b.WriteString(separatorStyle.Render(strings.Repeat("─", 50)))
	b.WriteString("\n\n")

	if len(m.providers) == 0 {
		b.WriteString(dimStyle.Render("  Loading providers..."))
		b.WriteString("\n")
	}

	for i, p := range m.providers {
		keyState := dimStyle.Render("no key")
		if m.settings.HasKey[p.ID] {
			keyState = messageStyle.Render("key set")
		}
		line := fmt.Sprintf("%-14s %-28s", p.DisplayName, p.ResolveModel(m.settings.SelectedModels[p.ID]))
		isActive := p.ID == m.settings.ActiveProvider

		var rendered string
		switch {
		case i == m.cursor && isActive:
			rendered = activeSelectedStyle.Render("> * " + line)
		case i == m.cursor:
			rendered = selectedStyle.Render(">   " + line)
		case isActive:
			rendered = activeStyle.Render("  * " + line)
		default:
			rendered = normalStyle.Render("    " + line)
		}
		b.WriteString(rendered + " " + keyState + "\n")
	}

	b.WriteString("\n")
	b.WriteString(separatorStyle.Render(strings.Repeat("─", 50)))
	b.WriteString("\n")
	b.WriteString(m.renderHelpLine(m.keys.Up, m.keys.Down, m.keys.Select, m.keys.Models, m.keys.Cancel))
	return b.String()
}

// RenderModelView renders the model list of the provider under the cursor
func (m Model) RenderModelView() string {
	var b strings.Builder

	p, ok := m.cursorProvider()
	if !ok {
		return dimStyle.Render("No provider selected")
	}

	b.WriteString(titleStyle.Render("Models: " + p.DisplayName))
	b.WriteString("\n")
	b.WriteString(separatorStyle.Render(strings.Repeat("─", 50)))
	b.WriteString("\n\n")

	current := p.ResolveModel(m.settings.SelectedModels[p.ID])
	for i, model := range p.Models {
		isActive := model == current
		var rendered string
		switch {
		case i == m.modelCursor && isActive:
			rendered = activeSelectedStyle.Render("> * " + model)
		case i == m.modelCursor:
			rendered = selectedStyle.Render(">   " + model)
		case isActive:
			rendered = activeStyle.Render("  * " + model)
		default:
			rendered = normalStyle.Render("    " + model)
		}
		b.WriteString(rendered + "\n")
	}

	b.WriteString("\n")
	b.WriteString(separatorStyle.Render(strings.Repeat("─", 50)))
	b.WriteString("\n")
	b.WriteString(m.renderHelpLine(m.keys.Up, m.keys.Down, m.keys.Select, m.keys.Cancel))
	return b.String()
}

// RenderHelpView renders every binding
func (m Model) RenderHelpView() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Help"))
	b.WriteString("\n")
	b.WriteString(separatorStyle.Render(strings.Repeat("─", 50)))
	b.WriteString("\n\n")
	b.WriteString(normalStyle.Render("Type @Ryco <prompt>// to ask. The response appears below the composer."))
	b.WriteString("\n\n")

	for _, group := range m.keys.FullHelp() {
		for _, kb := range group {
			h := kb.Help()
			b.WriteString(fmt.Sprintf("  %s  %s\n", helpKeyStyle.Render(fmt.Sprintf("%-12s", h.Key)), normalStyle.Render(h.Desc)))
		}
		b.WriteString("\n")
	}

	b.WriteString(separatorStyle.Render(strings.Repeat("─", 50)))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("Press Esc or F1 to go back"))
	return b.String()
}

func (m Model) renderHelpLine(bindings ...key.Binding) string {
	var hints []string
	for _, kb := range bindings {
		hints = append(hints, renderBinding(kb))
	}
	return strings.Join(hints, " │ ")
}

func (m Model) activeLabel() string {
	for _, p := range m.providers {
		if p.ID == m.settings.ActiveProvider {
			return p.DisplayName + " · " + p.ResolveModel(m.settings.SelectedModels[p.ID])
		}
	}
	return m.settings.ActiveProvider
}

func (m Model) ruleWidth() int {
	if m.width > 0 {
		return m.width
	}
	return 50
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
