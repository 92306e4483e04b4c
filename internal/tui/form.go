package tui

import (
	"strings"

	"ryco/internal/chat"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
)

// Form styles
var (
	formLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Width(20)

	formFocusedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("205")).
				Bold(true).
				Width(20)

	formErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// ProfileInputs creates one input per profile field, in render order
func ProfileInputs() []textinput.Model {
	inputs := make([]textinput.Model, len(chat.ProfileFields))
	for i, f := range chat.ProfileFields {
		inputs[i] = textinput.New()
		inputs[i].Placeholder = strings.ToLower(f.Label)
		inputs[i].CharLimit = 200
		inputs[i].Width = 40
		inputs[i].Prompt = ""
	}
	inputs[0].Focus()
	return inputs
}

// GetProfile extracts the profile map from the inputs. Empty fields are kept
// so that clearing a field persists.
func GetProfile(inputs []textinput.Model) map[string]string {
	details := make(map[string]string, len(inputs))
	for i, f := range chat.ProfileFields {
		details[f.Key] = strings.TrimSpace(inputs[i].Value())
	}
	return details
}

// SetProfile populates the inputs from existing details
func SetProfile(inputs []textinput.Model, details map[string]string) {
	for i, f := range chat.ProfileFields {
		inputs[i].SetValue(details[f.Key])
	}
}

// RenderForm renders the profile form
func RenderForm(inputs []textinput.Model, focusIndex int, title string, errorMsg string) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(separatorStyle.Render(strings.Repeat("─", 50)))
	b.WriteString("\n\n")

	for i, input := range inputs {
		label := chat.ProfileFields[i].Label + ":"
		if i == focusIndex {
			b.WriteString(formFocusedStyle.Render(label))
		} else {
			b.WriteString(formLabelStyle.Render(label))
		}
		b.WriteString(" ")
		b.WriteString(input.View())
		b.WriteString("\n")
	}

	if errorMsg != "" {
		b.WriteString("\n")
		b.WriteString(formErrorStyle.Render("✗ " + errorMsg))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(separatorStyle.Render(strings.Repeat("─", 50)))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("Tab/↓: next │ Shift+Tab/↑: previous │ Enter/ctrl+s: save │ Esc: back"))

	return b.String()
}

// NextFormField moves focus to the next form field
func NextFormField(inputs []textinput.Model, currentFocus int) int {
	inputs[currentFocus].Blur()
	nextFocus := (currentFocus + 1) % len(inputs)
	inputs[nextFocus].Focus()
	return nextFocus
}

// PrevFormField moves focus to the previous form field
func PrevFormField(inputs []textinput.Model, currentFocus int) int {
	inputs[currentFocus].Blur()
	prevFocus := currentFocus - 1
	if prevFocus < 0 {
		prevFocus = len(inputs) - 1
	}
	inputs[prevFocus].Focus()
	return prevFocus
}
