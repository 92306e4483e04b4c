package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard shortcuts
type KeyMap struct {
	Insert    key.Binding // Enter - insert response
	Copy      key.Binding // ctrl+y - copy response
	Cancel    key.Binding // Esc - discard response / go back
	Providers key.Binding // ctrl+p - provider list
	Profile   key.Binding // ctrl+u - profile form
	Up        key.Binding
	Down      key.Binding
	Select    key.Binding
	Models    key.Binding // m - model list for the provider under the cursor
	Next      key.Binding
	Prev      key.Binding
	Save      key.Binding
	Help      key.Binding
	Quit      key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Insert: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("Enter", "insert"),
		),
		Copy: key.NewBinding(
			key.WithKeys("ctrl+y"),
			key.WithHelp("ctrl+y", "copy"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("Esc", "cancel"),
		),
		Providers: key.NewBinding(
			key.WithKeys("ctrl+p"),
			key.WithHelp("ctrl+p", "providers"),
		),
		Profile: key.NewBinding(
			key.WithKeys("ctrl+u"),
			key.WithHelp("ctrl+u", "profile"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("Enter", "select"),
		),
		Models: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "models"),
		),
		Next: key.NewBinding(
			key.WithKeys("tab", "down"),
			key.WithHelp("Tab/↓", "next field"),
		),
		Prev: key.NewBinding(
			key.WithKeys("shift+tab", "up"),
			key.WithHelp("Shift+Tab/↑", "previous field"),
		),
		Save: key.NewBinding(
			key.WithKeys("ctrl+s", "enter"),
			key.WithHelp("ctrl+s", "save"),
		),
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("F1", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

// ShortHelp returns short help text
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Providers, k.Profile, k.Help, k.Quit}
}

// ResponseHelp is shown while a response is on screen
func (k KeyMap) ResponseHelp() []key.Binding {
	return []key.Binding{k.Insert, k.Copy, k.Cancel, k.Quit}
}

// FullHelp returns full help text
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Insert, k.Copy, k.Cancel},
		{k.Providers, k.Models, k.Profile},
		{k.Up, k.Down, k.Select},
		{k.Help, k.Quit},
	}
}
