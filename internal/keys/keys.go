// Package keys contains keybinding definitions.
package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings of the inspector.
type KeyMap struct {
	// Navigation
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding

	// Library actions
	AddBook      key.Binding
	CreateMember key.Binding
	Stats        key.Binding
	Remount      key.Binding

	// Diagnostics
	ToggleTrace       key.Binding
	ToggleSuggestions key.Binding
	ToggleLogs        key.Binding
	Clear             key.Binding

	// General
	Help key.Binding
	Quit key.Binding
}

// Inspector is the default inspector keymap.
var Inspector = DefaultKeyMap()

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		// Navigation
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "scroll down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "bottom"),
		),

		// Library actions
		AddBook: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "add book"),
		),
		CreateMember: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "create member"),
		),
		Stats: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "stats"),
		),
		Remount: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "remount library"),
		),

		// Diagnostics
		ToggleTrace: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "toggle dispatch trace"),
		),
		ToggleSuggestions: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "toggle suggestions"),
		),
		ToggleLogs: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "toggle log pane"),
		),
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear"),
		),

		// General
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns keybindings for the short help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.AddBook, k.ToggleTrace, k.Help, k.Quit}
}

// FullHelp returns keybindings for the full help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Top, k.Bottom},                             // Navigation
		{k.AddBook, k.CreateMember, k.Stats, k.Remount},             // Library
		{k.ToggleTrace, k.ToggleSuggestions, k.ToggleLogs, k.Clear}, // Diagnostics
		{k.Help, k.Quit},                                            // General
	}
}
