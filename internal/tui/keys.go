package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the panel key bindings.
type KeyMap struct {
	PowerOn  key.Binding
	PowerOff key.Binding
	Up       key.Binding
	Down     key.Binding
	Connect  key.Binding
	Rescan   key.Binding
	Quit     key.Binding
}

// DefaultKeyMap mirrors the handheld's face buttons on a keyboard.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		PowerOn:  key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "radio on")),
		PowerOff: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "radio off")),
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Connect:  key.NewBinding(key.WithKeys("a", "enter"), key.WithHelp("a", "connect")),
		Rescan:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan")),
		Quit:     key.NewBinding(key.WithKeys("b", "q", "esc", "ctrl+c"), key.WithHelp("b", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.PowerOn, k.PowerOff, k.Up, k.Down, k.Connect, k.Rescan, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.PowerOn, k.PowerOff, k.Rescan},
		{k.Up, k.Down, k.Connect},
		{k.Quit},
	}
}
