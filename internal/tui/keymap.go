package tui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	MoveUp   key.Binding
	MoveDown key.Binding

	AddUser  key.Binding
	AddModel key.Binding
	Remove   key.Binding
	Role     key.Binding
	Type     key.Binding
	Edit     key.Binding
	Image    key.Binding

	GenerateText  key.Binding
	GenerateImage key.Binding
	Aspect        key.Binding
	Size          key.Binding
	Download      key.Binding

	APIKey key.Binding
	Clear  key.Binding

	Submit key.Binding
	Cancel key.Binding

	Help key.Binding
	Quit key.Binding
}

var DefaultKeyMap = KeyMap{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "prev")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next")),
	MoveUp:   key.NewBinding(key.WithKeys("K", "shift+up"), key.WithHelp("K", "move up")),
	MoveDown: key.NewBinding(key.WithKeys("J", "shift+down"), key.WithHelp("J", "move down")),

	AddUser:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add user")),
	AddModel: key.NewBinding(key.WithKeys("A"), key.WithHelp("A", "add model")),
	Remove:   key.NewBinding(key.WithKeys("x", "delete"), key.WithHelp("x", "remove")),
	Role:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "role")),
	Type:     key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "type")),
	Edit:     key.NewBinding(key.WithKeys("enter", "e"), key.WithHelp("enter", "edit text")),
	Image:    key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "image file")),

	GenerateText:  key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "gen text")),
	GenerateImage: key.NewBinding(key.WithKeys("G"), key.WithHelp("G", "gen image")),
	Aspect:        key.NewBinding(key.WithKeys("["), key.WithHelp("[", "aspect")),
	Size:          key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "size")),
	Download:      key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "save")),

	APIKey: key.NewBinding(key.WithKeys("ctrl+k"), key.WithHelp("ctrl+k", "api key")),
	Clear:  key.NewBinding(key.WithKeys("C"), key.WithHelp("C", "clear all")),

	Submit: key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "save")),
	Cancel: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),

	Help: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Edit, k.GenerateText, k.GenerateImage, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.MoveUp, k.MoveDown},
		{k.AddUser, k.AddModel, k.Remove, k.Clear},
		{k.Role, k.Type, k.Edit, k.Image},
		{k.GenerateText, k.GenerateImage, k.Aspect, k.Size},
		{k.Download, k.APIKey, k.Help, k.Quit},
	}
}

// editing switches the bindings between browsing and an open editor or prompt.
func (k *KeyMap) editing(on bool) {
	for _, b := range []*key.Binding{
		&k.Up, &k.Down, &k.MoveUp, &k.MoveDown, &k.AddUser, &k.AddModel, &k.Remove,
		&k.Role, &k.Type, &k.Edit, &k.Image, &k.GenerateText, &k.GenerateImage,
		&k.Aspect, &k.Size, &k.Download, &k.APIKey, &k.Clear, &k.Help,
	} {
		b.SetEnabled(!on)
	}
	k.Submit.SetEnabled(on)
	k.Cancel.SetEnabled(on)
	// q types into the editor; ctrl+c still quits.
	if on {
		k.Quit = key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit"))
	} else {
		k.Quit = DefaultKeyMap.Quit
	}
}
