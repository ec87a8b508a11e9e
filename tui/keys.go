package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	Left      key.Binding
	Right     key.Binding
	Grab      key.Binding
	Open      key.Binding
	Back      key.Binding
	NewTask   key.Binding
	NewColumn key.Binding
	Rename    key.Binding
	Duplicate key.Binding
	Status    key.Binding
	Delete    key.Binding
	DeleteCol key.Binding
	Search    key.Binding
	Category  key.Binding
	Refresh   key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Left:      key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "left")),
		Right:     key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "right")),
		Grab:      key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "grab/drop")),
		Open:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		Back:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		NewTask:   key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new task")),
		NewColumn: key.NewBinding(key.WithKeys("N"), key.WithHelp("N", "new column")),
		Rename:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rename column")),
		Duplicate: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "duplicate")),
		Status:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "cycle status")),
		Delete:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "delete task")),
		DeleteCol: key.NewBinding(key.WithKeys("X"), key.WithHelp("X", "delete column")),
		Search:    key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Category:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "filter column")),
		Refresh:   key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "refresh")),
		Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Grab, k.Open, k.NewTask, k.Search, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right},
		{k.Grab, k.Open, k.Back, k.Refresh},
		{k.NewTask, k.Duplicate, k.Status, k.Delete},
		{k.NewColumn, k.Rename, k.DeleteCol},
		{k.Search, k.Category, k.Help, k.Quit},
	}
}
