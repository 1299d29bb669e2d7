package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ideapedyudi/tabby/internal/menu"
)

type pickerKeys struct {
	Up, Down, Open, Back, Quit key.Binding
}

var defaultPickerKeys = pickerKeys{
	Up:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Open: key.NewBinding(key.WithKeys("enter", "right", "l"), key.WithHelp("enter", "select")),
	Back: key.NewBinding(key.WithKeys("esc", "left", "h"), key.WithHelp("esc", "back")),
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type pickerLevel struct {
	title  string
	items  []menu.Item
	cursor int
}

// MenuPicker lets the user walk a menu tree and choose one clickable item.
// It does not run the item; callers read Selected and click the path.
type MenuPicker struct {
	keys          pickerKeys
	stack         []pickerLevel
	width, height int

	done   bool
	chosen []int
}

// NewMenuPicker creates a picker over items.
func NewMenuPicker(title string, items []menu.Item) *MenuPicker {
	return &MenuPicker{
		keys:  defaultPickerKeys,
		stack: []pickerLevel{{title: title, items: items}},
	}
}

func (p *MenuPicker) Init() tea.Cmd { return nil }

func (p *MenuPicker) top() *pickerLevel { return &p.stack[len(p.stack)-1] }

// Update handles key and resize events.
func (p *MenuPicker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width, p.height = msg.Width, msg.Height
		return p, nil
	case tea.KeyMsg:
		return p.handleKey(msg)
	}
	return p, nil
}

func (p *MenuPicker) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	lvl := p.top()
	switch {
	case key.Matches(msg, p.keys.Quit):
		p.done = true
		p.chosen = nil
		return p, tea.Quit
	case key.Matches(msg, p.keys.Up):
		if n := len(lvl.items); n > 0 {
			lvl.cursor = (lvl.cursor - 1 + n) % n
		}
	case key.Matches(msg, p.keys.Down):
		if n := len(lvl.items); n > 0 {
			lvl.cursor = (lvl.cursor + 1) % n
		}
	case key.Matches(msg, p.keys.Back):
		if len(p.stack) == 1 {
			p.done = true
			p.chosen = nil
			return p, tea.Quit
		}
		p.stack = p.stack[:len(p.stack)-1]
	case key.Matches(msg, p.keys.Open):
		if len(lvl.items) == 0 {
			return p, nil
		}
		it := lvl.items[lvl.cursor]
		if len(it.Submenu) > 0 {
			p.stack = append(p.stack, pickerLevel{title: it.Label, items: it.Submenu})
			return p, nil
		}
		if it.Click == nil {
			return p, nil
		}
		p.done = true
		p.chosen = p.path()
		return p, tea.Quit
	}
	return p, nil
}

func (p *MenuPicker) path() []int {
	out := make([]int, len(p.stack))
	for i, lvl := range p.stack {
		out[i] = lvl.cursor
	}
	return out
}

// Selected returns the path of the chosen item, or false if the user
// cancelled or hasn't chosen yet.
func (p *MenuPicker) Selected() ([]int, bool) {
	if !p.done || p.chosen == nil {
		return nil, false
	}
	return p.chosen, true
}

// View renders the current menu level.
func (p *MenuPicker) View() string {
	if p.done {
		return ""
	}
	lvl := p.top()

	titles := make([]string, 0, len(p.stack))
	for _, l := range p.stack {
		if l.title != "" {
			titles = append(titles, l.title)
		}
	}

	var lines []string
	if len(titles) > 0 {
		lines = append(lines, S().Title.Render(strings.Join(titles, " › ")), "")
	}

	maxW := 0
	if p.width > 0 {
		maxW = p.width - 10
	}
	width := menuWidth(lvl.items, maxW)
	if len(lvl.items) == 0 {
		lines = append(lines, S().Dim.Render("(empty)"))
	}
	for i, it := range lvl.items {
		label := menuLabel(it, width)
		switch {
		case i == lvl.cursor:
			lines = append(lines, "> "+S().Selected.Render(label))
		case it.Click == nil && len(it.Submenu) == 0:
			lines = append(lines, "  "+S().Disabled.Render(label))
		default:
			lines = append(lines, "  "+S().Item.Render(label))
		}
	}

	lines = append(lines, "", S().Footer.Render("Enter select | Esc back | j/k navigate"))
	box := S().Box.Render(strings.Join(lines, "\n"))
	if p.width == 0 || p.height == 0 {
		return box
	}
	return lipgloss.Place(p.width, p.height, lipgloss.Center, lipgloss.Center, box)
}
