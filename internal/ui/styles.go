// Package ui renders context menus and prompts for the terminal client.
package ui

import (
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme names a palette.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// palette assigns colors to roles rather than hues.
type palette struct {
	Text, Muted, Accent lipgloss.Color
	OK, Warn, Bad       lipgloss.Color
}

var palettes = map[Theme]palette{
	ThemeDark: {
		Text:   "#c0caf5",
		Muted:  "#787fa0",
		Accent: "#7aa2f7",
		OK:     "#9ece6a",
		Warn:   "#e0af68",
		Bad:    "#f7768e",
	},
	ThemeLight: {
		Text:   "#343b58",
		Muted:  "#6a6d7c",
		Accent: "#34548a",
		OK:     "#485e30",
		Warn:   "#8f5e15",
		Bad:    "#8c4351",
	},
}

// Styles is the set of styles the menu, picker and prompt draw with.
type Styles struct {
	Title    lipgloss.Style
	Dim      lipgloss.Style
	Error    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Box      lipgloss.Style
	Item     lipgloss.Style
	Selected lipgloss.Style
	Disabled lipgloss.Style
	Footer   lipgloss.Style
}

func (p palette) styles() Styles {
	fg := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }
	return Styles{
		Title:    fg(p.Accent).Bold(true),
		Dim:      fg(p.Muted),
		Error:    fg(p.Bad),
		Success:  fg(p.OK),
		Warning:  fg(p.Warn),
		Box:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(p.Accent).Padding(1, 2),
		Item:     fg(p.Text),
		Selected: fg(p.Accent).Bold(true),
		Disabled: fg(p.Muted),
		Footer:   fg(p.Muted).Italic(true),
	}
}

type themeState struct {
	theme   Theme
	palette palette
	styles  Styles
}

var active atomic.Pointer[themeState]

func init() { InitTheme(string(ThemeDark)) }

// InitTheme switches to the named theme. Unknown names get the dark one.
func InitTheme(name string) {
	theme := Theme(strings.ToLower(strings.TrimSpace(name)))
	p, ok := palettes[theme]
	if !ok {
		theme, p = ThemeDark, palettes[ThemeDark]
	}
	active.Store(&themeState{theme: theme, palette: p, styles: p.styles()})
}

// CurrentTheme returns the active theme.
func CurrentTheme() Theme { return active.Load().theme }

// S returns the active styles.
func S() Styles { return active.Load().styles }

// StateStyle colors a tab state name.
func StateStyle(state string) lipgloss.Style {
	st := S()
	switch state {
	case "active":
		return st.Success
	case "initializing", "awaiting_reconnect_input":
		return st.Warning
	case "terminated":
		return st.Error
	}
	return st.Dim
}

// ColorProfile picks the color profile for override (truecolor, 256, 16 or
// none). Anything else asks termenv, which honours NO_COLOR and
// CLICOLOR_FORCE and drops color when stdout isn't a terminal.
func ColorProfile(override string) termenv.Profile {
	switch strings.ToLower(strings.TrimSpace(override)) {
	case "truecolor", "true", "24bit":
		return termenv.TrueColor
	case "256", "ansi256":
		return termenv.ANSI256
	case "16", "ansi", "basic":
		return termenv.ANSI
	case "none", "off", "ascii":
		return termenv.Ascii
	}
	return termenv.EnvColorProfile()
}

// InitColorProfile applies ColorProfile(override) to lipgloss.
func InitColorProfile(override string) {
	lipgloss.SetColorProfile(ColorProfile(override))
}
