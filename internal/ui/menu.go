package ui

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ideapedyudi/tabby/internal/menu"
)

const submenuMarker = "›"

// menuLabel pads or truncates label to width display cells. Items with a
// submenu get a trailing marker.
func menuLabel(it menu.Item, width int) string {
	label := strings.ReplaceAll(it.Label, "\n", " ")
	marker := ""
	if len(it.Submenu) > 0 {
		marker = " " + submenuMarker
	}
	if width <= 0 {
		return label + marker
	}

	room := width - runewidth.StringWidth(marker)
	if room < 1 {
		room = 1
	}
	if runewidth.StringWidth(label) > room {
		label = runewidth.Truncate(label, room, "…")
	}
	return runewidth.FillRight(label, room) + marker
}

// menuWidth is the widest label in items, capped at limit when limit > 0.
func menuWidth(items []menu.Item, limit int) int {
	w := 0
	for _, it := range items {
		lw := runewidth.StringWidth(it.Label)
		if len(it.Submenu) > 0 {
			lw += 1 + runewidth.StringWidth(submenuMarker)
		}
		w = max(w, lw)
	}
	if limit > 0 && w > limit {
		return limit
	}
	return w
}

// RenderMenu draws items as a plain list, one per line. Nested menus are
// indented. Used for non-interactive output.
func RenderMenu(items []menu.Item) string {
	var b strings.Builder
	renderLevel(&b, items, 0)
	return strings.TrimRight(b.String(), "\n")
}

func renderLevel(b *strings.Builder, items []menu.Item, depth int) {
	width := menuWidth(items, 60)
	for _, it := range items {
		b.WriteString(strings.Repeat("  ", depth))
		line := menuLabel(it, width)
		switch {
		case len(it.Submenu) > 0 || it.Click != nil:
			b.WriteString(S().Item.Render(line))
		default:
			b.WriteString(S().Disabled.Render(line))
		}
		b.WriteByte('\n')
		if len(it.Submenu) > 0 {
			renderLevel(b, it.Submenu, depth+1)
		}
	}
}
