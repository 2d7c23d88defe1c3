// Package widgets holds the display primitives the TUI composes.
package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Cell is one rendered grid position.
type Cell struct {
	Rune  rune
	Style lipgloss.Style
}

// Span paints cells [From, To) of a strip. A zero Rune keeps whatever
// glyph is already there and only restyles it, which is how the
// playhead and the bracket ride on top of note spans.
type Span struct {
	From, To int
	Rune     rune
	Style    lipgloss.Style
}

// RenderStrip renders width cells of fill with the spans painted over
// it in order, later spans winning. Spans are clipped to the strip.
func RenderStrip(width int, fill Cell, spans []Span) string {
	if width <= 0 {
		return ""
	}
	cells := make([]Cell, width)
	for i := range cells {
		cells[i] = fill
	}
	for _, s := range spans {
		from, to := s.From, s.To
		if from < 0 {
			from = 0
		}
		if to > width {
			to = width
		}
		for i := from; i < to; i++ {
			if s.Rune != 0 {
				cells[i].Rune = s.Rune
			}
			cells[i].Style = s.Style
		}
	}
	var b strings.Builder
	for _, c := range cells {
		b.WriteString(c.Style.Render(string(c.Rune)))
	}
	return b.String()
}

// StripHit maps a column inside a rendered strip back to its cell
// index.
func StripHit(x, width int) (int, bool) {
	if x < 0 || x >= width {
		return 0, false
	}
	return x, true
}
