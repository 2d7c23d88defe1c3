package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Lytrix/MidiLooper-sub000/theme"
)

// Styles is every lipgloss style the view uses, derived once from the
// theme so View stays allocation-light.
type Styles struct {
	Header   lipgloss.Style
	Status   lipgloss.Style
	Dim      lipgloss.Style
	Record   lipgloss.Style
	Play     lipgloss.Style
	Warn     lipgloss.Style
	Label    lipgloss.Style
	Current  lipgloss.Style
	Empty    lipgloss.Style
	Note     lipgloss.Style
	Selected lipgloss.Style
	Bracket  lipgloss.Style
	Playhead lipgloss.Style
	Anchor   lipgloss.Style
	EditLine lipgloss.Style
}

func DefaultStyles(th *theme.Theme) Styles {
	return Styles{
		Header:   lipgloss.NewStyle().Foreground(th.Accent()).Bold(true),
		Status:   lipgloss.NewStyle().Foreground(th.FG()),
		Dim:      lipgloss.NewStyle().Foreground(th.Muted()),
		Record:   lipgloss.NewStyle().Foreground(th.Record()).Bold(true),
		Play:     lipgloss.NewStyle().Foreground(th.Play()),
		Warn:     lipgloss.NewStyle().Foreground(th.Warn()),
		Label:    lipgloss.NewStyle().Foreground(th.Muted()),
		Current:  lipgloss.NewStyle().Foreground(th.Accent()).Bold(true),
		Empty:    lipgloss.NewStyle().Foreground(th.Surface()),
		Note:     lipgloss.NewStyle().Foreground(th.FG()),
		Selected: lipgloss.NewStyle().Foreground(th.Cursor()).Bold(true),
		Bracket:  lipgloss.NewStyle().Background(th.Surface()).Foreground(th.Cursor()),
		Playhead: lipgloss.NewStyle().Reverse(true),
		Anchor:   lipgloss.NewStyle().Foreground(th.Accent()),
		EditLine: lipgloss.NewStyle().Foreground(th.Cursor()),
	}
}
