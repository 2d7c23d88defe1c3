package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Theme maps palette positions to the roles the looper display uses
// and carries the glyphs for the timeline strips.
type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	Empty     rune // grid step with nothing on it
	Note      rune // grid step inside a note span
	LoopStart rune // rotated loop start anchor
	Muted     rune // track label marker while muted
}

func New(palette *Palette) *Theme {
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			Empty:     '·',
			Note:      '█',
			LoopStart: '│',
			Muted:     '◦',
		},
	}
}

// Color roles as palette positions. The ramp runs dark to hot, so
// states that demand attention sit near the top.
const (
	RoleBG      = 0.0
	RoleSurface = 0.1
	RoleMuted   = 0.25
	RoleFG      = 0.45
	RoleAccent  = 0.55
	RoleCursor  = 0.65
	RolePlay    = 0.5
	RoleWarn    = 0.72
	RoleRecord  = 0.85
)

func (t *Theme) BG() lipgloss.Color      { return t.Color(RoleBG) }
func (t *Theme) Surface() lipgloss.Color { return t.Color(RoleSurface) }
func (t *Theme) Muted() lipgloss.Color   { return t.Color(RoleMuted) }
func (t *Theme) FG() lipgloss.Color      { return t.Color(RoleFG) }
func (t *Theme) Accent() lipgloss.Color  { return t.Color(RoleAccent) }
func (t *Theme) Cursor() lipgloss.Color  { return t.Color(RoleCursor) }
func (t *Theme) Play() lipgloss.Color    { return t.Color(RolePlay) }
func (t *Theme) Warn() lipgloss.Color    { return t.Color(RoleWarn) }
func (t *Theme) Record() lipgloss.Color  { return t.Color(RoleRecord) }

// Color returns the lipgloss color at any normalized ramp position.
func (t *Theme) Color(norm float64) lipgloss.Color {
	c := t.Palette.Lookup(norm)
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
