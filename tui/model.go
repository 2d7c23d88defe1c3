// Package tui is the terminal front of the looper: four track strips,
// one edit line, and a keyboard that mirrors the fader box actions.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Lytrix/MidiLooper-sub000/looper"
	"github.com/Lytrix/MidiLooper-sub000/theme"
	"github.com/Lytrix/MidiLooper-sub000/widgets"
)

// redrawEvery paces playhead redraws between engine updates.
const redrawEvery = 33 * time.Millisecond

// stripLeft is the label width in front of every track strip.
const stripLeft = 4

// layoutBounds caches where the last View put the track strips so
// mouse clicks can be mapped back onto the timeline.
type layoutBounds struct {
	top   int
	cells [looper.NumTracks]int
}

type Model struct {
	eng    *looper.Engine
	keys   keyMap
	styles Styles
	th     *theme.Theme
	help   help.Model

	width    int
	bounds   *layoutBounds
	quitting bool
}

type UpdateMsg struct{}

type tickMsg time.Time

func New(eng *looper.Engine, th *theme.Theme) Model {
	return Model{
		eng:    eng,
		keys:   defaultKeyMap(),
		styles: DefaultStyles(th),
		th:     th,
		help:   help.New(),
		width:  80,
		bounds: &layoutBounds{},
	}
}

// ListenForUpdates resolves once the engine reports a state change.
func ListenForUpdates(eng *looper.Engine) tea.Cmd {
	return func() tea.Msg {
		<-eng.Updates()
		return UpdateMsg{}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(redrawEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(ListenForUpdates(m.eng), tickCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
			m.handleClick(msg.X, msg.Y)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case UpdateMsg:
		return m, ListenForUpdates(m.eng)

	case tickMsg:
		return m, tickCmd()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys
	switch {
	case key.Matches(msg, k.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, k.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, k.Record):
		m.eng.ToggleRecord()
	case key.Matches(msg, k.Play):
		m.eng.TogglePlay()
	case key.Matches(msg, k.Stop):
		m.eng.StopAll()
	case key.Matches(msg, k.Mute):
		m.eng.ToggleMute()
	case key.Matches(msg, k.Quantize):
		m.eng.ToggleQuantize()
	case key.Matches(msg, k.Clear):
		m.eng.ClearTrack()

	case key.Matches(msg, k.Undo):
		m.eng.Undo()
	case key.Matches(msg, k.Redo):
		m.eng.Redo()
	case key.Matches(msg, k.UndoClear):
		m.eng.UndoClear()
	case key.Matches(msg, k.RedoClear):
		m.eng.RedoClear()

	case key.Matches(msg, k.Track):
		m.eng.SelectTrack(int(msg.String()[0] - '1'))
	case key.Matches(msg, k.NextTrack):
		m.eng.NextTrack()
	case key.Matches(msg, k.PrevTrack):
		m.eng.PrevTrack()

	case key.Matches(msg, k.Edit):
		m.eng.EnterEdit()
	case key.Matches(msg, k.Exit):
		m.eng.ExitEdit()
	case key.Matches(msg, k.Confirm):
		m.eng.ConfirmSelection()
	case key.Matches(msg, k.Left):
		m.eng.Drag(-1)
	case key.Matches(msg, k.Right):
		m.eng.Drag(1)
	case key.Matches(msg, k.NextNote):
		m.eng.NextNote()
	case key.Matches(msg, k.PrevNote):
		m.eng.PrevNote()
	case key.Matches(msg, k.MoveStart):
		m.eng.SetEditMode(looper.EditMoveStart)
	case key.Matches(msg, k.Length):
		m.eng.SetEditMode(looper.EditChangeLength)
	case key.Matches(msg, k.Pitch):
		m.eng.SetEditMode(looper.EditChangePitch)

	case key.Matches(msg, k.LoopLeft):
		m.eng.RotateLoopStart(-1)
	case key.Matches(msg, k.LoopRight):
		m.eng.RotateLoopStart(1)
	case key.Matches(msg, k.LoopUndo):
		m.eng.UndoLoopStart()
	case key.Matches(msg, k.LoopRedo):
		m.eng.RedoLoopStart()

	case key.Matches(msg, k.TempoUp):
		m.eng.SetBPM(m.eng.ClockInfo().BPM + 5)
	case key.Matches(msg, k.TempoDown):
		m.eng.SetBPM(m.eng.ClockInfo().BPM - 5)
	}
	return m, nil
}

// handleClick maps a press on a track strip to that spot on the loop:
// it switches tracks, and while editing it moves the bracket (or the
// active drag) there.
func (m Model) handleClick(x, y int) {
	row := y - m.bounds.top
	if row < 0 || row >= looper.NumTracks {
		return
	}
	if row != m.eng.CurrentTrack() {
		m.eng.SelectTrack(row)
		return
	}
	cells := m.bounds.cells[row]
	cell, ok := widgets.StripHit(x-stripLeft, cells)
	if !ok {
		return
	}
	if m.eng.EditInfo().Mode != looper.EditOff {
		m.eng.DragTo(float64(cell) / float64(cells))
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(m.header())
	out.WriteString("\n\n")

	m.bounds.top = 3
	avail := max(16, m.width-stripLeft-2)
	curr := m.eng.CurrentTrack()
	edit := m.eng.EditInfo()
	for i := 0; i < looper.NumTracks; i++ {
		row, cells := m.trackRow(i, curr, edit, avail)
		m.bounds.cells[i] = cells
		out.WriteString(row)
		out.WriteString("\n")
	}

	out.WriteString("\n")
	if edit.Mode != looper.EditOff {
		out.WriteString(m.editLine(edit))
		out.WriteString("\n")
	}
	out.WriteString("\n")
	out.WriteString(m.help.View(m.keys))
	return out.String()
}

func (m Model) header() string {
	clock := m.eng.ClockInfo()
	transport := "■"
	if clock.Running {
		transport = "▶"
	}
	parts := []string{
		m.styles.Header.Render("midilooper"),
		m.styles.Status.Render(fmt.Sprintf("%s %3.0fbpm %s", transport, clock.BPM, tickPos(clock.Tick))),
	}
	if clock.External {
		parts = append(parts, m.styles.Dim.Render("ext clock"))
	}
	q := "quantize off"
	if m.eng.Quantize() {
		q = "quantize on"
	}
	parts = append(parts, m.styles.Dim.Render(q))
	for i := 0; i < looper.NumTracks; i++ {
		if m.eng.TrackInfo(i).State == looper.TrackRecording {
			parts = append(parts, m.styles.Record.Render("REC"))
			break
		}
	}
	return " " + strings.Join(parts, "  ")
}

func (m Model) trackRow(i, curr int, edit looper.EditInfo, avail int) (string, int) {
	info := m.eng.TrackInfo(i)
	sym := m.th.Symbols

	label := m.styles.Label
	if i == curr {
		label = m.styles.Current
	}
	prefix := label.Render(fmt.Sprintf("%d %s ", i+1, m.stateGlyph(info)))

	if info.LoopLength == 0 {
		switch info.State {
		case looper.TrackRecording:
			return prefix + m.styles.Record.Render("recording, press r to close the loop"), 0
		case looper.TrackArmed:
			return prefix + m.styles.Dim.Render("armed, waiting for input"), 0
		default:
			return prefix + m.styles.Empty.Render("—"), 0
		}
	}

	steps := int(info.LoopLength / looper.StepTicks)
	cells := min(steps, avail)
	if cells < 1 {
		cells = 1
	}
	pos := func(tick uint32) int {
		p := int(uint64(tick) * uint64(cells) / uint64(info.LoopLength))
		return min(p, cells-1)
	}

	noteStyle := m.styles.Note
	if info.Muted {
		noteStyle = m.styles.Dim
	}
	var spans []widgets.Span
	if info.LoopStart != 0 {
		at := pos(info.LoopStart)
		spans = append(spans, widgets.Span{From: at, To: at + 1, Rune: sym.LoopStart, Style: m.styles.Anchor})
	}
	for _, n := range m.eng.TrackNotes(i) {
		style := noteStyle
		if i == curr && edit.HasSelection && n.Pitch == edit.Selected.Pitch && n.Start == edit.Selected.Start {
			style = m.styles.Selected
		}
		from, to := pos(n.Start), pos(n.End)
		switch {
		case n.End == n.Start: // covers the whole loop
			spans = append(spans, widgets.Span{From: 0, To: cells, Rune: sym.Note, Style: style})
		case n.Wraps():
			spans = append(spans, widgets.Span{From: from, To: cells, Rune: sym.Note, Style: style})
			spans = append(spans, widgets.Span{From: 0, To: max(to, 1), Rune: sym.Note, Style: style})
		default:
			if n.End == info.LoopLength {
				to = cells
			}
			spans = append(spans, widgets.Span{From: from, To: max(to, from+1), Rune: sym.Note, Style: style})
		}
	}
	if i == curr && edit.Mode != looper.EditOff {
		at := pos(edit.Bracket)
		spans = append(spans, widgets.Span{From: at, To: at + 1, Style: m.styles.Bracket})
	}
	switch info.State {
	case looper.TrackPlaying, looper.TrackOverdubbing:
		at := pos(info.Playhead)
		spans = append(spans, widgets.Span{From: at, To: at + 1, Style: m.styles.Playhead})
	}

	fill := widgets.Cell{Rune: sym.Empty, Style: m.styles.Empty}
	return prefix + widgets.RenderStrip(cells, fill, spans), cells
}

func (m Model) stateGlyph(info looper.TrackInfo) string {
	if info.Muted {
		return string(m.th.Symbols.Muted)
	}
	switch info.State {
	case looper.TrackArmed:
		return "○"
	case looper.TrackRecording:
		return "●"
	case looper.TrackPlaying:
		return "▶"
	case looper.TrackOverdubbing:
		return "◉"
	case looper.TrackStopped, looper.TrackStoppedRecording:
		return "■"
	}
	return "·"
}

func (m Model) editLine(edit looper.EditInfo) string {
	info := m.eng.TrackInfo(m.eng.CurrentTrack())
	var b strings.Builder
	b.WriteString(" ")
	b.WriteString(m.styles.EditLine.Render(fmt.Sprintf("edit %s", edit.Mode)))
	if edit.HasSelection {
		n := edit.Selected
		b.WriteString(m.styles.Status.Render(fmt.Sprintf(
			"  %s @%s len %d", noteName(n.Pitch), tickPos(n.Start), n.Length(info.LoopLength)/looper.StepTicks)))
	} else {
		b.WriteString(m.styles.Dim.Render(fmt.Sprintf("  bracket @%s, nothing under it", tickPos(edit.Bracket))))
	}
	return b.String()
}

// tickPos formats a tick as bar.step, both one-based.
func tickPos(tick uint32) string {
	bar := tick/looper.BarTicks + 1
	step := tick%looper.BarTicks/looper.StepTicks + 1
	return fmt.Sprintf("%d.%d", bar, step)
}

// noteName renders a MIDI note number like C4 or F#3.
func noteName(note uint8) string {
	names := []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	return fmt.Sprintf("%s%d", names[note%12], int(note)/12-1)
}
