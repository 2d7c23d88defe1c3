package looper

import (
	"fmt"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/ftag"

	"github.com/Lytrix/MidiLooper-sub000/debug"
)

// EditMode enumerates the edit states. The variant is closed: every
// dispatch switches over it and there is nothing to subclass.
type EditMode uint8

const (
	EditOff EditMode = iota
	EditSelect
	EditMoveStart
	EditChangeLength
	EditChangePitch
)

var editModeNames = map[EditMode]string{
	EditOff:          "off",
	EditSelect:       "select",
	EditMoveStart:    "move-start",
	EditChangeLength: "change-length",
	EditChangePitch:  "change-pitch",
}

func (m EditMode) String() string {
	if name, ok := editModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("edit-mode(%d)", m)
}

// defaultVelocity is what a note synthesized on an empty spot gets.
const defaultVelocity = 100

// selection identifies the selected note by value. Raw indices go stale
// after every store mutation; pitch+start survive reconstruction, so the
// index is re-resolved from them after each change.
type selection struct {
	active bool
	pitch  uint8
	start  uint32
	index  int
}

// Editor is the edit state machine. One track is edited at a time; the
// engine hands the track over on entry and serializes every call.
type Editor struct {
	mode    EditMode
	track   *Track
	bracket uint32
	sel     selection
	moving  *MovingNote
	preHash uint64
	channel uint8 // channel for synthesized notes
}

func (ed *Editor) Mode() EditMode { return ed.mode }
func (ed *Editor) Bracket() uint32 {
	return ed.bracket
}

// Selected returns the selected note from the current reconstruction.
func (ed *Editor) Selected() (Note, bool) {
	if ed.track == nil || !ed.sel.active {
		return Note{}, false
	}
	notes := ed.track.Notes()
	if ed.sel.index < 0 || ed.sel.index >= len(notes) {
		return Note{}, false
	}
	return notes[ed.sel.index], true
}

// SetMode moves the machine to the given state. Entering any state
// pushes an undo snapshot and records the pre-edit hash; leaving one
// compares hashes and drops the snapshot when nothing changed, so
// look-but-don't-touch sessions leave no undo steps. EditOff is the exit.
func (ed *Editor) SetMode(t *Track, mode EditMode) error {
	if mode == EditOff {
		ed.Exit()
		return nil
	}
	if t == nil || t.loopLength == 0 {
		return fault.New("no loop to edit", ftag.With(ErrNoLoop))
	}
	if ed.mode == mode && ed.track == t {
		return nil
	}
	if ed.mode != EditOff {
		ed.leaveMode()
	}

	ed.track = t
	ed.mode = mode
	ed.preHash = t.Hash()
	t.PushSnapshot()
	debug.Log("edit", "entered %s", mode)

	switch mode {
	case EditMoveStart, EditChangeLength, EditChangePitch:
		n, ok := ed.resolveSelection()
		if !ok {
			ed.moving = nil
			return fault.New("no note selected", ftag.With(ErrNoSelection))
		}
		ed.moving = newMovingNote(n)
	default:
		// Select picks up whatever sits under the bracket right away,
		// so a confirm without cursor motion grabs it instead of
		// synthesizing a duplicate on top
		ed.moving = nil
		ed.snapBracket()
	}
	return nil
}

// Exit leaves editing entirely, committing any in-progress move.
func (ed *Editor) Exit() {
	if ed.mode == EditOff {
		return
	}
	ed.leaveMode()
	ed.mode = EditOff
	ed.track = nil
	debug.Log("edit", "exited")
}

func (ed *Editor) leaveMode() {
	ed.Commit()
	if ed.track != nil {
		if ed.track.dropSnapshotIfUnchanged(ed.preHash) {
			debug.Log("edit", "left %s unchanged, snapshot elided", ed.mode)
		}
	}
}

// Commit makes the current drag permanent: displaced notes stop being
// restorable and the moving identity is released. Safe to call when no
// drag is active. The next drag re-arms a fresh identity from the
// selection, so a move handed from one control to another picks up where
// the committed one ended.
func (ed *Editor) Commit() {
	if ed.moving == nil {
		return
	}
	ed.sel = selection{active: true, pitch: ed.moving.Pitch, start: ed.moving.Start}
	ed.moving = nil
	ed.resolveSelection()
	debug.Log("edit", "move committed")
}

// armMoving returns the active moving identity, creating one from the
// current selection after a commit released the previous one.
func (ed *Editor) armMoving() *MovingNote {
	if ed.moving != nil {
		return ed.moving
	}
	n, ok := ed.resolveSelection()
	if !ok {
		return nil
	}
	ed.moving = newMovingNote(n)
	return ed.moving
}

// MoveBracket steps the bracket cursor on the 16th grid and snaps it to
// a note start within half a step of where it lands.
func (ed *Editor) MoveBracket(steps int32) error {
	t := ed.track
	if t == nil || t.loopLength == 0 {
		return fault.New("no loop to edit", ftag.With(ErrNoLoop))
	}
	ed.bracket = addStart(ed.bracket, steps*StepTicks, t.loopLength)
	ed.snapBracket()
	return nil
}

// SetBracket places the bracket at an absolute fraction of the loop,
// quantized to the grid. Used by absolute controls.
func (ed *Editor) SetBracket(frac float64) error {
	t := ed.track
	if t == nil || t.loopLength == 0 {
		return fault.New("no loop to edit", ftag.With(ErrNoLoop))
	}
	if frac < 0 {
		frac = 0
	} else if frac > 1 {
		frac = 1
	}
	ed.bracket = uint32(frac*float64(t.loopLength-1)) / StepTicks * StepTicks
	ed.snapBracket()
	return nil
}

// snapBracket selects the note starting nearest the bracket within half
// a grid step and pulls the bracket onto it. With nothing close enough
// the selection clears.
func (ed *Editor) snapBracket() {
	t := ed.track
	best := -1
	bestDist := uint32(StepTicks/2 + 1)
	notes := t.Notes()
	for i, n := range notes {
		d := circularDelta(ed.bracket, n.Start, t.loopLength)
		dist := uint32(d)
		if d < 0 {
			dist = uint32(-d)
		}
		if dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	if best < 0 {
		ed.sel = selection{}
		return
	}
	n := notes[best]
	ed.bracket = n.Start
	ed.sel = selection{active: true, pitch: n.Pitch, start: n.Start, index: best}
}

// NextNote jumps the bracket to the next note start after it, wrapping
// at the loop boundary.
func (ed *Editor) NextNote() error { return ed.stepNote(1) }

// PrevNote jumps the bracket to the previous note start.
func (ed *Editor) PrevNote() error { return ed.stepNote(-1) }

func (ed *Editor) stepNote(dir int) error {
	t := ed.track
	if t == nil || t.loopLength == 0 {
		return fault.New("no loop to edit", ftag.With(ErrNoLoop))
	}
	notes := t.Notes()
	if len(notes) == 0 {
		return nil
	}
	// notes are sorted by start; find the current slot
	cur := -1
	for i, n := range notes {
		if n.Start == ed.bracket && (cur == -1 || (ed.sel.active && n.Pitch == ed.sel.pitch)) {
			cur = i
		}
	}
	var next int
	if cur == -1 {
		// bracket sits between notes: walk to the first start past it
		next = 0
		if dir > 0 {
			for i, n := range notes {
				if n.Start > ed.bracket {
					next = i
					break
				}
			}
		} else {
			next = len(notes) - 1
			for i := len(notes) - 1; i >= 0; i-- {
				if notes[i].Start < ed.bracket {
					next = i
					break
				}
			}
		}
	} else {
		next = (cur + dir + len(notes)) % len(notes)
	}
	n := notes[next]
	ed.bracket = n.Start
	ed.sel = selection{active: true, pitch: n.Pitch, start: n.Start, index: next}
	return nil
}

// Confirm acts on the bracket in Select mode: with a note selected it
// proceeds to MoveStart on that note; on an empty spot it synthesizes a
// one-step note there first and then proceeds, so an empty loop can be
// drawn into directly.
func (ed *Editor) Confirm(pitch uint8) error {
	t := ed.track
	if t == nil || t.loopLength == 0 {
		return fault.New("no loop to edit", ftag.With(ErrNoLoop))
	}
	if ed.mode != EditSelect {
		return nil
	}
	if _, ok := ed.resolveSelection(); !ok {
		// the off tick stays unwrapped so the pair keeps its store order
		t.insertEvent(NoteOnEvent(ed.bracket, ed.channel, pitch, defaultVelocity))
		t.insertEvent(NoteOffEvent(ed.bracket+StepTicks, ed.channel, pitch))
		t.invalidate()
		ed.sel = selection{active: true, pitch: pitch, start: ed.bracket}
		ed.resolveSelection()
		debug.Log("edit", "synthesized note pitch=%d at %d", pitch, ed.bracket)
	}
	return ed.SetMode(t, EditMoveStart)
}

// Drag applies one signed increment of the active edit. In Select it
// moves the bracket; in the three drag states it routes through the
// overlap resolver. steps are grid steps for time drags and semitones
// for pitch drags.
func (ed *Editor) Drag(steps int32) error {
	if steps == 0 {
		return nil
	}
	switch ed.mode {
	case EditOff:
		return nil
	case EditSelect:
		return ed.MoveBracket(steps)
	}

	t := ed.track
	if t == nil || t.loopLength == 0 {
		return fault.New("no loop to edit", ftag.With(ErrNoLoop))
	}
	mv := ed.armMoving()
	if mv == nil {
		return fault.New("no note selected", ftag.With(ErrNoSelection))
	}

	l := t.loopLength
	newStart, newEnd, newPitch := mv.Start, mv.End, mv.Pitch
	switch ed.mode {
	case EditMoveStart:
		length := spanLen(mv.Start, mv.End, l)
		newStart = addStart(mv.Start, steps*StepTicks, l)
		newEnd = endFor(newStart, length, l)
	case EditChangeLength:
		length := clampLength(int64(spanLen(mv.Start, mv.End, l))+int64(steps)*StepTicks, l)
		newEnd = endFor(mv.Start, length, l)
	case EditChangePitch:
		newPitch = wrapPitch(int(mv.Pitch) + int(steps))
	}
	return ed.applyMove(mv, newStart, newEnd, newPitch)
}

// DragTo drives the active edit from an absolute control position in
// [0, 1]: start position across the loop, length across the loop, or
// pitch across the MIDI range, depending on the state.
func (ed *Editor) DragTo(frac float64) error {
	if ed.mode == EditSelect {
		return ed.SetBracket(frac)
	}
	t := ed.track
	if t == nil || t.loopLength == 0 {
		return fault.New("no loop to edit", ftag.With(ErrNoLoop))
	}
	mv := ed.armMoving()
	if mv == nil {
		return fault.New("no note selected", ftag.With(ErrNoSelection))
	}
	if frac < 0 {
		frac = 0
	} else if frac > 1 {
		frac = 1
	}

	l := t.loopLength
	newStart, newEnd, newPitch := mv.Start, mv.End, mv.Pitch
	switch ed.mode {
	case EditMoveStart:
		length := spanLen(mv.Start, mv.End, l)
		newStart = uint32(frac*float64(l)) / StepTicks * StepTicks % l
		newEnd = endFor(newStart, length, l)
	case EditChangeLength:
		length := clampLength(int64(frac*float64(l))/StepTicks*StepTicks, l)
		newEnd = endFor(mv.Start, length, l)
	case EditChangePitch:
		newPitch = uint8(frac*127 + 0.5)
	default:
		return nil
	}
	return ed.applyMove(mv, newStart, newEnd, newPitch)
}

func (ed *Editor) applyMove(mv *MovingNote, newStart, newEnd uint32, newPitch uint8) error {
	if newStart == mv.Start && newEnd == mv.End && newPitch == mv.Pitch {
		return nil
	}
	if err := ed.track.resolveMove(mv, newStart, newEnd, newPitch); err != nil {
		return err
	}
	ed.sel = selection{active: true, pitch: newPitch, start: newStart}
	ed.bracket = newStart
	ed.resolveSelection()
	return nil
}

// resolveSelection maps the selection value back to an index in the
// fresh reconstruction. A selection that no longer matches anything
// deactivates, which readers treat as "no selection".
func (ed *Editor) resolveSelection() (Note, bool) {
	if ed.track == nil || !ed.sel.active {
		return Note{}, false
	}
	for i, n := range ed.track.Notes() {
		if n.Pitch == ed.sel.pitch && n.Start == ed.sel.start {
			ed.sel.index = i
			return n, true
		}
	}
	ed.sel = selection{}
	return Note{}, false
}

// wrapPitch wraps relative pitch drags around the 0..127 range.
func wrapPitch(p int) uint8 {
	return uint8(((p % 128) + 128) % 128)
}

func clampLength(length int64, loopLength uint32) uint32 {
	if length < minNoteTicks {
		return minNoteTicks
	}
	if length > int64(loopLength) {
		return loopLength
	}
	return uint32(length)
}
