package looper

import (
	"sync"

	"github.com/Southclaws/fault/ftag"

	"github.com/Lytrix/MidiLooper-sub000/debug"
)

// NumTracks is the fixed track count of the instrument.
const NumTracks = 4

// defaultPitch is where a synthesized note lands when nothing was
// selected to inherit a pitch from.
const defaultPitch = 60

// Output is the engine's one-way door to the MIDI transport. Calls are
// fire and forget; delivery problems are the transport's to log.
type Output interface {
	NoteOn(channel, note, velocity uint8)
	NoteOff(channel, note uint8)
	ControlChange(channel, controller, value uint8)
	PitchBend(channel uint8, bend int16)
	ProgramChange(channel, program uint8)
}

// Saver is notified after durable mutations. Implementations coalesce
// bursts; RequestSave must not block.
type Saver interface {
	RequestSave()
}

// allNotesOffCC is the channel mode message flushing hanging notes.
const allNotesOffCC = 123

// Engine owns the tracks, the clock, the editor and the output. It is
// the single writer: every operation takes the lock, so track and editor
// code below it never needs one. Readers poll the accessor methods.
type Engine struct {
	mu     sync.RWMutex
	tracks [NumTracks]*Track

	current  int
	clock    *Clock
	editor   Editor
	quantize bool
	channel  uint8

	out   Output
	saver Saver

	lastTick uint32
	due      []Event

	updates chan struct{}
}

func NewEngine(clock *Clock, out Output) *Engine {
	e := &Engine{
		clock:    clock,
		out:      out,
		quantize: true,
		updates:  make(chan struct{}, 1),
	}
	for i := range e.tracks {
		e.tracks[i] = NewTrack()
	}
	return e
}

// SetSaver wires the persistence hook. Nil disables it.
func (e *Engine) SetSaver(s Saver) {
	e.mu.Lock()
	e.saver = s
	e.mu.Unlock()
}

// SetChannel sets the channel stamped on synthesized and echoed events.
func (e *Engine) SetChannel(ch uint8) {
	e.mu.Lock()
	e.channel = ch & 0x0F
	e.editor.channel = e.channel
	e.mu.Unlock()
}

func (e *Engine) Clock() *Clock { return e.clock }

// Updates delivers a pulse after every discrete state change. The send
// never blocks; a slow reader just coalesces pulses.
func (e *Engine) Updates() <-chan struct{} { return e.updates }

func (e *Engine) notify() {
	select {
	case e.updates <- struct{}{}:
	default:
	}
}

func (e *Engine) requestSave() {
	if e.saver != nil {
		e.saver.RequestSave()
	}
}

func (e *Engine) logErr(op string, err error) {
	if err == nil {
		return
	}
	debug.Log("engine", "%s: %v [%s]", op, err, ftag.Get(err))
}

func (e *Engine) cur() *Track { return e.tracks[e.current] }

// HandleEvent takes one incoming channel event from the transport,
// stamps its tick and routes it. An armed track starts its recording on
// the first NoteOn; a recording or overdubbing track stores the event.
// Input always echoes through to the output while a track listens.
func (e *Engine) HandleEvent(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.listeningTrack()
	if t == nil {
		return
	}

	if t.State() == TrackArmed {
		if ev.Type != NoteOn {
			e.echo(ev)
			return
		}
		if !e.clock.Running() {
			e.clock.Reset()
			e.clock.Start()
		}
		if err := t.StartRecording(e.clock.Now()); err != nil {
			e.logErr("start recording", err)
			return
		}
		debug.Log("engine", "track %d recording from first input", e.current)
		e.notify()
	}

	switch t.State() {
	case TrackRecording:
		ev.Tick = e.clock.Now() - t.recordStart
	case TrackOverdubbing:
		ev.Tick = t.playhead
	default:
		e.echo(ev)
		return
	}
	t.RecordEvent(ev)
	e.echo(ev)
	e.notify()
}

// listeningTrack picks the track that owns incoming input: a recording
// or overdubbing track first, otherwise an armed one.
func (e *Engine) listeningTrack() *Track {
	for _, t := range e.tracks {
		switch t.State() {
		case TrackRecording, TrackOverdubbing:
			return t
		}
	}
	for _, t := range e.tracks {
		if t.State() == TrackArmed {
			return t
		}
	}
	return nil
}

func (e *Engine) echo(ev Event) {
	e.emit(ev)
}

func (e *Engine) emit(ev Event) {
	if e.out == nil {
		return
	}
	switch ev.Type {
	case NoteOn:
		e.out.NoteOn(ev.Channel, ev.Note(), ev.Velocity())
	case NoteOff:
		e.out.NoteOff(ev.Channel, ev.Note())
	case ControlChange:
		e.out.ControlChange(ev.Channel, ev.Controller(), ev.Value())
	case PitchBend:
		e.out.PitchBend(ev.Channel, ev.Bend())
	case ProgramChange:
		e.out.ProgramChange(ev.Channel, ev.Program())
	}
}

// Advance emits everything due since the last call on every playing or
// overdubbing track. Muted tracks move their playhead without sounding.
// Called from the runtime loop; cheap when the clock has not moved.
func (e *Engine) Advance() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	delta := now - e.lastTick
	if delta == 0 {
		return
	}
	e.lastTick = now

	for _, t := range e.tracks {
		switch t.State() {
		case TrackPlaying, TrackOverdubbing:
		default:
			continue
		}
		l := t.LoopLength()
		if l == 0 {
			continue
		}
		step := delta
		if step >= l {
			step = l - 1 // a stall longer than the loop plays at most one pass
		}
		from := t.playhead
		to := (from + step) % l
		e.due = t.collectDue(from, to, e.due[:0])
		t.playhead = to
		if t.Muted() {
			continue
		}
		for _, ev := range e.due {
			e.emit(ev)
		}
	}
}

// allNotesOff flushes hanging notes on the engine's channel.
func (e *Engine) allNotesOff() {
	if e.out != nil {
		e.out.ControlChange(e.channel, allNotesOffCC, 0)
	}
}

// ToggleRecord advances the record cycle of the current track:
// arm, start recording, stop recording, and from playback it toggles
// overdubbing. Invalid combinations are rejected by the state table and
// only logged.
func (e *Engine) ToggleRecord() {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.cur()
	var err error
	switch t.State() {
	case TrackEmpty:
		err = t.Arm()
	case TrackArmed:
		if !e.clock.Running() {
			e.clock.Reset()
			e.clock.Start()
		}
		err = t.StartRecording(e.clock.Now())
	case TrackRecording:
		err = t.StopRecording(e.clock.Now(), e.quantize)
		if err == nil {
			e.requestSave()
		}
	case TrackPlaying:
		err = t.StartOverdub()
	case TrackOverdubbing:
		err = t.StopOverdub()
		if err == nil {
			e.requestSave()
		}
	default:
		err = t.setState(TrackRecording)
	}
	e.logErr("toggle record", err)
	e.notify()
}

// TogglePlay starts or stops playback of the current track.
func (e *Engine) TogglePlay() {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.cur()
	var err error
	switch t.State() {
	case TrackPlaying, TrackOverdubbing:
		err = t.StopPlaying()
		e.allNotesOff()
	default:
		err = t.StartPlaying()
		if err == nil && !e.clock.Running() {
			e.clock.Start()
		}
	}
	e.logErr("toggle play", err)
	e.notify()
}

// StopAll stops every sounding track and flushes hanging notes.
func (e *Engine) StopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range e.tracks {
		switch t.State() {
		case TrackPlaying, TrackOverdubbing:
			if err := t.StopPlaying(); err != nil {
				e.logErr("stop all", err)
			}
		}
	}
	e.allNotesOff()
	e.notify()
}

// SelectTrack switches the current track, ending any edit in progress;
// editing follows the operator, one track at a time.
func (e *Engine) SelectTrack(i int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= NumTracks || i == e.current {
		return
	}
	e.editor.Exit()
	e.current = i
	e.notify()
}

func (e *Engine) NextTrack() { e.stepTrack(1) }
func (e *Engine) PrevTrack() { e.stepTrack(-1) }

func (e *Engine) stepTrack(dir int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.editor.Exit()
	e.current = (e.current + dir + NumTracks) % NumTracks
	e.notify()
}

// ClearTrack wipes the current track behind a clear snapshot, so the
// wipe is a single undoable operation.
func (e *Engine) ClearTrack() {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.cur()
	if t.State() == TrackEmpty && t.EventCount() == 0 {
		return
	}
	if e.editor.track == t {
		e.editor.Exit()
	}
	t.PushClearSnapshot()
	t.Clear()
	e.requestSave()
	e.notify()
}

func (e *Engine) ToggleMute() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cur().ToggleMute()
	e.requestSave()
	e.notify()
}

func (e *Engine) ToggleQuantize() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quantize = !e.quantize
	e.notify()
}

func (e *Engine) Quantize() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.quantize
}

func (e *Engine) SetBPM(bpm float64) {
	e.clock.SetBPM(bpm)
	e.notify()
}

// Undo and Redo work the live-edit lane of the current track. An active
// drag commits first so history operates on settled state.
func (e *Engine) Undo() {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.cur()
	if e.editor.track == t {
		e.editor.Commit()
	}
	if !t.Undo() {
		debug.Log("engine", "undo: history empty")
		return
	}
	e.editor.resolveSelection()
	e.requestSave()
	e.notify()
}

func (e *Engine) Redo() {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.cur()
	if e.editor.track == t {
		e.editor.Commit()
	}
	if !t.Redo() {
		debug.Log("engine", "redo: history empty")
		return
	}
	e.editor.resolveSelection()
	e.requestSave()
	e.notify()
}

// UndoClear brings back what the last clear wiped, state included.
func (e *Engine) UndoClear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.cur()
	if e.editor.track == t {
		e.editor.Exit()
	}
	if !t.UndoClear() {
		debug.Log("engine", "undo clear: history empty")
		return
	}
	e.requestSave()
	e.notify()
}

func (e *Engine) RedoClear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.cur()
	if e.editor.track == t {
		e.editor.Exit()
	}
	if !t.RedoClear() {
		debug.Log("engine", "redo clear: history empty")
		return
	}
	e.requestSave()
	e.notify()
}

// RotateLoopStart nudges the playback rotation of the current track by
// grid steps, one undoable snapshot per nudge.
func (e *Engine) RotateLoopStart(steps int32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.cur()
	if t.LoopLength() == 0 {
		return
	}
	t.PushLoopStartSnapshot()
	t.RotateLoopStart(steps * StepTicks)
	e.requestSave()
	e.notify()
}

func (e *Engine) UndoLoopStart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.cur().UndoLoopStart() {
		debug.Log("engine", "undo loop start: history empty")
		return
	}
	e.requestSave()
	e.notify()
}

func (e *Engine) RedoLoopStart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.cur().RedoLoopStart() {
		debug.Log("engine", "redo loop start: history empty")
		return
	}
	e.requestSave()
	e.notify()
}

// EnterEdit opens Select mode on the current track.
func (e *Engine) EnterEdit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logErr("enter edit", e.editor.SetMode(e.cur(), EditSelect))
	e.notify()
}

// SetEditMode jumps straight to one of the edit states.
func (e *Engine) SetEditMode(mode EditMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logErr("set edit mode", e.editor.SetMode(e.cur(), mode))
	e.notify()
}

// ExitEdit leaves editing, committing any in-progress drag and saving
// when the session changed something.
func (e *Engine) ExitEdit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.editor.Mode() == EditOff {
		return
	}
	pre := e.editor.preHash
	t := e.editor.track
	e.editor.Exit()
	if t != nil && t.Hash() != pre {
		e.requestSave()
	}
	e.notify()
}

func (e *Engine) MoveBracket(steps int32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logErr("move bracket", e.editor.MoveBracket(steps))
	e.notify()
}

func (e *Engine) NextNote() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logErr("next note", e.editor.NextNote())
	e.notify()
}

func (e *Engine) PrevNote() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logErr("prev note", e.editor.PrevNote())
	e.notify()
}

// ConfirmSelection acts on the bracket: selecting the note under it, or
// synthesizing one on an empty spot, then proceeding to MoveStart.
func (e *Engine) ConfirmSelection() {
	e.mu.Lock()
	defer e.mu.Unlock()

	pitch := uint8(defaultPitch)
	if n, ok := e.editor.Selected(); ok {
		pitch = n.Pitch
	}
	e.logErr("confirm selection", e.editor.Confirm(pitch))
	e.notify()
}

// Drag applies one increment of the active edit. A successful pitch
// drag retriggers the note so the new pitch is audible.
func (e *Engine) Drag(steps int32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	mode := e.editor.Mode()
	if err := e.editor.Drag(steps); err != nil {
		e.logErr("drag", err)
		return
	}
	if mode == EditChangePitch {
		e.previewSelected()
	}
	e.notify()
}

// DragTo drives the active edit from an absolute control in [0, 1].
func (e *Engine) DragTo(frac float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	mode := e.editor.Mode()
	if err := e.editor.DragTo(frac); err != nil {
		e.logErr("drag to", err)
		return
	}
	if mode == EditChangePitch {
		e.previewSelected()
	}
	e.notify()
}

// previewSelected retriggers the selected note as an immediate on/off
// pair on the output.
func (e *Engine) previewSelected() {
	n, ok := e.editor.Selected()
	if !ok || e.out == nil {
		return
	}
	e.out.NoteOn(n.Channel, n.Pitch, n.Velocity)
	e.out.NoteOff(n.Channel, n.Pitch)
}

// CommitEdit makes the in-progress move permanent without leaving the
// edit state. Driver hand-offs between controls go through here.
func (e *Engine) CommitEdit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.editor.moving == nil {
		return
	}
	e.editor.Commit()
	e.requestSave()
	e.notify()
}

// TransportStart handles an incoming realtime Start: rewind and run.
func (e *Engine) TransportStart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock.Reset()
	e.clock.Start()
	e.lastTick = 0
	for _, t := range e.tracks {
		if t.State() == TrackPlaying || t.State() == TrackOverdubbing {
			t.rewindPlayhead()
		}
	}
	e.notify()
}

func (e *Engine) TransportStop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock.Stop()
	e.allNotesOff()
	e.notify()
}

func (e *Engine) TransportContinue() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock.Start()
	e.notify()
}

// TrackInfo is the read-only display view of one track.
type TrackInfo struct {
	State          TrackState
	LoopLength     uint32
	LoopStart      uint32
	Playhead       uint32
	Events         int
	Muted          bool
	UndoDepth      int
	RedoDepth      int
	ClearUndoDepth int
}

func (e *Engine) TrackCount() int { return NumTracks }

func (e *Engine) CurrentTrack() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

func (e *Engine) TrackInfo(i int) TrackInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if i < 0 || i >= NumTracks {
		return TrackInfo{}
	}
	t := e.tracks[i]
	return TrackInfo{
		State:          t.State(),
		LoopLength:     t.LoopLength(),
		LoopStart:      t.LoopStart(),
		Playhead:       t.playhead,
		Events:         t.EventCount(),
		Muted:          t.Muted(),
		UndoDepth:      t.UndoDepth(),
		RedoDepth:      t.RedoDepth(),
		ClearUndoDepth: t.ClearUndoDepth(),
	}
}

// TrackNotes returns a copy of a track's reconstruction. Takes the write
// lock because serving it may rebuild the cache.
func (e *Engine) TrackNotes(i int) []Note {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= NumTracks {
		return nil
	}
	src := e.tracks[i].Notes()
	out := make([]Note, len(src))
	copy(out, src)
	return out
}

// EditInfo is the read-only display view of the editor.
type EditInfo struct {
	Mode         EditMode
	Bracket      uint32
	Selected     Note
	HasSelection bool
}

func (e *Engine) EditInfo() EditInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	info := EditInfo{Mode: e.editor.Mode(), Bracket: e.editor.Bracket()}
	if n, ok := e.editor.Selected(); ok {
		info.Selected = n
		info.HasSelection = true
	}
	return info
}

// ClockInfo is the read-only display view of the clock.
type ClockInfo struct {
	Tick     uint32
	BPM      float64
	Running  bool
	External bool
}

func (e *Engine) ClockInfo() ClockInfo {
	return ClockInfo{
		Tick:     e.clock.Now(),
		BPM:      e.clock.BPM(),
		Running:  e.clock.Running(),
		External: e.clock.External(),
	}
}
