package looper

import (
	"fmt"
	"sort"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/ftag"

	"github.com/Lytrix/MidiLooper-sub000/debug"
)

type pendingKey struct {
	channel uint8
	note    uint8
}

type pendingNote struct {
	startTick uint32
	velocity  uint8
}

// Track owns one loop: its event store, loop geometry, lifecycle state
// and undo history. Methods are not goroutine safe; the engine serializes
// every call (single writer).
type Track struct {
	events     []Event
	loopLength uint32
	loopStart  uint32
	state      TrackState
	muted      bool

	// open notes while recording or overdubbing, keyed channel+note
	pending map[pendingKey]pendingNote

	// clock tick when the first recording pass began
	recordStart uint32

	// reconstruction cache, valid while notesDirty is false and the
	// store hash still matches notesHash
	notes      []Note
	notesHash  uint64
	notesDirty bool

	// playback position within the loop timeline
	playhead uint32

	history history
}

func NewTrack() *Track {
	return &Track{
		state:      TrackEmpty,
		pending:    make(map[pendingKey]pendingNote),
		notesDirty: true,
	}
}

func (t *Track) State() TrackState  { return t.state }
func (t *Track) LoopLength() uint32 { return t.loopLength }
func (t *Track) LoopStart() uint32  { return t.loopStart }
func (t *Track) Muted() bool        { return t.muted }
func (t *Track) EventCount() int    { return len(t.events) }

// Events returns a copy of the store for display and persistence.
func (t *Track) Events() []Event {
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Hash fingerprints the store and loop length; see hashEvents.
func (t *Track) Hash() uint64 {
	return hashEvents(t.events, t.loopLength)
}

// setState validates the transition before applying it. A rejected
// transition leaves the track exactly as it was.
func (t *Track) setState(to TrackState) error {
	if !isValidTransition(t.state, to) {
		return fault.New(fmt.Sprintf("transition %s -> %s rejected", t.state, to),
			ftag.With(ErrInvalidTransition))
	}
	debug.Log("track", "state %s -> %s", t.state, to)
	t.state = to
	return nil
}

func (t *Track) Arm() error    { return t.setState(TrackArmed) }
func (t *Track) Disarm() error { return t.setState(TrackEmpty) }

// StartRecording begins the first pass. tick is the clock position at the
// moment recording starts; event ticks are stored relative to it.
func (t *Track) StartRecording(tick uint32) error {
	if err := t.setState(TrackRecording); err != nil {
		return err
	}
	t.recordStart = tick
	clear(t.pending)
	return nil
}

// RecordEvent stores one incoming event. During the first pass the tick
// is already relative to recordStart; during overdub it is the loop
// position. Anything arriving outside Recording/Overdubbing is dropped.
func (t *Track) RecordEvent(e Event) {
	switch t.state {
	case TrackRecording, TrackOverdubbing:
	default:
		return
	}

	switch e.Type {
	case NoteOn:
		t.pending[pendingKey{e.Channel, e.Data1}] = pendingNote{startTick: e.Tick, velocity: e.Data2}
	case NoteOff:
		key := pendingKey{e.Channel, e.Data1}
		if open, ok := t.pending[key]; ok {
			if e.Tick < open.startTick && t.state == TrackOverdubbing && t.loopLength > 0 {
				// held across the loop boundary: keep the off past the
				// loop length so the pair stays ordered in the store
				e.Tick += t.loopLength
			} else if e.Tick == open.startTick {
				// sub-tick press; a 1-tick note instead of an equal pair
				e.Tick++
			}
		}
		delete(t.pending, key)
	}

	t.insertEvent(e)
	t.invalidate()
}

// StopRecording ends the first pass: the loop length locks to the
// recorded span (rounded up to whole bars when quantize is on) and every
// note still held gets its NoteOff synthesized at the loop end, so the
// store is fully paired before playback or editing can begin.
func (t *Track) StopRecording(tick uint32, quantize bool) error {
	if err := t.setState(TrackStoppedRecording); err != nil {
		return err
	}
	length := tick - t.recordStart
	if quantize {
		length = roundUpToBar(length)
	}
	t.loopLength = length
	t.finalizePendingNotes()
	t.invalidate()
	debug.Log("track", "recording stopped, loop=%d ticks (%d events)", length, len(t.events))
	return nil
}

func roundUpToBar(ticks uint32) uint32 {
	if ticks == 0 {
		return 0
	}
	bars := (ticks + BarTicks - 1) / BarTicks
	return bars * BarTicks
}

// finalizePendingNotes closes every open note at the loop end.
func (t *Track) finalizePendingNotes() {
	if len(t.pending) == 0 {
		return
	}
	for key := range t.pending {
		t.insertEvent(Event{Type: NoteOff, Tick: t.loopLength, Channel: key.channel, Data1: key.note})
		debug.Log("track", "synthesized note-off ch=%d note=%d at loop end %d", key.channel, key.note, t.loopLength)
	}
	clear(t.pending)
}

// StartPlaying begins playback from the loop start offset.
func (t *Track) StartPlaying() error {
	if err := t.setState(TrackPlaying); err != nil {
		return err
	}
	t.rewindPlayhead()
	return nil
}

// rewindPlayhead parks the playhead one tick before the loop start, so
// the first advance span picks up events on the start tick itself.
func (t *Track) rewindPlayhead() {
	if t.loopLength > 0 {
		t.playhead = (t.loopStart + t.loopLength - 1) % t.loopLength
	} else {
		t.playhead = t.loopStart
	}
}

func (t *Track) StopPlaying() error  { return t.setState(TrackStopped) }
func (t *Track) StartOverdub() error { return t.setState(TrackOverdubbing) }

// StopOverdub returns to plain playback. Notes still held get their
// NoteOff synthesized at the loop end; their real NoteOff would arrive
// outside overdub and be dropped, leaving the store unpaired.
func (t *Track) StopOverdub() error {
	if err := t.setState(TrackPlaying); err != nil {
		return err
	}
	t.finalizePendingNotes()
	t.invalidate()
	return nil
}

func (t *Track) ToggleMute() { t.muted = !t.muted }

// Clear wipes events, loop geometry, pending notes and state back to
// Empty as one operation. Callers wanting it undoable push a clear
// snapshot first.
func (t *Track) Clear() {
	t.events = t.events[:0]
	t.loopLength = 0
	t.loopStart = 0
	t.playhead = 0
	clear(t.pending)
	if t.state != TrackEmpty {
		debug.Log("track", "cleared from %s", t.state)
	}
	t.state = TrackEmpty
	t.invalidate()
}

// SetLoopStart moves the playback rotation offset. No-op without a loop.
func (t *Track) SetLoopStart(tick uint32) {
	if t.loopLength == 0 {
		return
	}
	t.loopStart = tick % t.loopLength
}

// RotateLoopStart nudges the rotation offset by a signed tick delta.
func (t *Track) RotateLoopStart(delta int32) {
	if t.loopLength == 0 {
		return
	}
	l := int64(t.loopLength)
	s := (int64(t.loopStart) + int64(delta)) % l
	if s < 0 {
		s += l
	}
	t.loopStart = uint32(s)
}

// Notes returns the cached reconstruction, rebuilding it only when the
// store fingerprint moved since the last build.
func (t *Track) Notes() []Note {
	if !t.notesDirty {
		return t.notes
	}
	h := t.Hash()
	if t.notes != nil && h == t.notesHash {
		t.notesDirty = false
		return t.notes
	}
	t.notes = ReconstructNotes(t.events, t.loopLength)
	t.notesHash = h
	t.notesDirty = false
	return t.notes
}

func (t *Track) invalidate() {
	t.notesDirty = true
}

// insertEvent places e keeping the store order of sortEvents: ascending
// tick, NoteOffs first within a tick. Equal keys insert after existing
// ones so later arrivals keep their order.
func (t *Track) insertEvent(e Event) {
	i := sort.Search(len(t.events), func(i int) bool {
		if t.events[i].Tick != e.Tick {
			return t.events[i].Tick > e.Tick
		}
		return eventOrder(t.events[i]) > eventOrder(e)
	})
	t.events = append(t.events, Event{})
	copy(t.events[i+1:], t.events[i:])
	t.events[i] = e
}

// collectDue appends the events due in the half-open circular span
// (from, to] to dst, mapping stale out-of-range ticks onto the loop.
// NoteOns past the loop length are skipped the same way reconstruction
// skips them.
func (t *Track) collectDue(from, to uint32, dst []Event) []Event {
	if t.loopLength == 0 || from == to {
		return dst
	}
	for _, e := range t.events {
		tick := e.Tick
		if tick >= t.loopLength {
			if e.Type == NoteOn {
				continue
			}
			tick %= t.loopLength
		}
		if tickInSpan(tick, from, to, t.loopLength) {
			dst = append(dst, e)
		}
	}
	return dst
}

// tickInSpan reports whether tick lies in the circular span (from, to].
func tickInSpan(tick, from, to, loopLength uint32) bool {
	if from == to {
		return false
	}
	if from < to {
		return tick > from && tick <= to
	}
	return tick > from || tick <= to
}
