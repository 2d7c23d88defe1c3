package looper

import (
	"sort"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/ftag"

	"github.com/Lytrix/MidiLooper-sub000/debug"
)

// minNoteTicks is the shortest span a truncation may leave behind.
// Anything that would end up shorter is deleted outright.
const minNoteTicks = StepTicks

// RemovedNote is one entry on a MovingNote's displaced list: a note the
// drag shortened or deleted, remembered by its original extent so it can
// come back when the drag moves off it.
type RemovedNote struct {
	Pitch        uint8
	Velocity     uint8
	Channel      uint8
	OrigStart    uint32
	OrigEnd      uint32
	Shortened    bool   // still in the store with a truncated end
	TruncatedEnd uint32 // current end while Shortened
}

// MovingNote identifies the dragged note across reconstructions by value,
// never by slice index, and carries everything needed to reconcile the
// notes it displaces along the way.
type MovingNote struct {
	Pitch         uint8
	Velocity      uint8
	OrigStart     uint32
	OrigEnd       uint32
	Start         uint32 // last applied position
	End           uint32
	MovedBackward bool // direction of the most recent movement
	Removed       []RemovedNote
}

func newMovingNote(n Note) *MovingNote {
	return &MovingNote{
		Pitch:     n.Pitch,
		Velocity:  n.Velocity,
		OrigStart: n.Start,
		OrigEnd:   n.End,
		Start:     n.Start,
		End:       n.End,
	}
}

// spanLen measures the circular interval [s, e) under loop length l.
// e == s counts as the full loop.
func spanLen(s, e, l uint32) uint32 {
	switch {
	case e > s:
		return e - s
	case e < s:
		return l - s + e
	default:
		return l
	}
}

// overlaps reports whether the circular intervals [as, ae) and [bs, be)
// intersect. Touching endpoints do not overlap.
func overlaps(as, ae, bs, be, l uint32) bool {
	if l == 0 {
		return false
	}
	alen, blen := spanLen(as, ae, l), spanLen(bs, be, l)
	return (bs+l-as)%l < alen || (as+l-bs)%l < blen
}

// tickWithin reports whether tick lies inside the circular [s, e).
func tickWithin(tick, s, e, l uint32) bool {
	if l == 0 {
		return false
	}
	return (tick+l-s)%l < spanLen(s, e, l)
}

// addStart shifts a start tick by a signed delta, staying in [0, l).
func addStart(tick uint32, delta int32, l uint32) uint32 {
	v := (int64(tick) + int64(delta)) % int64(l)
	if v < 0 {
		v += int64(l)
	}
	return uint32(v)
}

// endFor places the end tick of a note of the given length. Ends live in
// (0, l]: a note reaching the loop boundary ends at l, not 0, so its
// NoteOff keeps sorting after its NoteOn.
func endFor(start, length, l uint32) uint32 {
	e := (start + length) % l
	if e == 0 {
		e = l
	}
	return e
}

// circularDelta returns the signed shortest path from one tick to
// another around the loop.
func circularDelta(from, to, l uint32) int32 {
	d := int64(to+l-from) % int64(l)
	if d > int64(l)/2 {
		d -= int64(l)
	}
	return int32(d)
}

// offTickFor maps a note span back to the store tick of its NoteOff.
// A wrapping or full-loop span keeps its NoteOff past the loop length so
// the pair stays ordered in the tick-sorted store; reconstruction wraps
// it back.
func offTickFor(start, end, l uint32) uint32 {
	if end <= start {
		return end + l
	}
	return end
}

type eventKey struct {
	typ   EventType
	pitch uint8
	tick  uint32
}

// buildNoteIndex maps (type, pitch, tick) to store positions so the
// resolver can locate the exact events behind each reconstructed note.
// Duplicate keys list positions in store order; takeIndexed consumes the
// first unclaimed one.
func buildNoteIndex(events []Event) map[eventKey][]int {
	idx := make(map[eventKey][]int)
	for i, e := range events {
		if !e.IsNote() {
			continue
		}
		k := eventKey{typ: e.Type, pitch: e.Data1, tick: e.Tick}
		idx[k] = append(idx[k], i)
	}
	return idx
}

func takeIndexed(idx map[eventKey][]int, typ EventType, pitch uint8, tick uint32) (int, bool) {
	k := eventKey{typ: typ, pitch: pitch, tick: tick}
	list := idx[k]
	if len(list) == 0 {
		return 0, false
	}
	idx[k] = list[1:]
	return list[0], true
}

// eventWrite is one staged in-place mutation of a store position.
type eventWrite struct {
	pos   int
	tick  uint32
	pitch uint8
}

// movePlan stages every mutation of one resolver call. Nothing touches
// the store until the whole plan resolved, so a missing event aborts the
// edit with the track unchanged.
type movePlan struct {
	writes []eventWrite
	dels   []int
	adds   []Event
}

func (p *movePlan) retick(pos int, tick uint32, pitch uint8) {
	p.writes = append(p.writes, eventWrite{pos: pos, tick: tick, pitch: pitch})
}

// resolveMove applies one drag increment of the moving note and
// reconciles everything it displaces:
//
//  1. already-displaced notes are re-reconciled against the new position:
//     truncations deepen or regrow toward the original end, drop to
//     deletion below the minimum span, and fully displaced entries are
//     restored once the moving note cleared their original extent
//  2. freshly conflicting notes of the target pitch are truncated to the
//     moving note's new start when only their tail is covered and the
//     remainder keeps the minimum span; otherwise they are deleted and
//     remembered
//  3. the moving note's own NoteOn/NoteOff move to the new position
//
// All event surgery goes through a per-call tick+pitch index; the store
// re-sorts once at the end and caches drop. The caller re-resolves the
// selection afterwards.
func (t *Track) resolveMove(mv *MovingNote, newStart, newEnd uint32, newPitch uint8) error {
	l := t.loopLength
	if l == 0 {
		return fault.New("no loop to edit", ftag.With(ErrNoLoop))
	}

	notes := t.Notes()
	idx := buildNoteIndex(t.events)
	var plan movePlan

	// notes the displaced list still owns, keyed by the truncated form
	// the current reconstruction shows for them
	tracked := make(map[noteKey]bool, len(mv.Removed))
	for _, rm := range mv.Removed {
		if rm.Shortened {
			tracked[noteKey{pitch: rm.Pitch, start: rm.OrigStart, end: rm.TruncatedEnd}] = true
		}
	}

	// locate the moving note's own events first; without both the edit
	// cannot apply at all
	onPos, onOK := takeIndexed(idx, NoteOn, mv.Pitch, mv.Start)
	offPos, offOK := takeIndexed(idx, NoteOff, mv.Pitch, offTickFor(mv.Start, mv.End, l))
	if !onOK || !offOK {
		return fault.New("moving note events not found", ftag.With(ErrUnpairedEvent))
	}
	plan.retick(onPos, newStart, newPitch)
	plan.retick(offPos, offTickFor(newStart, newEnd, l), newPitch)

	// reconcile the already-displaced notes
	kept := mv.Removed[:0]
	for _, rm := range mv.Removed {
		stillConflicts := rm.Pitch == newPitch && overlaps(newStart, newEnd, rm.OrigStart, rm.OrigEnd, l)
		switch {
		case !stillConflicts && rm.Shortened:
			if rm.TruncatedEnd != rm.OrigEnd {
				pos, ok := takeIndexed(idx, NoteOff, rm.Pitch, offTickFor(rm.OrigStart, rm.TruncatedEnd, l))
				if !ok {
					return fault.New("displaced note-off not found", ftag.With(ErrUnpairedEvent))
				}
				plan.retick(pos, offTickFor(rm.OrigStart, rm.OrigEnd, l), rm.Pitch)
			}
			debug.Log("overlap", "restored pitch=%d [%d,%d)", rm.Pitch, rm.OrigStart, rm.OrigEnd)

		case !stillConflicts:
			plan.adds = append(plan.adds,
				NoteOnEvent(rm.OrigStart, rm.Channel, rm.Pitch, rm.Velocity),
				NoteOffEvent(offTickFor(rm.OrigStart, rm.OrigEnd, l), rm.Channel, rm.Pitch))
			debug.Log("overlap", "recreated pitch=%d [%d,%d)", rm.Pitch, rm.OrigStart, rm.OrigEnd)

		case rm.Shortened:
			if tickWithin(rm.OrigStart, newStart, newEnd, l) ||
				spanLen(rm.OrigStart, newStart, l) < minNoteTicks {
				// the remainder no longer fits: drop to deletion
				onP, onOK := takeIndexed(idx, NoteOn, rm.Pitch, rm.OrigStart)
				offP, offOK := takeIndexed(idx, NoteOff, rm.Pitch, offTickFor(rm.OrigStart, rm.TruncatedEnd, l))
				if !onOK || !offOK {
					return fault.New("displaced note events not found", ftag.With(ErrUnpairedEvent))
				}
				plan.dels = append(plan.dels, onP, offP)
				rm.Shortened = false
			} else if newStart != rm.TruncatedEnd {
				pos, ok := takeIndexed(idx, NoteOff, rm.Pitch, offTickFor(rm.OrigStart, rm.TruncatedEnd, l))
				if !ok {
					return fault.New("displaced note-off not found", ftag.With(ErrUnpairedEvent))
				}
				plan.retick(pos, offTickFor(rm.OrigStart, newStart, l), rm.Pitch)
				rm.TruncatedEnd = newStart
			}
			kept = append(kept, rm)

		default:
			// fully removed and still in the way
			kept = append(kept, rm)
		}
	}

	// fresh conflicts among notes not already tracked
	moverSkipped := false
	for _, n := range notes {
		if !moverSkipped && n.Pitch == mv.Pitch && n.Start == mv.Start && n.End == mv.End {
			moverSkipped = true
			continue
		}
		if tracked[noteKey{pitch: n.Pitch, start: n.Start, end: n.End}] {
			continue
		}
		if n.Pitch != newPitch || !overlaps(newStart, newEnd, n.Start, n.End, l) {
			continue
		}

		shortenable := !tickWithin(n.Start, newStart, newEnd, l) &&
			spanLen(n.Start, newStart, l) >= minNoteTicks
		if shortenable {
			pos, ok := takeIndexed(idx, NoteOff, n.Pitch, offTickFor(n.Start, n.End, l))
			if !ok {
				return fault.New("conflicting note-off not found", ftag.With(ErrUnpairedEvent))
			}
			plan.retick(pos, offTickFor(n.Start, newStart, l), n.Pitch)
			kept = append(kept, RemovedNote{
				Pitch: n.Pitch, Velocity: n.Velocity, Channel: n.Channel,
				OrigStart: n.Start, OrigEnd: n.End,
				Shortened: true, TruncatedEnd: newStart,
			})
			debug.Log("overlap", "shortened pitch=%d [%d,%d) to end %d", n.Pitch, n.Start, n.End, newStart)
		} else {
			onP, onOK := takeIndexed(idx, NoteOn, n.Pitch, n.Start)
			offP, offOK := takeIndexed(idx, NoteOff, n.Pitch, offTickFor(n.Start, n.End, l))
			if !onOK || !offOK {
				return fault.New("conflicting note events not found", ftag.With(ErrUnpairedEvent))
			}
			plan.dels = append(plan.dels, onP, offP)
			kept = append(kept, RemovedNote{
				Pitch: n.Pitch, Velocity: n.Velocity, Channel: n.Channel,
				OrigStart: n.Start, OrigEnd: n.End,
			})
			debug.Log("overlap", "deleted pitch=%d [%d,%d)", n.Pitch, n.Start, n.End)
		}
	}

	t.applyPlan(plan)

	if delta := circularDelta(mv.Start, newStart, l); delta != 0 {
		mv.MovedBackward = delta < 0
	} else if delta := circularDelta(mv.End, newEnd, l); delta != 0 {
		mv.MovedBackward = delta < 0
	}
	mv.Start, mv.End, mv.Pitch = newStart, newEnd, newPitch
	mv.Removed = kept
	return nil
}

// applyPlan commits a fully staged plan: in-place writes first, then
// deletions from the back, then additions, then one re-sort.
func (t *Track) applyPlan(plan movePlan) {
	for _, w := range plan.writes {
		t.events[w.pos].Tick = w.tick
		t.events[w.pos].Data1 = w.pitch
	}
	if len(plan.dels) > 0 {
		sort.Ints(plan.dels)
		for i := len(plan.dels) - 1; i >= 0; i-- {
			pos := plan.dels[i]
			t.events = append(t.events[:pos], t.events[pos+1:]...)
		}
	}
	t.events = append(t.events, plan.adds...)
	sortEvents(t.events)
	t.invalidate()
}
