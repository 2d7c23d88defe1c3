package looper

import "sort"

// Note is one reconstructed note span on the circular timeline. Start is
// always inside [0, loopLength); End lives in (0, loopLength], where End
// equal to the loop length means the note sustains to the loop boundary.
// End < Start means the note wraps across the boundary; End equal to
// Start means it covers the whole loop.
type Note struct {
	Pitch    uint8  `json:"pitch"`
	Velocity uint8  `json:"velocity"`
	Channel  uint8  `json:"channel"`
	Start    uint32 `json:"start"`
	End      uint32 `json:"end"`
}

// Wraps reports whether the note crosses the loop boundary.
func (n Note) Wraps() bool { return n.End < n.Start }

// Length returns the note span in ticks under the given loop length.
func (n Note) Length(loopLength uint32) uint32 {
	if loopLength == 0 {
		return 0
	}
	return spanLen(n.Start, n.End, loopLength)
}

type openNote struct {
	start    uint32
	velocity uint8
	channel  uint8
}

type noteKey struct {
	pitch      uint8
	start, end uint32
}

// ReconstructNotes pairs NoteOn/NoteOff events into note spans in a
// single pass over a tick-sorted store. Pairing keeps one LIFO stack of
// open notes per pitch, so overlapping same-pitch notes close in reverse
// order of their onsets. Rules for out-of-range ticks:
//
//   - a NoteOn at or past the loop length is a stale leftover from before
//     the loop was shortened and is dropped
//   - a NoteOff past the loop length wraps modulo the loop length
//   - a NoteOff with no open note on its pitch is a stray and is skipped
//   - notes still open after the pass close at the loop length
//
// Duplicate (pitch, start, end) spans collapse to one. The result is
// sorted by start, then pitch, then end, so equal inputs always produce
// the identical slice. A zero loop length yields nil.
func ReconstructNotes(events []Event, loopLength uint32) []Note {
	if loopLength == 0 {
		return nil
	}

	open := make(map[uint8][]openNote)
	notes := make([]Note, 0, len(events)/2)

	for _, e := range events {
		switch e.Type {
		case NoteOn:
			if e.Tick >= loopLength {
				continue
			}
			open[e.Note()] = append(open[e.Note()], openNote{start: e.Tick, velocity: e.Velocity(), channel: e.Channel})
		case NoteOff:
			stack := open[e.Note()]
			if len(stack) == 0 {
				continue
			}
			on := stack[len(stack)-1]
			open[e.Note()] = stack[:len(stack)-1]
			end := e.Tick
			if end > loopLength {
				end %= loopLength
				if end == 0 {
					end = loopLength
				}
			}
			notes = append(notes, Note{Pitch: e.Note(), Velocity: on.velocity, Channel: on.channel, Start: on.start, End: end})
		}
	}

	for pitch, stack := range open {
		for _, on := range stack {
			notes = append(notes, Note{Pitch: pitch, Velocity: on.velocity, Channel: on.channel, Start: on.start, End: loopLength})
		}
	}

	notes = dedupNotes(notes)
	sort.Slice(notes, func(i, j int) bool {
		a, b := notes[i], notes[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.Pitch != b.Pitch {
			return a.Pitch < b.Pitch
		}
		return a.End < b.End
	})
	return notes
}

// dedupNotes keeps the first note for every (pitch, start, end) triple.
func dedupNotes(notes []Note) []Note {
	if len(notes) < 2 {
		return notes
	}
	seen := make(map[noteKey]struct{}, len(notes))
	out := notes[:0]
	for _, n := range notes {
		k := noteKey{pitch: n.Pitch, start: n.Start, end: n.End}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, n)
	}
	return out
}
