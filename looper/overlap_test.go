package looper

import (
	"reflect"
	"testing"

	"github.com/Southclaws/fault/ftag"
)

type span struct {
	pitch   uint8
	on, off uint32
}

// trackWith records the given spans into a fresh 768-tick loop.
func trackWith(t *testing.T, spans ...span) *Track {
	t.Helper()
	var events []Event
	for _, s := range spans {
		events = append(events,
			NoteOnEvent(s.on, 0, s.pitch, 90),
			NoteOffEvent(s.off, 0, s.pitch))
	}
	return recordLoop(t, events)
}

func findNote(t *testing.T, tr *Track, pitch uint8, start uint32) Note {
	t.Helper()
	for _, n := range tr.Notes() {
		if n.Pitch == pitch && n.Start == start {
			return n
		}
	}
	t.Fatalf("no note pitch=%d start=%d in %v", pitch, start, tr.Notes())
	return Note{}
}

func moverFor(t *testing.T, tr *Track, pitch uint8, start uint32) *MovingNote {
	t.Helper()
	return newMovingNote(findNote(t, tr, pitch, start))
}

func wantNotes(t *testing.T, tr *Track, want []Note) {
	t.Helper()
	if got := tr.Notes(); !reflect.DeepEqual(got, want) {
		t.Errorf("notes: got %v, want %v", got, want)
	}
}

func TestCircularHelpers(t *testing.T) {
	const l = 768

	t.Run("span_len", func(t *testing.T) {
		cases := []struct {
			s, e, want uint32
		}{
			{100, 300, 200},
			{700, 100, 168},
			{0, 768, 768},
			{5, 5, 768},
		}
		for _, c := range cases {
			if got := spanLen(c.s, c.e, l); got != c.want {
				t.Errorf("spanLen(%d,%d): got %d, want %d", c.s, c.e, got, c.want)
			}
		}
	})

	t.Run("overlaps", func(t *testing.T) {
		cases := []struct {
			as, ae, bs, be uint32
			want           bool
		}{
			{100, 300, 250, 450, true},
			{100, 250, 250, 450, false}, // touching endpoints
			{700, 100, 0, 50, true},     // wrap-extension hits b
			{700, 100, 100, 200, false},
			{700, 100, 650, 720, true},
			{5, 5, 400, 450, true}, // full loop hits everything
		}
		for _, c := range cases {
			if got := overlaps(c.as, c.ae, c.bs, c.be, l); got != c.want {
				t.Errorf("overlaps([%d,%d),[%d,%d)): got %v, want %v",
					c.as, c.ae, c.bs, c.be, got, c.want)
			}
			if got := overlaps(c.bs, c.be, c.as, c.ae, l); got != c.want {
				t.Errorf("overlaps([%d,%d),[%d,%d)): not symmetric",
					c.bs, c.be, c.as, c.ae)
			}
		}
	})

	t.Run("tick_within", func(t *testing.T) {
		cases := []struct {
			tick, s, e uint32
			want       bool
		}{
			{100, 50, 150, true},
			{150, 50, 150, false}, // half-open
			{50, 50, 150, true},
			{10, 700, 100, true}, // wrapped interval
			{699, 700, 100, false},
		}
		for _, c := range cases {
			if got := tickWithin(c.tick, c.s, c.e, l); got != c.want {
				t.Errorf("tickWithin(%d,[%d,%d)): got %v, want %v",
					c.tick, c.s, c.e, got, c.want)
			}
		}
	})

	t.Run("add_start", func(t *testing.T) {
		if got := addStart(0, -StepTicks, l); got != l-StepTicks {
			t.Errorf("backward wrap: got %d, want %d", got, l-StepTicks)
		}
		if got := addStart(l-StepTicks, 2*StepTicks, l); got != StepTicks {
			t.Errorf("forward wrap: got %d, want %d", got, StepTicks)
		}
	})

	t.Run("end_for", func(t *testing.T) {
		cases := []struct {
			start, length, want uint32
		}{
			{720, 96, 48},   // wraps
			{0, 768, 768},   // full loop from zero ends at the boundary
			{100, 668, 768}, // lands exactly on the boundary
			{100, 768, 100}, // full loop elsewhere
		}
		for _, c := range cases {
			if got := endFor(c.start, c.length, l); got != c.want {
				t.Errorf("endFor(%d,%d): got %d, want %d", c.start, c.length, got, c.want)
			}
		}
	})

	t.Run("circular_delta", func(t *testing.T) {
		cases := []struct {
			from, to uint32
			want     int32
		}{
			{10, 20, 10},
			{20, 10, -10},
			{700, 10, 78},
			{10, 700, -78},
		}
		for _, c := range cases {
			if got := circularDelta(c.from, c.to, l); got != c.want {
				t.Errorf("circularDelta(%d,%d): got %d, want %d", c.from, c.to, got, c.want)
			}
		}
	})

	t.Run("off_tick_for", func(t *testing.T) {
		cases := []struct {
			start, end, want uint32
		}{
			{100, 300, 300},
			{758, 5, 773}, // wrapped span
			{96, 96, 864}, // full loop
			{0, 768, 768}, // to the boundary
		}
		for _, c := range cases {
			if got := offTickFor(c.start, c.end, l); got != c.want {
				t.Errorf("offTickFor(%d,%d): got %d, want %d", c.start, c.end, got, c.want)
			}
		}
	})
}

func TestResolveMove(t *testing.T) {
	t.Run("shorten_tail", func(t *testing.T) {
		// Moving onto the tail of an earlier note truncates it to the
		// moving note's new start.
		tr := trackWith(t, span{60, 100, 300}, span{60, 450, 650})
		mv := moverFor(t, tr, 60, 450)
		if err := tr.resolveMove(mv, 250, 450, 60); err != nil {
			t.Fatal(err)
		}
		wantNotes(t, tr, []Note{
			{Pitch: 60, Velocity: 90, Start: 100, End: 250},
			{Pitch: 60, Velocity: 90, Start: 250, End: 450},
		})
		if len(mv.Removed) != 1 {
			t.Fatalf("removed list: got %d entries, want 1", len(mv.Removed))
		}
		rm := mv.Removed[0]
		if !rm.Shortened || rm.TruncatedEnd != 250 || rm.OrigEnd != 300 {
			t.Errorf("removed entry: %+v", rm)
		}
	})

	t.Run("below_minimum_deleted", func(t *testing.T) {
		// The remainder would be 30 ticks, under one grid step, so the
		// conflicting note is deleted instead of truncated.
		tr := trackWith(t, span{60, 220, 300}, span{60, 450, 650})
		mv := moverFor(t, tr, 60, 450)
		if err := tr.resolveMove(mv, 250, 450, 60); err != nil {
			t.Fatal(err)
		}
		wantNotes(t, tr, []Note{{Pitch: 60, Velocity: 90, Start: 250, End: 450}})
		if len(mv.Removed) != 1 || mv.Removed[0].Shortened {
			t.Errorf("removed list: %+v", mv.Removed)
		}
	})

	t.Run("covered_start_deleted", func(t *testing.T) {
		tr := trackWith(t, span{60, 260, 300}, span{60, 450, 650})
		mv := moverFor(t, tr, 60, 450)
		if err := tr.resolveMove(mv, 250, 450, 60); err != nil {
			t.Fatal(err)
		}
		wantNotes(t, tr, []Note{{Pitch: 60, Velocity: 90, Start: 250, End: 450}})
	})

	t.Run("restore_on_move_away", func(t *testing.T) {
		tr := trackWith(t, span{60, 100, 300}, span{60, 450, 650})
		mv := moverFor(t, tr, 60, 450)
		if err := tr.resolveMove(mv, 250, 450, 60); err != nil {
			t.Fatal(err)
		}
		// moving back off the truncated note regrows it to its original end
		if err := tr.resolveMove(mv, 450, 650, 60); err != nil {
			t.Fatal(err)
		}
		wantNotes(t, tr, []Note{
			{Pitch: 60, Velocity: 90, Start: 100, End: 300},
			{Pitch: 60, Velocity: 90, Start: 450, End: 650},
		})
		if len(mv.Removed) != 0 {
			t.Errorf("removed list not emptied: %+v", mv.Removed)
		}
	})

	t.Run("recreate_on_move_away", func(t *testing.T) {
		tr := trackWith(t, span{60, 220, 300}, span{60, 450, 650})
		mv := moverFor(t, tr, 60, 450)
		if err := tr.resolveMove(mv, 250, 450, 60); err != nil {
			t.Fatal(err)
		}
		if err := tr.resolveMove(mv, 450, 650, 60); err != nil {
			t.Fatal(err)
		}
		wantNotes(t, tr, []Note{
			{Pitch: 60, Velocity: 90, Start: 220, End: 300},
			{Pitch: 60, Velocity: 90, Start: 450, End: 650},
		})
	})

	t.Run("deepen_truncation", func(t *testing.T) {
		tr := trackWith(t, span{60, 100, 300}, span{60, 450, 650})
		mv := moverFor(t, tr, 60, 450)
		if err := tr.resolveMove(mv, 250, 450, 60); err != nil {
			t.Fatal(err)
		}
		if err := tr.resolveMove(mv, 200, 400, 60); err != nil {
			t.Fatal(err)
		}
		wantNotes(t, tr, []Note{
			{Pitch: 60, Velocity: 90, Start: 100, End: 200},
			{Pitch: 60, Velocity: 90, Start: 200, End: 400},
		})
		if mv.Removed[0].TruncatedEnd != 200 {
			t.Errorf("truncated end: got %d, want 200", mv.Removed[0].TruncatedEnd)
		}
	})

	t.Run("truncation_becomes_deletion_then_restores", func(t *testing.T) {
		tr := trackWith(t, span{60, 100, 300}, span{60, 450, 650})
		mv := moverFor(t, tr, 60, 450)
		if err := tr.resolveMove(mv, 250, 450, 60); err != nil {
			t.Fatal(err)
		}
		// sliding deep over the truncated note leaves no viable remainder
		if err := tr.resolveMove(mv, 120, 320, 60); err != nil {
			t.Fatal(err)
		}
		wantNotes(t, tr, []Note{{Pitch: 60, Velocity: 90, Start: 120, End: 320}})

		// and clearing its original extent brings the whole note back
		if err := tr.resolveMove(mv, 450, 650, 60); err != nil {
			t.Fatal(err)
		}
		wantNotes(t, tr, []Note{
			{Pitch: 60, Velocity: 90, Start: 100, End: 300},
			{Pitch: 60, Velocity: 90, Start: 450, End: 650},
		})
	})

	t.Run("wrapping_mover_shortens", func(t *testing.T) {
		// The mover ends up crossing the loop boundary; the conflicting
		// note still truncates cleanly at the mover's new start.
		tr := trackWith(t, span{60, 600, 700}, span{60, 64, 232})
		mv := moverFor(t, tr, 60, 64)
		if err := tr.resolveMove(mv, 650, 50, 60); err != nil {
			t.Fatal(err)
		}
		wantNotes(t, tr, []Note{
			{Pitch: 60, Velocity: 90, Start: 600, End: 650},
			{Pitch: 60, Velocity: 90, Start: 650, End: 50},
		})
		var offTick uint32
		for _, e := range tr.Events() {
			if e.Type == NoteOff && e.Tick > 768 {
				offTick = e.Tick
			}
		}
		if offTick != 818 {
			t.Errorf("wrapped off tick: got %d, want 818", offTick)
		}
	})

	t.Run("pitch_change_runs_same_resolution", func(t *testing.T) {
		tr := trackWith(t, span{60, 100, 300}, span{62, 150, 350})
		mv := moverFor(t, tr, 60, 100)
		if err := tr.resolveMove(mv, 100, 300, 62); err != nil {
			t.Fatal(err)
		}
		wantNotes(t, tr, []Note{{Pitch: 62, Velocity: 90, Start: 100, End: 300}})

		// dropping back to the old pitch clears the conflict and the
		// displaced note comes back
		if err := tr.resolveMove(mv, 100, 300, 60); err != nil {
			t.Fatal(err)
		}
		wantNotes(t, tr, []Note{
			{Pitch: 60, Velocity: 90, Start: 100, End: 300},
			{Pitch: 62, Velocity: 90, Start: 150, End: 350},
		})
	})

	t.Run("mixed_outcomes_one_increment", func(t *testing.T) {
		tr := trackWith(t,
			span{60, 0, 300},
			span{60, 350, 420},
			span{60, 380, 430},
			span{60, 420, 520},
		)
		mv := moverFor(t, tr, 60, 0)
		if err := tr.resolveMove(mv, 400, 700, 60); err != nil {
			t.Fatal(err)
		}
		wantNotes(t, tr, []Note{
			{Pitch: 60, Velocity: 90, Start: 350, End: 400},
			{Pitch: 60, Velocity: 90, Start: 400, End: 700},
		})
		if len(mv.Removed) != 3 {
			t.Errorf("removed list: got %d entries, want 3", len(mv.Removed))
		}
	})

	t.Run("missing_pair_aborts_untouched", func(t *testing.T) {
		tr := trackWith(t, span{60, 100, 300}, span{60, 450, 650})
		mv := moverFor(t, tr, 60, 450)

		// sabotage: drop the mover's NoteOff behind the resolver's back
		for i, e := range tr.events {
			if e.Type == NoteOff && e.Tick == 650 {
				tr.events = append(tr.events[:i], tr.events[i+1:]...)
				break
			}
		}
		tr.invalidate()
		before := tr.Events()

		err := tr.resolveMove(mv, 250, 450, 60)
		if err == nil {
			t.Fatal("resolver accepted a store missing the moving pair")
		}
		if ftag.Get(err) != ErrUnpairedEvent {
			t.Errorf("tag: got %v, want %v", ftag.Get(err), ErrUnpairedEvent)
		}
		if !reflect.DeepEqual(tr.Events(), before) {
			t.Error("failed resolve mutated the store")
		}
	})

	t.Run("no_loop", func(t *testing.T) {
		tr := NewTrack()
		mv := &MovingNote{Pitch: 60}
		if err := tr.resolveMove(mv, 0, 100, 60); ftag.Get(err) != ErrNoLoop {
			t.Errorf("tag: got %v, want %v", ftag.Get(err), ErrNoLoop)
		}
	})
}
