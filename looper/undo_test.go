package looper

import (
	"reflect"
	"testing"
)

func overdubPair(tr *Track, tick uint32, pitch uint8) {
	tr.RecordEvent(NoteOnEvent(tick, 0, pitch, 90))
	tr.RecordEvent(NoteOffEvent(tick+StepTicks, 0, pitch))
}

func TestUndoRedo(t *testing.T) {
	t.Run("round_trip", func(t *testing.T) {
		tr := recordLoop(t, []Event{
			NoteOnEvent(10, 0, 60, 90),
			NoteOffEvent(100, 0, 60),
		})
		before := tr.Events()

		tr.PushSnapshot()
		tr.StartPlaying()
		tr.StartOverdub()
		overdubPair(tr, 300, 62)
		after := tr.Events()

		if !tr.Undo() {
			t.Fatal("undo failed with history present")
		}
		if !reflect.DeepEqual(tr.Events(), before) {
			t.Errorf("undo: got %v, want %v", tr.Events(), before)
		}
		if !tr.Redo() {
			t.Fatal("redo failed")
		}
		if !reflect.DeepEqual(tr.Events(), after) {
			t.Errorf("redo: got %v, want %v", tr.Events(), after)
		}
	})

	t.Run("empty_history", func(t *testing.T) {
		tr := NewTrack()
		if tr.Undo() {
			t.Error("undo on empty history reported success")
		}
		if tr.Redo() {
			t.Error("redo on empty history reported success")
		}
	})

	t.Run("push_drains_redo", func(t *testing.T) {
		tr := recordLoop(t, nil)
		tr.StartPlaying()
		tr.StartOverdub()

		tr.PushSnapshot()
		overdubPair(tr, 0, 60)
		tr.Undo()
		if tr.RedoDepth() != 1 {
			t.Fatalf("redo depth: got %d, want 1", tr.RedoDepth())
		}
		tr.PushSnapshot()
		overdubPair(tr, 96, 62)
		if tr.RedoDepth() != 0 {
			t.Errorf("redo depth after new push: got %d, want 0", tr.RedoDepth())
		}
	})

	t.Run("bounded_at_limit", func(t *testing.T) {
		tr := recordLoop(t, nil)
		tr.StartPlaying()
		tr.StartOverdub()
		for i := 0; i < historyLimit+10; i++ {
			tr.PushSnapshot()
			overdubPair(tr, uint32(i%12)*StepTicks, uint8(36+i%48))
		}
		if tr.UndoDepth() != historyLimit {
			t.Errorf("undo depth: got %d, want %d", tr.UndoDepth(), historyLimit)
		}
	})

	t.Run("elision_when_unchanged", func(t *testing.T) {
		tr := recordLoop(t, []Event{
			NoteOnEvent(10, 0, 60, 90),
			NoteOffEvent(100, 0, 60),
		})
		pre := tr.Hash()
		tr.PushSnapshot()
		if !tr.dropSnapshotIfUnchanged(pre) {
			t.Error("unchanged session kept its snapshot")
		}
		if tr.UndoDepth() != 0 {
			t.Errorf("undo depth: got %d, want 0", tr.UndoDepth())
		}

		tr.PushSnapshot()
		tr.StartPlaying()
		tr.StartOverdub()
		overdubPair(tr, 300, 62)
		if tr.dropSnapshotIfUnchanged(pre) {
			t.Error("changed session dropped its snapshot")
		}
		if tr.UndoDepth() != 1 {
			t.Errorf("undo depth: got %d, want 1", tr.UndoDepth())
		}
	})
}

func TestClearUndo(t *testing.T) {
	tr := recordLoop(t, []Event{
		NoteOnEvent(10, 0, 60, 90),
		NoteOffEvent(100, 0, 60),
	})
	tr.StartPlaying()
	tr.SetLoopStart(96)
	events := tr.Events()

	tr.PushClearSnapshot()
	tr.Clear()
	if tr.State() != TrackEmpty || tr.EventCount() != 0 {
		t.Fatalf("clear left state=%v events=%d", tr.State(), tr.EventCount())
	}

	// restoration brings back events, geometry and lifecycle state in one
	// step, even though Empty -> Playing is not a legal transition
	if !tr.UndoClear() {
		t.Fatal("undo clear failed with history present")
	}
	if tr.State() != TrackPlaying {
		t.Errorf("state: got %v, want %v", tr.State(), TrackPlaying)
	}
	if tr.LoopLength() != 768 || tr.LoopStart() != 96 {
		t.Errorf("geometry: got loop=%d start=%d, want 768/96", tr.LoopLength(), tr.LoopStart())
	}
	if !reflect.DeepEqual(tr.Events(), events) {
		t.Errorf("events: got %v, want %v", tr.Events(), events)
	}

	if !tr.RedoClear() {
		t.Fatal("redo clear failed")
	}
	if tr.State() != TrackEmpty || tr.EventCount() != 0 {
		t.Errorf("redo clear: state=%v events=%d", tr.State(), tr.EventCount())
	}
}

func TestLoopStartUndo(t *testing.T) {
	tr := recordLoop(t, []Event{
		NoteOnEvent(10, 0, 60, 90),
		NoteOffEvent(100, 0, 60),
	})

	tr.PushLoopStartSnapshot()
	tr.RotateLoopStart(BarTicks / 2)
	if tr.LoopStart() != BarTicks/2 {
		t.Fatalf("rotate: got %d, want %d", tr.LoopStart(), BarTicks/2)
	}

	if !tr.UndoLoopStart() {
		t.Fatal("undo loop start failed")
	}
	if tr.LoopStart() != 0 {
		t.Errorf("undo: got %d, want 0", tr.LoopStart())
	}
	if !tr.RedoLoopStart() {
		t.Fatal("redo loop start failed")
	}
	if tr.LoopStart() != BarTicks/2 {
		t.Errorf("redo: got %d, want %d", tr.LoopStart(), BarTicks/2)
	}

	// the offset lane never touches the event store
	if tr.EventCount() != 2 {
		t.Errorf("event count: got %d, want 2", tr.EventCount())
	}
}

func TestBufferPool(t *testing.T) {
	var p bufferPool
	buf := p.take(4)
	if len(buf) != 4 {
		t.Fatalf("take: got len %d, want 4", len(buf))
	}
	p.give(buf)
	reused := p.take(3)
	if cap(reused) < 3 {
		t.Fatalf("reused cap: got %d", cap(reused))
	}
	if &reused[0] != &buf[0] {
		t.Error("pool did not reuse the returned buffer")
	}

	// too-small pooled buffers are passed over
	p.give(reused)
	big := p.take(16)
	if len(big) != 16 {
		t.Errorf("take big: got len %d, want 16", len(big))
	}
}
