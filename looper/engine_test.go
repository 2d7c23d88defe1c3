package looper

import (
	"fmt"
	"reflect"
	"testing"
)

// fakeOutput records every emission as a readable line.
type fakeOutput struct {
	calls []string
}

func (f *fakeOutput) NoteOn(ch, n, v uint8) {
	f.calls = append(f.calls, fmt.Sprintf("on %d %d %d", ch, n, v))
}
func (f *fakeOutput) NoteOff(ch, n uint8) {
	f.calls = append(f.calls, fmt.Sprintf("off %d %d", ch, n))
}
func (f *fakeOutput) ControlChange(ch, cc, v uint8) {
	f.calls = append(f.calls, fmt.Sprintf("cc %d %d %d", ch, cc, v))
}
func (f *fakeOutput) PitchBend(ch uint8, bend int16) {
	f.calls = append(f.calls, fmt.Sprintf("bend %d %d", ch, bend))
}
func (f *fakeOutput) ProgramChange(ch, p uint8) {
	f.calls = append(f.calls, fmt.Sprintf("prog %d %d", ch, p))
}

type fakeSaver struct {
	saves int
}

func (s *fakeSaver) RequestSave() { s.saves++ }

// recordedEngine drives a full record pass of one note through the
// public surface: arm, first-input auto-start, stop at one bar.
func recordedEngine(t *testing.T) (*Engine, *fakeOutput) {
	t.Helper()
	out := &fakeOutput{}
	eng := NewEngine(NewClock(120), out)
	eng.ToggleRecord()
	if got := eng.TrackInfo(0).State; got != TrackArmed {
		t.Fatalf("state after arm: got %v, want %v", got, TrackArmed)
	}
	eng.HandleEvent(Event{Type: NoteOn, Data1: 60, Data2: 90})
	eng.clock.tick.Store(100)
	eng.HandleEvent(Event{Type: NoteOff, Data1: 60})
	eng.clock.tick.Store(768)
	eng.ToggleRecord()
	if got := eng.TrackInfo(0).LoopLength; got != 768 {
		t.Fatalf("loop length: got %d, want 768", got)
	}
	return eng, out
}

func TestEngineRecordFlow(t *testing.T) {
	eng, out := recordedEngine(t)

	t.Run("auto_started_on_first_input", func(t *testing.T) {
		if !eng.clock.Running() {
			t.Error("clock not started by first input")
		}
		notes := eng.TrackNotes(0)
		want := []Note{{Pitch: 60, Velocity: 90, Start: 0, End: 100}}
		if !reflect.DeepEqual(notes, want) {
			t.Errorf("notes: got %v, want %v", notes, want)
		}
	})

	t.Run("input_echoed_through", func(t *testing.T) {
		if len(out.calls) == 0 || out.calls[0] != "on 0 60 90" {
			t.Errorf("echo: got %v", out.calls)
		}
	})
}

func TestEngineQuantize(t *testing.T) {
	eng := NewEngine(NewClock(120), &fakeOutput{})
	eng.ToggleRecord()
	eng.HandleEvent(Event{Type: NoteOn, Data1: 60, Data2: 90})
	eng.clock.tick.Store(100)
	eng.HandleEvent(Event{Type: NoteOff, Data1: 60})
	// stopping mid-bar rounds the loop up to the whole bar
	eng.clock.tick.Store(800)
	eng.ToggleRecord()
	if got := eng.TrackInfo(0).LoopLength; got != 2*BarTicks {
		t.Errorf("loop length: got %d, want %d", got, 2*BarTicks)
	}
}

func TestEnginePlayback(t *testing.T) {
	eng, out := recordedEngine(t)
	eng.TogglePlay()
	if got := eng.TrackInfo(0).State; got != TrackPlaying {
		t.Fatalf("state: got %v, want %v", got, TrackPlaying)
	}

	t.Run("emits_due_events", func(t *testing.T) {
		out.calls = nil
		eng.clock.tick.Store(768 + 200)
		eng.Advance()
		want := []string{"on 0 60 90", "off 0 60"}
		if !reflect.DeepEqual(out.calls, want) {
			t.Errorf("emissions: got %v, want %v", out.calls, want)
		}
	})

	t.Run("idle_clock_emits_nothing", func(t *testing.T) {
		out.calls = nil
		eng.Advance()
		if len(out.calls) != 0 {
			t.Errorf("emissions without clock movement: %v", out.calls)
		}
	})

	t.Run("muted_track_advances_silently", func(t *testing.T) {
		eng.ToggleMute()
		out.calls = nil
		before := eng.TrackInfo(0).Playhead
		eng.clock.tick.Store(768 + 200 + 768)
		eng.Advance()
		if len(out.calls) != 0 {
			t.Errorf("muted emissions: %v", out.calls)
		}
		if eng.TrackInfo(0).Playhead == before {
			t.Error("muted playhead did not advance")
		}
		eng.ToggleMute()
	})

	t.Run("stop_all_flushes_notes", func(t *testing.T) {
		out.calls = nil
		eng.StopAll()
		if got := eng.TrackInfo(0).State; got != TrackStopped {
			t.Errorf("state: got %v, want %v", got, TrackStopped)
		}
		want := []string{fmt.Sprintf("cc 0 %d 0", allNotesOffCC)}
		if !reflect.DeepEqual(out.calls, want) {
			t.Errorf("flush: got %v, want %v", out.calls, want)
		}
	})
}

func TestEngineOverdub(t *testing.T) {
	eng, _ := recordedEngine(t)
	eng.TogglePlay()
	eng.clock.tick.Store(768 + 300)
	eng.Advance()
	eng.ToggleRecord() // playing -> overdubbing
	if got := eng.TrackInfo(0).State; got != TrackOverdubbing {
		t.Fatalf("state: got %v, want %v", got, TrackOverdubbing)
	}

	// overdubbed input is stamped at the loop playhead
	playhead := eng.TrackInfo(0).Playhead
	eng.HandleEvent(Event{Type: NoteOn, Data1: 62, Data2: 80})
	eng.clock.tick.Store(768 + 350)
	eng.Advance()
	eng.HandleEvent(Event{Type: NoteOff, Data1: 62})

	var got Note
	for _, n := range eng.TrackNotes(0) {
		if n.Pitch == 62 {
			got = n
		}
	}
	if got.Start != playhead {
		t.Errorf("overdub start: got %d, want %d", got.Start, playhead)
	}

	eng.ToggleRecord() // back to playing
	if got := eng.TrackInfo(0).State; got != TrackPlaying {
		t.Errorf("state: got %v, want %v", got, TrackPlaying)
	}
}

func TestEngineThru(t *testing.T) {
	t.Run("armed_track_echoes_everything", func(t *testing.T) {
		out := &fakeOutput{}
		eng := NewEngine(NewClock(120), out)
		eng.ToggleRecord()
		eng.HandleEvent(Event{Type: ControlChange, Data1: 1, Data2: 64})
		want := []string{"cc 0 1 64"}
		if !reflect.DeepEqual(out.calls, want) {
			t.Errorf("echo: got %v, want %v", out.calls, want)
		}
		if got := eng.TrackInfo(0).State; got != TrackArmed {
			t.Errorf("state: got %v, want %v", got, TrackArmed)
		}
		if eng.TrackInfo(0).Events != 0 {
			t.Error("control change recorded before recording started")
		}
	})

	t.Run("idle_engine_stays_silent", func(t *testing.T) {
		out := &fakeOutput{}
		eng := NewEngine(NewClock(120), out)
		eng.HandleEvent(Event{Type: NoteOn, Data1: 60, Data2: 90})
		if len(out.calls) != 0 {
			t.Errorf("echo with no listening track: %v", out.calls)
		}
	})
}

func TestEngineTrackSelection(t *testing.T) {
	eng, _ := recordedEngine(t)
	eng.EnterEdit()
	if got := eng.EditInfo().Mode; got != EditSelect {
		t.Fatalf("mode: got %v, want %v", got, EditSelect)
	}

	eng.SelectTrack(1)
	if got := eng.CurrentTrack(); got != 1 {
		t.Errorf("current: got %d, want 1", got)
	}
	if got := eng.EditInfo().Mode; got != EditOff {
		t.Errorf("edit survives track switch: %v", got)
	}

	eng.SelectTrack(NumTracks) // out of range, ignored
	if got := eng.CurrentTrack(); got != 1 {
		t.Errorf("current after bad select: got %d, want 1", got)
	}

	eng.PrevTrack()
	eng.PrevTrack()
	if got := eng.CurrentTrack(); got != NumTracks-1 {
		t.Errorf("prev wraps: got %d, want %d", got, NumTracks-1)
	}
	eng.NextTrack()
	if got := eng.CurrentTrack(); got != 0 {
		t.Errorf("next wraps: got %d, want 0", got)
	}
}

func TestEngineClear(t *testing.T) {
	eng, _ := recordedEngine(t)
	saver := &fakeSaver{}
	eng.SetSaver(saver)

	eng.ClearTrack()
	if got := eng.TrackInfo(0); got.State != TrackEmpty || got.Events != 0 {
		t.Fatalf("after clear: %+v", got)
	}
	if saver.saves != 1 {
		t.Errorf("saves: got %d, want 1", saver.saves)
	}

	eng.UndoClear()
	if got := eng.TrackInfo(0); got.State != TrackStoppedRecording || got.Events != 2 {
		t.Errorf("after undo clear: %+v", got)
	}

	eng.RedoClear()
	if got := eng.TrackInfo(0); got.State != TrackEmpty || got.Events != 0 {
		t.Errorf("after redo clear: %+v", got)
	}
}

func TestEngineEdit(t *testing.T) {
	t.Run("confirm_synthesizes_default_pitch", func(t *testing.T) {
		out := &fakeOutput{}
		eng := NewEngine(NewClock(120), out)
		// record an empty bar to get a loop with no notes
		eng.ToggleRecord()
		eng.ToggleRecord()
		eng.clock.tick.Store(768)
		eng.ToggleRecord()
		if got := eng.TrackInfo(0).LoopLength; got != 768 {
			t.Fatalf("loop length: got %d, want 768", got)
		}

		eng.EnterEdit()
		eng.ConfirmSelection()
		info := eng.EditInfo()
		if info.Mode != EditMoveStart || !info.HasSelection {
			t.Fatalf("after confirm: %+v", info)
		}
		if info.Selected.Pitch != defaultPitch || info.Selected.Velocity != defaultVelocity {
			t.Errorf("synthesized note: %+v", info.Selected)
		}
	})

	t.Run("pitch_drag_previews", func(t *testing.T) {
		eng, out := recordedEngine(t)
		eng.EnterEdit()
		eng.NextNote()
		eng.SetEditMode(EditChangePitch)
		out.calls = nil
		eng.Drag(1)
		want := []string{"on 0 61 90", "off 0 61"}
		if !reflect.DeepEqual(out.calls, want) {
			t.Errorf("preview: got %v, want %v", out.calls, want)
		}
	})

	t.Run("exit_saves_changed_session", func(t *testing.T) {
		eng, _ := recordedEngine(t)
		saver := &fakeSaver{}
		eng.SetSaver(saver)
		eng.EnterEdit()
		eng.NextNote()
		eng.SetEditMode(EditMoveStart)
		eng.Drag(2)
		eng.ExitEdit()
		if saver.saves != 1 {
			t.Errorf("saves: got %d, want 1", saver.saves)
		}
	})

	t.Run("exit_skips_save_when_unchanged", func(t *testing.T) {
		eng, _ := recordedEngine(t)
		saver := &fakeSaver{}
		eng.SetSaver(saver)
		eng.EnterEdit()
		eng.MoveBracket(1)
		eng.ExitEdit()
		if saver.saves != 0 {
			t.Errorf("saves: got %d, want 0", saver.saves)
		}
	})
}

func TestEngineTransport(t *testing.T) {
	eng, out := recordedEngine(t)
	eng.TogglePlay()
	eng.clock.tick.Store(768 + 300)
	eng.Advance()

	eng.TransportStart()
	if eng.clock.Now() != 0 {
		t.Errorf("tick after start: got %d, want 0", eng.clock.Now())
	}
	if got := eng.TrackInfo(0).Playhead; got != 767 {
		t.Errorf("playhead rewound to: got %d, want 767", got)
	}

	out.calls = nil
	eng.TransportStop()
	if eng.clock.Running() {
		t.Error("clock still running after stop")
	}
	want := []string{fmt.Sprintf("cc 0 %d 0", allNotesOffCC)}
	if !reflect.DeepEqual(out.calls, want) {
		t.Errorf("flush: got %v, want %v", out.calls, want)
	}

	eng.clock.tick.Store(500)
	eng.TransportContinue()
	if !eng.clock.Running() || eng.clock.Now() != 500 {
		t.Error("continue must resume without rewinding")
	}
}

func TestEngineLoopStart(t *testing.T) {
	eng, _ := recordedEngine(t)
	eng.RotateLoopStart(2)
	if got := eng.TrackInfo(0).LoopStart; got != 2*StepTicks {
		t.Fatalf("loop start: got %d, want %d", got, 2*StepTicks)
	}
	eng.UndoLoopStart()
	if got := eng.TrackInfo(0).LoopStart; got != 0 {
		t.Errorf("after undo: got %d, want 0", got)
	}
	eng.RedoLoopStart()
	if got := eng.TrackInfo(0).LoopStart; got != 2*StepTicks {
		t.Errorf("after redo: got %d, want %d", got, 2*StepTicks)
	}
}
