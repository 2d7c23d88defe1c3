package midi

import (
	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/Lytrix/MidiLooper-sub000/looper"
)

// FromWire decodes a wire message into a looper event stamped at tick.
// A NoteOn with velocity zero is a release in disguise and decodes as a
// NoteOff. Messages outside the looper's event model come back ok=false
// and are dropped at this boundary.
func FromWire(msg gomidi.Message, tick uint32) (looper.Event, bool) {
	var ch, d1, d2 uint8
	var rel int16
	var abs uint16
	switch {
	case msg.GetNoteOn(&ch, &d1, &d2):
		if d2 == 0 {
			return looper.NoteOffEvent(tick, ch, d1), true
		}
		return looper.NoteOnEvent(tick, ch, d1, d2), true
	case msg.GetNoteOff(&ch, &d1, &d2):
		return looper.NoteOffEvent(tick, ch, d1), true
	case msg.GetControlChange(&ch, &d1, &d2):
		return looper.ControlChangeEvent(tick, ch, d1, d2), true
	case msg.GetPitchBend(&ch, &rel, &abs):
		return looper.PitchBendEvent(tick, ch, rel), true
	case msg.GetProgramChange(&ch, &d1):
		return looper.ProgramChangeEvent(tick, ch, d1), true
	case msg.Is(gomidi.StartMsg):
		return looper.TransportEvent(looper.Start, tick), true
	case msg.Is(gomidi.StopMsg):
		return looper.TransportEvent(looper.Stop, tick), true
	case msg.Is(gomidi.ContinueMsg):
		return looper.TransportEvent(looper.Continue, tick), true
	}
	return looper.Event{}, false
}

// ToWire encodes a looper event into its wire form. Transport events
// become realtime messages. Event types with no wire form come back
// ok=false.
func ToWire(ev looper.Event) (gomidi.Message, bool) {
	switch ev.Type {
	case looper.NoteOn:
		return gomidi.NoteOn(ev.Channel, ev.Note(), ev.Velocity()), true
	case looper.NoteOff:
		return gomidi.NoteOff(ev.Channel, ev.Note()), true
	case looper.ControlChange:
		return gomidi.ControlChange(ev.Channel, ev.Controller(), ev.Value()), true
	case looper.PitchBend:
		return gomidi.Pitchbend(ev.Channel, ev.Bend()), true
	case looper.ProgramChange:
		return gomidi.ProgramChange(ev.Channel, ev.Program()), true
	case looper.Start:
		return gomidi.Start(), true
	case looper.Stop:
		return gomidi.Stop(), true
	case looper.Continue:
		return gomidi.Continue(), true
	}
	return nil, false
}
