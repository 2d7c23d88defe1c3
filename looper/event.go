package looper

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sort"
)

// Timing resolution. All tick arithmetic runs at PPQN pulses per quarter
// note; the edit grid is one 16th note.
const (
	PPQN      = 192
	StepTicks = PPQN / 4
	BarTicks  = PPQN * 4
)

// EventType tags the event variant. The set is closed: dispatch switches
// over it and anything unknown is dropped at the transport boundary.
type EventType uint8

const (
	NoteOn EventType = iota
	NoteOff
	ControlChange
	PitchBend
	ProgramChange
	Start
	Stop
	Continue
)

var eventTypeNames = map[EventType]string{
	NoteOn:        "note-on",
	NoteOff:       "note-off",
	ControlChange: "control-change",
	PitchBend:     "pitch-bend",
	ProgramChange: "program-change",
	Start:         "start",
	Stop:          "stop",
	Continue:      "continue",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("event-type(%d)", t)
}

// Event is one recorded MIDI event on a track's timeline. Tick is the
// position on the loop's own timeline; wrapping of out-of-range ticks
// happens during reconstruction, not in the store. Data1/Data2 carry the
// status-specific payload bytes: note/velocity, controller/value,
// bend LSB/MSB, program.
type Event struct {
	Type    EventType `json:"type"`
	Tick    uint32    `json:"tick"`
	Channel uint8     `json:"channel"`
	Data1   uint8     `json:"data1"`
	Data2   uint8     `json:"data2"`
}

func NoteOnEvent(tick uint32, channel, note, velocity uint8) Event {
	return Event{Type: NoteOn, Tick: tick, Channel: channel, Data1: note, Data2: velocity}
}

func NoteOffEvent(tick uint32, channel, note uint8) Event {
	return Event{Type: NoteOff, Tick: tick, Channel: channel, Data1: note}
}

func ControlChangeEvent(tick uint32, channel, controller, value uint8) Event {
	return Event{Type: ControlChange, Tick: tick, Channel: channel, Data1: controller, Data2: value}
}

// PitchBendEvent stores the signed bend as its 14-bit wire form,
// LSB in Data1 and MSB in Data2.
func PitchBendEvent(tick uint32, channel uint8, bend int16) Event {
	abs := uint16(int32(bend) + 8192)
	return Event{Type: PitchBend, Tick: tick, Channel: channel, Data1: uint8(abs & 0x7F), Data2: uint8(abs >> 7)}
}

func ProgramChangeEvent(tick uint32, channel, program uint8) Event {
	return Event{Type: ProgramChange, Tick: tick, Channel: channel, Data1: program}
}

// TransportEvent records a realtime start/stop/continue on the timeline.
func TransportEvent(t EventType, tick uint32) Event {
	return Event{Type: t, Tick: tick}
}

func (e Event) Note() uint8       { return e.Data1 }
func (e Event) Velocity() uint8   { return e.Data2 }
func (e Event) Controller() uint8 { return e.Data1 }
func (e Event) Value() uint8      { return e.Data2 }
func (e Event) Program() uint8    { return e.Data1 }

// Bend returns the pitch bend as a signed offset from center.
func (e Event) Bend() int16 {
	abs := uint16(e.Data2)<<7 | uint16(e.Data1)
	return int16(int32(abs) - 8192)
}

// IsNote reports whether the event takes part in note pairing.
func (e Event) IsNote() bool {
	return e.Type == NoteOn || e.Type == NoteOff
}

// eventOrder ranks events sharing a tick: NoteOffs come first, so a note
// ending exactly where another starts closes before the next one opens
// and LIFO pairing never crosses the boundary.
func eventOrder(e Event) int {
	if e.Type == NoteOff {
		return 0
	}
	return 1
}

// sortEvents orders the store ascending by tick, NoteOffs before other
// events on the same tick. The sort is stable so equal keys keep their
// insertion order.
func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Tick != events[j].Tick {
			return events[i].Tick < events[j].Tick
		}
		return eventOrder(events[i]) < eventOrder(events[j])
	})
}

// hashEvents fingerprints an event sequence plus the loop length with
// FNV-1a. Type, tick and both payload bytes of every event feed the hash,
// so any mutation that can change reconstruction changes the fingerprint.
func hashEvents(events []Event, loopLength uint32) uint64 {
	h := fnv.New64a()
	var buf [7]byte
	for _, e := range events {
		buf[0] = byte(e.Type)
		binary.LittleEndian.PutUint32(buf[1:5], e.Tick)
		buf[5] = e.Data1
		buf[6] = e.Data2
		h.Write(buf[:])
	}
	binary.LittleEndian.PutUint32(buf[:4], loopLength)
	h.Write(buf[:4])
	return h.Sum64()
}
