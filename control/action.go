// Package control turns raw reads from the physical surface (motorized
// faders, encoder, buttons, whether over serial or bound to keys) into
// engine operations, arbitrated by the driver election protocol.
package control

import (
	"github.com/Lytrix/MidiLooper-sub000/looper"
)

// Action names one resolved control gesture. Bindings map hardware
// controls to actions, so nothing past this package ever sees a raw
// hardware identifier.
type Action string

const (
	ActRecord    Action = "record"
	ActPlay      Action = "play"
	ActStop      Action = "stop"
	ActClear     Action = "clear"
	ActUndo      Action = "undo"
	ActRedo      Action = "redo"
	ActUndoClear Action = "undo-clear"
	ActRedoClear Action = "redo-clear"
	ActMute      Action = "mute"
	ActQuantize  Action = "quantize"
	ActTrack     Action = "track"
	ActTrackNext Action = "track-next"
	ActTrackPrev Action = "track-prev"

	ActEditSelect Action = "edit-select"
	ActEditExit   Action = "edit-exit"
	ActConfirm    Action = "confirm"
	ActBracket    Action = "bracket"
	ActNoteNext   Action = "note-next"
	ActNotePrev   Action = "note-prev"

	ActDragStart  Action = "drag-start"
	ActDragLength Action = "drag-length"
	ActDragPitch  Action = "drag-pitch"

	ActLoopStart Action = "loop-start"
	ActBPM       Action = "bpm"
)

var knownActions = map[Action]bool{
	ActRecord: true, ActPlay: true, ActStop: true, ActClear: true,
	ActUndo: true, ActRedo: true, ActUndoClear: true, ActRedoClear: true,
	ActMute: true, ActQuantize: true,
	ActTrack: true, ActTrackNext: true, ActTrackPrev: true,
	ActEditSelect: true, ActEditExit: true, ActConfirm: true,
	ActBracket: true, ActNoteNext: true, ActNotePrev: true,
	ActDragStart: true, ActDragLength: true, ActDragPitch: true,
	ActLoopStart: true, ActBPM: true,
}

// Known reports whether act names a dispatchable action. Configs are
// validated against this at load time.
func Known(act Action) bool { return knownActions[act] }

// Motorized reports whether act rides a motorized fader, meaning its
// binding can carry a motor number.
func Motorized(act Action) bool { return isFader(act) }

// faderMax is the top of the absolute control range; the hardware
// reports fader positions as MIDI style 7 bit values.
const faderMax = 127

// isFader reports whether act carries an absolute fader position.
func isFader(act Action) bool {
	switch act {
	case ActDragStart, ActDragLength, ActDragPitch:
		return true
	}
	return false
}

// isStep reports whether act carries a signed step delta.
func isStep(act Action) bool {
	switch act {
	case ActBracket, ActLoopStart, ActBPM:
		return true
	}
	return false
}

// isSelecting reports whether act changes which note is selected. These
// are the gestures the selection grace window freezes.
func isSelecting(act Action) bool {
	switch act {
	case ActBracket, ActNoteNext, ActNotePrev:
		return true
	}
	return false
}

// Dispatch invokes act on the engine. value carries the gesture
// payload: an absolute 0..127 position for the fader drags, a signed
// delta for stepped actions, the target index for track selection, and
// nothing for plain presses.
func Dispatch(eng *looper.Engine, act Action, value int) {
	switch act {
	case ActRecord:
		eng.ToggleRecord()
	case ActPlay:
		eng.TogglePlay()
	case ActStop:
		eng.StopAll()
	case ActClear:
		eng.ClearTrack()
	case ActUndo:
		eng.Undo()
	case ActRedo:
		eng.Redo()
	case ActUndoClear:
		eng.UndoClear()
	case ActRedoClear:
		eng.RedoClear()
	case ActMute:
		eng.ToggleMute()
	case ActQuantize:
		eng.ToggleQuantize()
	case ActTrack:
		eng.SelectTrack(value)
	case ActTrackNext:
		eng.NextTrack()
	case ActTrackPrev:
		eng.PrevTrack()
	case ActEditSelect:
		eng.EnterEdit()
	case ActEditExit:
		eng.ExitEdit()
	case ActConfirm:
		eng.ConfirmSelection()
	case ActBracket:
		eng.MoveBracket(int32(value))
	case ActNoteNext:
		eng.NextNote()
	case ActNotePrev:
		eng.PrevNote()
	case ActDragStart:
		eng.SetEditMode(looper.EditMoveStart)
		eng.DragTo(float64(value) / faderMax)
	case ActDragLength:
		eng.SetEditMode(looper.EditChangeLength)
		eng.DragTo(float64(value) / faderMax)
	case ActDragPitch:
		eng.SetEditMode(looper.EditChangePitch)
		eng.DragTo(float64(value) / faderMax)
	case ActLoopStart:
		eng.RotateLoopStart(int32(value))
	case ActBPM:
		eng.SetBPM(eng.ClockInfo().BPM + float64(value))
	default:
		// unknown actions were rejected at config load; nothing to do
	}
}
