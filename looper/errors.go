package looper

import (
	"github.com/Southclaws/fault/ftag"
)

// Error kinds for the recoverable failures of the engine. Callers branch
// with ftag.Get; every one of these is handled locally and none of them
// takes the runtime loop down.
const (
	// ErrInvalidTransition marks a track lifecycle transition that the
	// state table does not allow. The track keeps its current state.
	ErrInvalidTransition ftag.Kind = "invalid_transition"

	// ErrNoSelection marks an edit operation that needs a selected note
	// when none resolves. Treated as "nothing to do".
	ErrNoSelection ftag.Kind = "no_selection"

	// ErrNoLoop marks an operation that needs a defined loop length on a
	// track that has not recorded one yet.
	ErrNoLoop ftag.Kind = "no_loop"

	// ErrUnpairedEvent marks an edit that could not locate a note's
	// NoteOn or NoteOff in the store. The edit is abandoned whole; the
	// store is never left half mutated.
	ErrUnpairedEvent ftag.Kind = "unpaired_event"

	// ErrHistoryEmpty marks an undo or redo against an empty stack.
	ErrHistoryEmpty ftag.Kind = "history_empty"
)
