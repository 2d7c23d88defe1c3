package looper

// historyLimit bounds every undo and redo stack. The oldest snapshot
// falls off when a push would exceed it.
const historyLimit = 99

// Snapshot is a full copy of a track's event store at one instant, plus
// the loop fields needed to bring a cleared track back wholesale.
type Snapshot struct {
	events     []Event
	state      TrackState
	loopLength uint32
	loopStart  uint32
}

// bufferPool recycles event slices between snapshots so steady-state
// editing stops allocating once the stacks have warmed up.
type bufferPool struct {
	free [][]Event
}

func (p *bufferPool) take(n int) []Event {
	for i := len(p.free) - 1; i >= 0; i-- {
		if cap(p.free[i]) >= n {
			buf := p.free[i][:n]
			p.free = append(p.free[:i], p.free[i+1:]...)
			return buf
		}
	}
	return make([]Event, n)
}

func (p *bufferPool) give(buf []Event) {
	if buf == nil || len(p.free) >= historyLimit {
		return
	}
	p.free = append(p.free, buf[:0])
}

// stackPair is one undo/redo lane.
type stackPair struct {
	undo []Snapshot
	redo []Snapshot
}

// history holds the three independent lanes of a track: live edits,
// whole-track clears, and loop start moves. Pushing onto one lane never
// disturbs the other two.
type history struct {
	pool   bufferPool
	edits  stackPair
	clears stackPair
	starts stackPair
}

func (h *history) snapshotOf(t *Track) Snapshot {
	buf := h.pool.take(len(t.events))
	copy(buf, t.events)
	return Snapshot{events: buf, state: t.state, loopLength: t.loopLength, loopStart: t.loopStart}
}

func (h *history) push(lane *stackPair, s Snapshot) {
	if len(lane.undo) >= historyLimit {
		h.pool.give(lane.undo[0].events)
		lane.undo = append(lane.undo[:0], lane.undo[1:]...)
	}
	lane.undo = append(lane.undo, s)
	h.drain(&lane.redo)
}

func (h *history) drain(stack *[]Snapshot) {
	for _, s := range *stack {
		h.pool.give(s.events)
	}
	*stack = (*stack)[:0]
}

func (h *history) pop(stack *[]Snapshot) (Snapshot, bool) {
	n := len(*stack)
	if n == 0 {
		return Snapshot{}, false
	}
	s := (*stack)[n-1]
	*stack = (*stack)[:n-1]
	return s, true
}

// PushSnapshot records the current event store on the live-edit undo
// stack and clears its redo stack.
func (t *Track) PushSnapshot() {
	t.history.push(&t.history.edits, t.history.snapshotOf(t))
}

// dropSnapshotIfUnchanged pops the newest live-edit snapshot when the
// store hash still matches the hash taken before the edit began. Edit
// sessions that touched nothing leave no undo step behind.
func (t *Track) dropSnapshotIfUnchanged(preHash uint64) bool {
	if t.Hash() != preHash {
		return false
	}
	s, ok := t.history.pop(&t.history.edits.undo)
	if !ok {
		return false
	}
	t.history.pool.give(s.events)
	return true
}

// Undo restores the newest live-edit snapshot. Returns false on an empty
// stack; the track is untouched in that case.
func (t *Track) Undo() bool {
	return t.exchange(&t.history.edits, t.restoreEvents)
}

// Redo reverses the newest Undo.
func (t *Track) Redo() bool {
	return t.exchangeRedo(&t.history.edits, t.restoreEvents)
}

// PushClearSnapshot records everything the clear is about to wipe.
func (t *Track) PushClearSnapshot() {
	t.history.push(&t.history.clears, t.history.snapshotOf(t))
}

// UndoClear restores the events, loop fields and lifecycle state a clear
// removed. State restoration bypasses the transition table: a snapshot is
// a known-good configuration, not a transition.
func (t *Track) UndoClear() bool {
	return t.exchange(&t.history.clears, t.restoreAll)
}

// RedoClear reapplies the undone clear.
func (t *Track) RedoClear() bool {
	return t.exchangeRedo(&t.history.clears, t.restoreAll)
}

// PushLoopStartSnapshot records the current loop start offset. The lane
// carries no event buffer.
func (t *Track) PushLoopStartSnapshot() {
	t.history.push(&t.history.starts, Snapshot{loopStart: t.loopStart})
}

// UndoLoopStart restores the previous loop start offset. The lane holds
// plain offsets, so no event buffers move.
func (t *Track) UndoLoopStart() bool {
	s, ok := t.history.pop(&t.history.starts.undo)
	if !ok {
		return false
	}
	t.history.starts.redo = append(t.history.starts.redo, Snapshot{loopStart: t.loopStart})
	t.loopStart = s.loopStart
	return true
}

// RedoLoopStart reverses the newest UndoLoopStart.
func (t *Track) RedoLoopStart() bool {
	s, ok := t.history.pop(&t.history.starts.redo)
	if !ok {
		return false
	}
	t.history.starts.undo = append(t.history.starts.undo, Snapshot{loopStart: t.loopStart})
	t.loopStart = s.loopStart
	return true
}

// exchange pops the lane's undo stack, parks the current state on its
// redo stack and applies the popped snapshot.
func (t *Track) exchange(lane *stackPair, restore func(Snapshot)) bool {
	s, ok := t.history.pop(&lane.undo)
	if !ok {
		return false
	}
	lane.redo = append(lane.redo, t.history.snapshotOf(t))
	restore(s)
	t.history.pool.give(s.events)
	return true
}

func (t *Track) exchangeRedo(lane *stackPair, restore func(Snapshot)) bool {
	s, ok := t.history.pop(&lane.redo)
	if !ok {
		return false
	}
	lane.undo = append(lane.undo, t.history.snapshotOf(t))
	restore(s)
	t.history.pool.give(s.events)
	return true
}

func (t *Track) restoreEvents(s Snapshot) {
	t.events = append(t.events[:0], s.events...)
	t.invalidate()
}

func (t *Track) restoreAll(s Snapshot) {
	t.events = append(t.events[:0], s.events...)
	t.state = s.state
	t.loopLength = s.loopLength
	t.loopStart = s.loopStart
	clear(t.pending)
	t.invalidate()
}

// UndoDepth and friends feed the display.
func (t *Track) UndoDepth() int          { return len(t.history.edits.undo) }
func (t *Track) RedoDepth() int          { return len(t.history.edits.redo) }
func (t *Track) ClearUndoDepth() int     { return len(t.history.clears.undo) }
func (t *Track) ClearRedoDepth() int     { return len(t.history.clears.redo) }
func (t *Track) LoopStartUndoDepth() int { return len(t.history.starts.undo) }
func (t *Track) LoopStartRedoDepth() int { return len(t.history.starts.redo) }
