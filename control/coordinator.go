package control

import (
	"container/heap"
	"sync"
	"time"

	"github.com/Lytrix/MidiLooper-sub000/debug"
	"github.com/Lytrix/MidiLooper-sub000/looper"
)

// Protocol timing. A follower's motor is repositioned only after the
// driver has settled, every motor write opens an ignore window so the
// motor's own travel does not read back as user input, and a fresh
// selection or drag freezes selection changes long enough for the
// player's hand to move between controls.
const (
	deadband       = 2
	settleDelay    = 120 * time.Millisecond
	ignoreWindow   = 80 * time.Millisecond
	selectionGrace = 1500 * time.Millisecond
	releaseHold    = 750 * time.Millisecond
)

// Binding ties one hardware control to an action. Motor is the fader
// number on the serial link for controls that can be repositioned, -1
// for the rest. Param parameterizes button actions, such as the track
// number on a track select button.
type Binding struct {
	Control string
	Action  Action
	Motor   int
	Param   int
}

// MotorLink repositions motorized controls. Sends are fire and forget.
type MotorLink interface {
	SetFader(motor, value int)
}

type controlState struct {
	binding     Binding
	last        int
	hasLast     bool
	ignoreUntil time.Time
	pendingSeq  int // stamp of the newest scheduled update
}

// update is one scheduled follower reposition. A stale seq means a
// newer schedule superseded it and the pop drops it.
type update struct {
	due   time.Time
	ctl   string
	value int
	seq   int
}

type updateQueue []update

func (q updateQueue) Len() int           { return len(q) }
func (q updateQueue) Less(i, j int) bool { return q[i].due.Before(q[j].due) }
func (q updateQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *updateQueue) Push(x any)        { *q = append(*q, x.(update)) }
func (q *updateQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// Coordinator arbitrates between the physical controls: the first one
// to move past its deadband becomes the driver and owns the edit, the
// rest are followers whose motors chase the result after a settle
// delay. Everything runs on the caller's loop with an explicit now, so
// the whole protocol is testable without waiting on real time.
type Coordinator struct {
	mu   sync.Mutex // serial reader and runtime loop both call in
	eng  *looper.Engine
	link MotorLink

	controls map[string]*controlState
	queue    updateQueue

	driver     string
	driverSeen time.Time
	graceUntil time.Time
}

func NewCoordinator(eng *looper.Engine, link MotorLink, binds []Binding) *Coordinator {
	c := &Coordinator{
		eng:      eng,
		link:     link,
		controls: make(map[string]*controlState),
	}
	for _, b := range binds {
		c.controls[b.Control] = &controlState{binding: b}
	}
	return c
}

// Driver returns the control currently holding the seat, "" when idle.
func (c *Coordinator) Driver() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.driver
}

// Input feeds one raw control reading through the protocol. The
// binding's action decides how value is read: an absolute position for
// faders, a signed delta for stepped controls, a press for the rest.
func (c *Coordinator) Input(ctl string, value int, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cs, ok := c.controls[ctl]
	if !ok {
		debug.Log("control", "unbound control %q", ctl)
		return
	}
	switch {
	case isFader(cs.binding.Action):
		c.faderInput(cs, ctl, value, now)
	case isStep(cs.binding.Action):
		c.stepInput(cs, ctl, value, now)
	default:
		c.press(cs, value, now)
	}
}

func (c *Coordinator) faderInput(cs *controlState, ctl string, value int, now time.Time) {
	if now.Before(cs.ignoreUntil) {
		// motor echo: track the position but never act on it
		cs.last, cs.hasLast = value, true
		return
	}
	if !cs.hasLast {
		// first reading is the parked position, not a gesture
		cs.last, cs.hasLast = value, true
		return
	}
	if c.driver != ctl {
		// last is left untouched below the deadband so a slow sweep
		// accumulates and still elects
		if abs(value-cs.last) < deadband {
			return
		}
		c.elect(ctl, now)
		c.graceUntil = now.Add(selectionGrace)
	}
	cs.last = value
	c.driverSeen = now
	Dispatch(c.eng, cs.binding.Action, value)
	c.schedule(now)
}

func (c *Coordinator) stepInput(cs *controlState, ctl string, delta int, now time.Time) {
	if delta == 0 {
		return
	}
	act := cs.binding.Action
	if isSelecting(act) && now.Before(c.graceUntil) {
		debug.Log("control", "selection frozen, %s ignored", ctl)
		return
	}
	// the cursor and loop-start controls take the seat like a fader
	// does; the tempo dial edits nothing and leaves the seat alone
	if act != ActBPM {
		c.elect(ctl, now)
		c.driverSeen = now
	}
	Dispatch(c.eng, act, delta)
	c.schedule(now)
}

func (c *Coordinator) press(cs *controlState, value int, now time.Time) {
	if value == 0 {
		// release edge; buttons act on the down edge only
		return
	}
	act := cs.binding.Action
	if isSelecting(act) && now.Before(c.graceUntil) {
		debug.Log("control", "selection frozen, %s ignored", cs.binding.Control)
		return
	}
	switch act {
	case ActConfirm:
		c.graceUntil = now.Add(selectionGrace)
	case ActUndo, ActRedo, ActUndoClear, ActRedoClear, ActClear, ActNoteNext, ActNotePrev:
		// history, clear and selection steps land on a settled store;
		// an in-progress move must not continue against a new selection
		c.eng.CommitEdit()
	}
	Dispatch(c.eng, act, cs.binding.Param)
	c.schedule(now)
}

// elect hands the driver seat to ctl. An in-progress move belongs to
// the outgoing driver and is committed before the new driver's input
// lands, so a move never straddles two controls.
func (c *Coordinator) elect(ctl string, now time.Time) {
	if c.driver == ctl {
		return
	}
	if c.driver != "" {
		debug.Log("control", "driver %s -> %s", c.driver, ctl)
	} else {
		debug.Log("control", "driver %s elected", ctl)
	}
	c.eng.CommitEdit()
	c.driver = ctl
	c.driverSeen = now
}

// schedule queues a reposition for every motorized follower whose
// position no longer matches the selection. The driver's own motor is
// never written while it holds the seat.
func (c *Coordinator) schedule(now time.Time) {
	if c.link == nil {
		return
	}
	for ctl, cs := range c.controls {
		if ctl == c.driver || cs.binding.Motor < 0 {
			continue
		}
		want, ok := c.positionFor(cs.binding.Action)
		if !ok || (cs.hasLast && want == cs.last) {
			continue
		}
		cs.pendingSeq++
		heap.Push(&c.queue, update{due: now.Add(settleDelay), ctl: ctl, value: want, seq: cs.pendingSeq})
	}
}

// positionFor maps the current selection onto one fader's scale.
func (c *Coordinator) positionFor(act Action) (int, bool) {
	info := c.eng.EditInfo()
	if !info.HasSelection {
		return 0, false
	}
	l := c.eng.TrackInfo(c.eng.CurrentTrack()).LoopLength
	if l == 0 {
		return 0, false
	}
	n := info.Selected
	switch act {
	case ActDragStart:
		return int(float64(n.Start) / float64(l) * faderMax), true
	case ActDragLength:
		return int(float64(n.Length(l)) / float64(l) * faderMax), true
	case ActDragPitch:
		return int(n.Pitch), true
	}
	return 0, false
}

// Tick runs the deadlines: due follower updates flush to the motors and
// a driver that stopped moving is released, committing its move the
// same way a hand-off would.
func (c *Coordinator) Tick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.queue) > 0 && !c.queue[0].due.After(now) {
		u := heap.Pop(&c.queue).(update)
		cs := c.controls[u.ctl]
		if cs == nil || u.seq != cs.pendingSeq || u.ctl == c.driver {
			continue
		}
		if c.link == nil || cs.binding.Motor < 0 {
			continue
		}
		c.link.SetFader(cs.binding.Motor, u.value)
		cs.last, cs.hasLast = u.value, true
		cs.ignoreUntil = now.Add(ignoreWindow)
		debug.Log("control", "follower %s -> %d", u.ctl, u.value)
	}

	if c.driver != "" && now.Sub(c.driverSeen) >= releaseHold {
		debug.Log("control", "driver %s released", c.driver)
		c.driver = ""
		c.eng.CommitEdit()
		c.schedule(now)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
